package watchdog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
)

func TestHealReconnect(t *testing.T) {
	sess := &fakeSession{}
	h := NewHealer("WANPPPConnection1", 0, slogt.New(t))

	if h.Heal(context.Background(), sess, ActionReconnect) {
		t.Error("reconnect demanded session reinit")
	}
	if sess.terminations != 1 {
		t.Errorf("terminations = %d, want 1", sess.terminations)
	}
	if sess.reboots != 0 {
		t.Errorf("reboots = %d, want 0", sess.reboots)
	}
}

func TestHealReconnectAbsorbsFailure(t *testing.T) {
	sess := &fakeSession{terminateErr: errors.New("upnp error 606: not authorized")}
	h := NewHealer("WANPPPConnection1", 0, slogt.New(t))

	if h.Heal(context.Background(), sess, ActionReconnect) {
		t.Error("failed reconnect demanded session reinit")
	}
}

func TestHealRebootWaitsSettle(t *testing.T) {
	sess := &fakeSession{}
	settle := 30 * time.Millisecond
	h := NewHealer("WANPPPConnection1", settle, slogt.New(t))

	start := time.Now()
	if !h.Heal(context.Background(), sess, ActionReboot) {
		t.Error("successful reboot did not demand session reinit")
	}
	if elapsed := time.Since(start); elapsed < settle {
		t.Errorf("returned after %v, want at least %v settle", elapsed, settle)
	}
	if sess.reboots != 1 {
		t.Errorf("reboots = %d, want 1", sess.reboots)
	}
}

func TestHealRebootFailureSkipsSettle(t *testing.T) {
	sess := &fakeSession{rebootErr: errors.New("HTTP 500")}
	h := NewHealer("WANPPPConnection1", 10*time.Second, slogt.New(t))

	start := time.Now()
	if h.Heal(context.Background(), sess, ActionReboot) {
		t.Error("failed reboot demanded session reinit")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("failed reboot waited %v", elapsed)
	}
}

func TestHealRebootCanceledSettle(t *testing.T) {
	sess := &fakeSession{}
	h := NewHealer("WANPPPConnection1", 10*time.Second, slogt.New(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	// Cancellation cuts the settle wait short; the reboot still happened,
	// so the session is gone either way.
	if !h.Heal(ctx, sess, ActionReboot) {
		t.Error("canceled settle dropped the reinit requirement")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("canceled settle waited %v", elapsed)
	}
}

func TestHealNone(t *testing.T) {
	sess := &fakeSession{}
	h := NewHealer("WANPPPConnection1", 0, slogt.New(t))

	if h.Heal(context.Background(), sess, ActionNone) {
		t.Error("no-op heal demanded session reinit")
	}
	if sess.terminations != 0 || sess.reboots != 0 {
		t.Errorf("commands issued = %d/%d, want none", sess.terminations, sess.reboots)
	}
}
