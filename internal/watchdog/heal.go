// heal.go executes remediation decisions. Failures are absorbed into the
// log: the loop must keep cycling no matter what the router does, and the
// escalation ladder already covers a heal that did not stick.

package watchdog

import (
	"context"
	"log/slog"
	"time"
)

// Healer issues remediation actions against a session.
type Healer struct {
	log     *slog.Logger
	service string
	settle  time.Duration
}

// NewHealer returns a healer that terminates the given WAN service on
// reconnect and sleeps settle after a successful reboot command.
func NewHealer(service string, settle time.Duration, log *slog.Logger) *Healer {
	return &Healer{log: log, service: service, settle: settle}
}

// Heal performs action and reports whether the session must be replaced.
// A reconnect keeps the control channel usable. A successful reboot waits
// out the settle delay first, so the loop does not hammer a device that
// is still booting, and then requires a fresh session.
func (h *Healer) Heal(ctx context.Context, sess Session, action Action) bool {
	switch action {
	case ActionReconnect:
		h.log.Warn("healing: forcing WAN reconnect", "service", h.service)
		if err := sess.ForceTermination(ctx, h.service); err != nil {
			h.log.Error("reconnect command failed", "error", err)
		}
		return false
	case ActionReboot:
		h.log.Error("healing: rebooting router")
		if err := sess.Reboot(ctx); err != nil {
			h.log.Error("reboot command failed", "error", err)
			return false
		}
		h.log.Warn("reboot issued, waiting for router to come back", "settle", h.settle)
		sleepCtx(ctx, h.settle)
		return true
	default:
		return false
	}
}

// sleepCtx pauses for d unless the context ends first. It reports whether
// the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
