// lifecycle.go owns the control-channel session. Acquire blocks until a
// session exists, retrying at a fixed interval for as long as the context
// lives; Invalidate throws the current one away so the next Acquire dials
// fresh. After a reboot the router is unreachable for minutes, so the
// retry loop is the normal path, not an error path.

package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Lifecycle tracks the single router session used by the loop. Not safe
// for concurrent use.
type Lifecycle struct {
	log       *slog.Logger
	connector Connector
	interval  time.Duration

	// maxAttempts bounds the retry loop; zero retries forever. Tests set
	// a bound, production never does.
	maxAttempts int

	sess Session
}

// NewLifecycle returns a lifecycle that dials through connector and waits
// interval between failed attempts.
func NewLifecycle(connector Connector, interval time.Duration, log *slog.Logger) *Lifecycle {
	return &Lifecycle{log: log, connector: connector, interval: interval}
}

// Acquire returns the held session, dialing a new one first if none is
// held. Dial failures are warnings and trigger another attempt after the
// retry interval; the only errors returned are context cancellation and
// the test-only attempt bound.
func (l *Lifecycle) Acquire(ctx context.Context) (Session, error) {
	if l.sess != nil {
		return l.sess, nil
	}
	for attempt := 1; ; attempt++ {
		sess, err := l.connector.Connect(ctx)
		if err == nil {
			l.sess = sess
			l.log.Info("control channel connected", "attempt", attempt)
			return sess, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.log.Warn("cannot reach router, retrying",
			"error", err,
			"retry_in", l.interval,
			"attempt", attempt)
		if l.maxAttempts > 0 && attempt >= l.maxAttempts {
			return nil, fmt.Errorf("no connection after %d attempts: %w", attempt, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.interval):
		}
	}
}

// Invalidate discards the held session without any I/O. TR-064 sessions
// carry no server-side state worth tearing down.
func (l *Lifecycle) Invalidate() { l.sess = nil }

// Connected reports whether a session is currently held.
func (l *Lifecycle) Connected() bool { return l.sess != nil }
