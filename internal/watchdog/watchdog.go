// Package watchdog supervises the router's WAN IPv4 address. A single
// goroutine runs the probe cycle: acquire a control-channel session, read
// the external address, classify it, escalate through reconnect and
// reboot when it stays absent, and sleep until the next cycle. All state
// lives in that goroutine; the API and scheduler reach in only through
// Snapshot and RequestReconnect.
package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/history"
	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/metrics"
)

// Config carries the loop's fixed parameters.
type Config struct {
	// Service is the WAN connection service probed and reconnected,
	// e.g. "WANPPPConnection1".
	Service      string
	PollInterval time.Duration
	// GraceCycles is the number of consecutive bad cycles that triggers
	// a heal.
	GraceCycles int
	// LogCadence emits the routine status line every n-th cycle; zero
	// disables it.
	LogCadence int
}

// Snapshot is a copy of the loop state for the status API.
type Snapshot struct {
	RunID     string    `json:"run_id"`
	Address   string    `json:"address,omitempty"`
	Presence  string    `json:"presence"`
	BadCycles int       `json:"bad_cycles"`
	Grace     int       `json:"grace_cycles"`
	Attempts  int       `json:"heal_attempts"`
	Cycles    uint64    `json:"cycles"`
	Connected bool      `json:"connected"`
	CheckedAt time.Time `json:"checked_at"`
	StartedAt time.Time `json:"started_at"`
}

// Watchdog runs the WAN supervision loop.
type Watchdog struct {
	log   *slog.Logger
	cfg   Config
	life  *Lifecycle
	heal  *Healer
	track *Tracker
	hist  *history.Store
	runID string

	reconnectReq chan struct{}

	mu   sync.RWMutex
	snap Snapshot
}

// New assembles a watchdog from its collaborators.
func New(cfg Config, life *Lifecycle, heal *Healer, hist *history.Store, runID string, log *slog.Logger) *Watchdog {
	return &Watchdog{
		log:          log,
		cfg:          cfg,
		life:         life,
		heal:         heal,
		track:        NewTracker(cfg.GraceCycles),
		hist:         hist,
		runID:        runID,
		reconnectReq: make(chan struct{}, 1),
		snap: Snapshot{
			RunID:     runID,
			Presence:  PresenceUnknown.String(),
			Grace:     cfg.GraceCycles,
			StartedAt: time.Now(),
		},
	}
}

// RequestReconnect queues one maintenance reconnect; the loop drains it at
// the top of its next cycle. Duplicate requests collapse into one. Safe
// to call from any goroutine.
func (w *Watchdog) RequestReconnect(source string) {
	select {
	case w.reconnectReq <- struct{}{}:
		w.log.Info("maintenance reconnect queued", "source", source)
		w.hist.Record(history.Event{Type: history.EventReconnectRequested, Details: source})
	default:
	}
}

// Snapshot returns a copy of the current loop state. Safe to call from
// any goroutine.
func (w *Watchdog) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snap
}

func (w *Watchdog) publish(mutate func(*Snapshot)) {
	w.mu.Lock()
	mutate(&w.snap)
	w.mu.Unlock()
}

// Run executes the supervision loop until ctx is canceled. Router-side
// trouble is logged, counted and healed, never returned; the only errors
// out of Run come from the context or the session lifecycle.
func (w *Watchdog) Run(ctx context.Context) error {
	w.log.Info("watchdog started",
		"service", w.cfg.Service,
		"poll", w.cfg.PollInterval,
		"grace_cycles", w.cfg.GraceCycles,
		"log_cadence", w.cfg.LogCadence,
		"run_id", w.runID)
	w.hist.Record(history.Event{Type: history.EventStarted, Details: w.cfg.Service})

	counter := 0
	for {
		sess, err := w.life.Acquire(ctx)
		if err != nil {
			w.hist.Record(history.Event{Type: history.EventStopped})
			return err
		}
		w.setConnected(true)

		w.drainReconnect(ctx, sess)
		w.cycle(ctx, sess, counter)
		counter = advanceCycle(counter, w.cfg.LogCadence)

		if !sleepCtx(ctx, w.cfg.PollInterval) {
			w.hist.Record(history.Event{Type: history.EventStopped})
			return ctx.Err()
		}
	}
}

// cycle performs one probe/classify/heal pass.
func (w *Watchdog) cycle(ctx context.Context, sess Session, counter int) {
	addr, err := sess.ExternalIPAddress(ctx, w.cfg.Service)
	reading := Reading{Address: addr}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		reading.Failed = true
		w.log.Error("probe failed", "error", err)
		metrics.ProbeFailuresTotal.Inc()
		w.hist.Record(history.Event{Type: history.EventProbeError, Details: err.Error()})
		w.life.Invalidate()
		w.setConnected(false)
	} else {
		reading.Present = addr != "" && addr != "0.0.0.0"
	}

	v := w.track.Observe(reading)
	metrics.CyclesTotal.Inc()
	w.logTransition(reading, v)

	if v.Heal != ActionNone {
		metrics.HealsTotal.WithLabelValues(v.Heal.String()).Inc()
		w.hist.Record(history.Event{
			Type:      history.EventHeal,
			Action:    v.Heal.String(),
			Address:   reading.Address,
			BadCycles: v.BadCycles,
			Attempts:  w.track.Attempts(),
		})
		if w.heal.Heal(ctx, sess, v.Heal) {
			w.life.Invalidate()
			w.setConnected(false)
		}
	}

	if shouldLogRoutine(counter, w.cfg.LogCadence) || w.track.BadCycles() > 0 || w.track.Attempts() > 0 {
		w.log.Info("cycle status",
			"address", reading.Address,
			"present", reading.Present,
			"bad_cycles", w.track.BadCycles(),
			"heal_attempts", w.track.Attempts())
	}

	if reading.Present {
		metrics.Presence.Set(1)
	} else {
		metrics.Presence.Set(0)
	}
	metrics.BadCycles.Set(float64(w.track.BadCycles()))
	metrics.HealAttempts.Set(float64(w.track.Attempts()))

	w.publish(func(s *Snapshot) {
		s.Address = reading.Address
		s.Presence = w.track.Last().String()
		s.BadCycles = w.track.BadCycles()
		s.Attempts = w.track.Attempts()
		s.Cycles++
		s.CheckedAt = time.Now()
	})
}

// logTransition emits the always-on anomaly lines for one verdict.
func (w *Watchdog) logTransition(r Reading, v Verdict) {
	switch {
	case v.Flipped && r.Present:
		if v.Prev == PresenceUnknown {
			w.log.Info("IPv4 present", "address", r.Address)
		} else {
			w.log.Info("IPv4 recovered", "address", r.Address)
		}
		w.hist.Record(history.Event{Type: history.EventPresent, Address: r.Address})
	case v.Flipped && !r.Present:
		w.log.Warn("IPv4 lost", "last_address", v.PrevAddress)
		w.hist.Record(history.Event{Type: history.EventLost, Address: v.PrevAddress, BadCycles: v.BadCycles})
	case v.AddressChanged:
		w.log.Info("IPv4 changed", "old", v.PrevAddress, "new", r.Address)
		w.hist.Record(history.Event{Type: history.EventChanged, Address: r.Address, Details: "was " + v.PrevAddress})
	}
	if !r.Present && !r.Failed {
		w.log.Warn("IPv4 absent", "bad_cycles", v.BadCycles, "grace", w.cfg.GraceCycles)
	}
}

// drainReconnect performs at most one queued maintenance reconnect before
// the regular probe. The grace window restarts so the deliberate outage
// is not counted against the line, but the attempt ladder is untouched.
func (w *Watchdog) drainReconnect(ctx context.Context, sess Session) {
	select {
	case <-w.reconnectReq:
	default:
		return
	}
	metrics.MaintenanceReconnectsTotal.Inc()
	w.heal.Heal(ctx, sess, ActionReconnect)
	w.track.RestartGrace()
}

func (w *Watchdog) setConnected(up bool) {
	if up {
		metrics.Connected.Set(1)
	} else {
		metrics.Connected.Set(0)
	}
	w.publish(func(s *Snapshot) { s.Connected = up })
}
