// escalation.go implements the absence-counting state machine that decides
// when and how the line gets healed. Presence wipes all counters. Absence
// accumulates until the grace threshold is crossed, at which point a heal
// action is chosen from the number of attempts already made (reconnect
// twice, then reboot) and the grace window restarts. A probe transport
// failure counts as an absent cycle but zeroes the attempt ladder first,
// so a flaky control channel cannot climb to a reboot.

package watchdog

// Presence is the tri-state memory of the last cycle's classification.
type Presence int

const (
	PresenceUnknown Presence = iota
	PresencePresent
	PresenceAbsent
)

func (p Presence) String() string {
	switch p {
	case PresencePresent:
		return "present"
	case PresenceAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// Action is one step on the escalation ladder.
type Action int

const (
	ActionNone Action = iota
	ActionReconnect
	ActionReboot
)

func (a Action) String() string {
	switch a {
	case ActionReconnect:
		return "reconnect"
	case ActionReboot:
		return "reboot"
	default:
		return "none"
	}
}

// Reading is the classified outcome of a single probe.
type Reading struct {
	Address string
	Present bool
	// Failed marks a transport-level probe error. A failed reading is
	// never Present.
	Failed bool
}

// Verdict reports what one reading changed.
type Verdict struct {
	// Heal is the remediation decided this cycle, ActionNone otherwise.
	Heal Action
	// Flipped is set when presence differs from the previous cycle.
	Flipped bool
	// AddressChanged is set when the line stayed up but under a new
	// address. Mutually exclusive with Flipped.
	AddressChanged bool
	// Prev and PrevAddress carry the pre-reading state for transition
	// logging.
	Prev        Presence
	PrevAddress string
	// BadCycles is the consecutive-absence count as it stood when this
	// reading was folded in, before any heal decision reset it.
	BadCycles int
}

// Tracker is the escalation state machine. It owns the consecutive-absence
// and heal-attempt counters; the loop owns everything else. Not safe for
// concurrent use.
type Tracker struct {
	threshold int

	badCycles int
	attempts  int
	last      Presence
	addr      string
}

// NewTracker returns a tracker that heals on the threshold-th consecutive
// bad cycle.
func NewTracker(threshold int) *Tracker {
	return &Tracker{threshold: threshold}
}

// Observe folds one probe reading into the state machine and returns the
// resulting verdict.
func (t *Tracker) Observe(r Reading) Verdict {
	v := Verdict{Prev: t.last, PrevAddress: t.addr}

	if r.Failed {
		t.attempts = 0
		r.Present = false
	}

	now := PresenceAbsent
	if r.Present {
		now = PresencePresent
	}
	v.Flipped = t.last != now
	v.AddressChanged = !v.Flipped && r.Present && r.Address != t.addr
	t.last = now
	t.addr = r.Address

	if r.Present {
		t.badCycles = 0
		t.attempts = 0
		return v
	}

	t.badCycles++
	v.BadCycles = t.badCycles
	if t.badCycles >= t.threshold {
		if t.attempts <= 1 {
			v.Heal = ActionReconnect
		} else {
			v.Heal = ActionReboot
		}
		t.attempts++
		t.badCycles = 0
	}
	return v
}

// BadCycles returns the current consecutive-absence count.
func (t *Tracker) BadCycles() int { return t.badCycles }

// Attempts returns the number of heals issued since the line was last up.
func (t *Tracker) Attempts() int { return t.attempts }

// Last returns the previous cycle's classification.
func (t *Tracker) Last() Presence { return t.last }

// LastAddress returns the address value seen on the previous cycle.
func (t *Tracker) LastAddress() string { return t.addr }

// RestartGrace clears the consecutive-absence count without touching the
// attempt ladder. Used when a maintenance reconnect deliberately drops
// the line.
func (t *Tracker) RestartGrace() { t.badCycles = 0 }
