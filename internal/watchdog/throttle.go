package watchdog

// Routine "all quiet" status lines are throttled to every cadence-th cycle
// so an idle watchdog does not fill the log. Anomalies always log.

// shouldLogRoutine reports whether the routine status line fires for the
// current counter value. A cadence of zero or less disables it entirely.
func shouldLogRoutine(counter, cadence int) bool {
	if cadence <= 0 {
		return false
	}
	return counter == 0
}

// advanceCycle steps the throttle counter, wrapping at cadence.
func advanceCycle(counter, cadence int) int {
	if cadence <= 0 {
		return counter
	}
	return (counter + 1) % cadence
}
