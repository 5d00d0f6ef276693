package monitor

import "time"

// Verdict is the outcome of a deadline check for one poll cycle.
type Verdict int

const (
	// VerdictContinue means monitoring should keep polling.
	VerdictContinue Verdict = iota
	// VerdictStalled means the observed stage has not advanced within the
	// stall threshold.
	VerdictStalled
	// VerdictExpired means the overall monitoring deadline has passed.
	VerdictExpired
)

// Deadlines evaluates the stall and overall timeout rules. Check is a pure
// function of the instants it is given, so tests drive it with fixed clocks.
// A zero duration disables the corresponding rule.
type Deadlines struct {
	// Timeout bounds the whole monitoring session.
	Timeout time.Duration
	// Stall bounds the time since the observed stage last advanced.
	Stall time.Duration
}

// Check returns the verdict for a cycle at instant now, given when the
// session started and when the stage last advanced. The overall deadline
// outranks the stall rule when both have passed.
func (d Deadlines) Check(now, startedAt, lastAdvanceAt time.Time) Verdict {
	if d.Timeout > 0 && now.Sub(startedAt) >= d.Timeout {
		return VerdictExpired
	}
	if d.Stall > 0 && now.Sub(lastAdvanceAt) >= d.Stall {
		return VerdictStalled
	}
	return VerdictContinue
}
