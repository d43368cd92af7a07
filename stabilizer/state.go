// Package stabilizer drives a lazily rendered listing until it stops growing.
//
// The page gives no completion signal, so completeness is inferred: each
// round triggers growth (load-more control, scroll-to-bottom, scroll jiggle)
// and samples a growth signal. The listing is stable once the signal has
// not changed for a number of consecutive rounds in which nothing was
// clicked.
package stabilizer

// Policy bounds the round loop.
type Policy struct {
	// StableRounds is the number of consecutive quiet rounds that end the loop.
	StableRounds int
	// MaxRounds caps the loop regardless of convergence.
	MaxRounds int
}

// State is the loop's transient bookkeeping. The zero value is not ready
// for use; start from NewState.
type State struct {
	LastSignal   int
	StableRounds int
	Round        int
}

// NewState returns the state before the first round. LastSignal starts at
// -1 so that the first observation always counts as a change.
func NewState() State {
	return State{LastSignal: -1}
}

// Step folds one round's observation into the state and reports whether
// the loop should stop.
//
// The stable counter grows only when the signal is unchanged and no control
// was activated this round; a click resets it even without growth, since
// growth after a click can lag by a round.
func (s State) Step(signal int, interacted bool, p Policy) (State, bool) {
	next := State{
		LastSignal:   signal,
		StableRounds: s.StableRounds + 1,
		Round:        s.Round + 1,
	}
	if interacted || signal != s.LastSignal {
		next.StableRounds = 0
	}

	if next.StableRounds >= p.StableRounds && !interacted {
		return next, true
	}
	return next, next.Round >= p.MaxRounds
}

// Converged reports whether the state reached the quiet threshold, as
// opposed to stopping at the round cap.
func (s State) Converged(p Policy) bool {
	return s.StableRounds >= p.StableRounds
}
