package ticker

// State is the lifecycle state of a Scheduler.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateRunning    State = "RUNNING"
	StateStopped    State = "STOPPED"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true once the scheduler can no longer be used.
func (s State) IsTerminal() bool {
	return s == StateStopped
}

// validTransitions is strictly forward: a scheduler is single-use.
var validTransitions = map[State][]State{
	StateNotStarted: {StateRunning},
	StateRunning:    {StateStopped},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
