package model

import "time"

// RunState represents the lifecycle state of a recorded Run.
type RunState string

const (
	RunStateRunning   RunState = "RUNNING"
	RunStateStopped   RunState = "STOPPED"
	RunStateFailed    RunState = "FAILED"
	RunStateCancelled RunState = "CANCELLED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// IsTerminal returns true if the run has finished.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateStopped, RunStateFailed, RunStateCancelled:
		return true
	}
	return false
}

// ValidRunTransitions defines the allowed state transitions for Runs.
var ValidRunTransitions = map[RunState][]RunState{
	RunStateRunning: {RunStateStopped, RunStateFailed, RunStateCancelled},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s RunState) CanTransitionTo(next RunState) bool {
	for _, allowed := range ValidRunTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Run is the journal record of one scheduler lifetime.
type Run struct {
	ID        string        `json:"id"`
	Rate      float64       `json:"rate"`
	State     RunState      `json:"state"`
	Ticks     int64         `json:"ticks"`
	Late      int64         `json:"late"`
	MaxTick   time.Duration `json:"max_tick_ns"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

// Sample is a periodic measurement of a running scheduler.
type Sample struct {
	RunID    string        `json:"run_id"`
	At       time.Time     `json:"at"`
	Ticks    int64         `json:"ticks"`
	Late     int64         `json:"late"`
	Entities int           `json:"entities"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	LastTick time.Duration `json:"last_tick_ns"`
}
