package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination holds pagination metadata for list endpoints.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions configures list queries with pagination and filtering.
type ListOptions struct {
	Limit  int
	Offset int
	State  string // Optional run state filter
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// EntitySpec describes an entity to build. It is the body of
// POST /api/v1/entities and an item of a scene file's entities list.
type EntitySpec struct {
	Kind   string         `json:"kind" yaml:"kind"`
	Name   string         `json:"name,omitempty" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params"`
}

// EntityInfo describes a registered entity.
type EntityInfo struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Ticks int64  `json:"ticks"`
}

// Status is a point-in-time view of a simulation host.
type Status struct {
	RunID    string        `json:"run_id"`
	State    string        `json:"state"`
	Rate     float64       `json:"rate"`
	Period   time.Duration `json:"period_ns"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Entities int           `json:"entities"`
	Ticks    int64         `json:"ticks"`
	Late     int64         `json:"late"`
	LastTick time.Duration `json:"last_tick_ns"`
	MaxTick  time.Duration `json:"max_tick_ns"`
}
