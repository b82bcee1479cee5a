package ticker

import (
	"errors"
	"fmt"
)

// Usage errors. All of them are returned at the point of misuse and leave the
// scheduler unchanged.
var (
	ErrInvalidConfiguration = errors.New("ticker: rate must be a positive, finite number of ticks per second")
	ErrInvalidEntity        = errors.New("ticker: cannot register a nil entity")
	ErrDuplicateEntity      = errors.New("ticker: entity is already registered")
	ErrEntityOwned          = errors.New("ticker: entity is registered with another scheduler")
	ErrUnknownEntity        = errors.New("ticker: entity is not registered")
	ErrAlreadyStarted       = errors.New("ticker: scheduler has already started")
	ErrNotStarted           = errors.New("ticker: scheduler has not started")
	ErrDiscarded            = errors.New("ticker: scheduler has stopped and must be discarded")
)

// Hook names an entity callback.
type Hook string

const (
	HookRegister   Hook = "OnRegister"
	HookTick       Hook = "OnTick"
	HookUnregister Hook = "OnUnregister"
)

// HookError is returned when an entity callback fails. The scheduler does not
// suppress hook failures; it reports them to whoever triggered the hook.
type HookError struct {
	Hook Hook
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("ticker: %s: %v", e.Hook, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
