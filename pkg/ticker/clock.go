package ticker

import "time"

// Clock supplies the instants the loop paces against.
type Clock interface {
	Now() time.Time
}

// systemClock reads the wall clock with its monotonic component.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
