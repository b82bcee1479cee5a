package ticker

import "time"

// pacer tracks tick boundaries. Boundaries accumulate from the start instant
// (next += period) so a slow tick or a late wake-up never shifts the schedule.
type pacer struct {
	period time.Duration
	next   time.Time
}

func newPacer(start time.Time, period time.Duration) *pacer {
	return &pacer{period: period, next: start.Add(period)}
}

// advance reports whether a tick is due at now. When it is, the boundary moves
// forward by exactly one period and lag is how far now trails the boundary
// that was just consumed.
func (p *pacer) advance(now time.Time) (due bool, lag time.Duration) {
	if now.Before(p.next) {
		return false, 0
	}
	lag = now.Sub(p.next)
	p.next = p.next.Add(p.period)
	return true, lag
}

// until returns the time left before the next boundary.
func (p *pacer) until(now time.Time) time.Duration {
	return p.next.Sub(now)
}
