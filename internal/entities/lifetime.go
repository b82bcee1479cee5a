package entities

import (
	"errors"

	"github.com/me/tickloop/pkg/ticker"
)

const KindLifetime = "lifetime"

// Lifetime unregisters itself after a fixed number of ticks.
type Lifetime struct {
	*meta
	limit int64
}

func buildLifetime(base *meta, params map[string]any) (Entity, error) {
	n, err := intParam(params, "ticks", 60)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.New(`param "ticks": must be at least 1`)
	}
	return &Lifetime{meta: base, limit: int64(n)}, nil
}

// Remaining returns how many ticks are left before the entity leaves.
func (l *Lifetime) Remaining() int64 {
	return max(l.limit-l.Ticks(), 0)
}

func (l *Lifetime) OnTick() error {
	if l.ticks.Add(1) < l.limit {
		return nil
	}
	// Removed earlier in this tick; the snapshot still reaches us once.
	sched := l.Scheduler()
	if sched == nil {
		return nil
	}
	err := sched.Unregister(l)
	if errors.Is(err, ticker.ErrDiscarded) || errors.Is(err, ticker.ErrUnknownEntity) {
		// Stopped or already being removed by someone else.
		return nil
	}
	return err
}
