package ticker

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time view of loop counters.
type Stats struct {
	Ticks    int64         `json:"ticks"`
	Late     int64         `json:"late"`      // ticks that started a full period or more behind schedule
	LastTick time.Duration `json:"last_tick"` // wall time spent in the most recent tick
	MaxTick  time.Duration `json:"max_tick"`
}

type counters struct {
	ticks    atomic.Int64
	late     atomic.Int64
	lastTick atomic.Int64
	maxTick  atomic.Int64
}

func (c *counters) record(d time.Duration, late bool) {
	c.ticks.Add(1)
	if late {
		c.late.Add(1)
	}
	c.lastTick.Store(int64(d))
	for {
		cur := c.maxTick.Load()
		if int64(d) <= cur || c.maxTick.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Ticks:    c.ticks.Load(),
		Late:     c.late.Load(),
		LastTick: time.Duration(c.lastTick.Load()),
		MaxTick:  time.Duration(c.maxTick.Load()),
	}
}
