// Package monitor samples a running scheduler at a fixed interval, journals
// the samples and fans them out to live subscribers.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/tickloop/internal/logging"
	"github.com/me/tickloop/internal/store"
	"github.com/me/tickloop/pkg/model"
)

// Source reports scheduler status. *sim.Host implements it.
type Source interface {
	Status() model.Status
}

// Config holds monitor configuration.
type Config struct {
	Interval time.Duration
	Buffer   int // per-subscriber channel capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: time.Second, Buffer: 16}
}

// Monitor periodically samples a Source.
type Monitor struct {
	source Source
	store  store.Store // optional
	config Config
	logger *slog.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	mu      sync.Mutex
	nextID  int
	subs    map[int]chan model.Sample
	dropped atomic.Int64
}

// New creates a monitor. st may be nil, in which case samples are only
// published to subscribers.
func New(src Source, st store.Store, cfg Config, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}
	return &Monitor{
		source: src,
		store:  st,
		config: cfg,
		logger: logging.OrDiscard(logger).With("component", "monitor"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		subs:   make(map[int]chan model.Sample),
	}
}

// Start runs the sampling loop. Blocks until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.started.Store(true)
	defer close(m.doneCh)

	m.logger.Info("monitor started", "interval", m.config.Interval)
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping (context cancelled)")
			return ctx.Err()
		case <-m.stopCh:
			m.logger.Info("monitor stopping (stop called)")
			return nil
		case <-ticker.C:
			if err := m.Sample(ctx); err != nil {
				m.logger.Error("sample error", "error", err)
			}
		}
	}
}

// Stop shuts down the loop and waits for the sample in flight to finish.
func (m *Monitor) Stop() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	if m.started.Load() {
		<-m.doneCh
	}
	return nil
}

// Sample takes one measurement. It is journalled only while the scheduler is
// running; it is always published.
func (m *Monitor) Sample(ctx context.Context) error {
	st := m.source.Status()
	sample := &model.Sample{
		RunID:    st.RunID,
		At:       time.Now().UTC(),
		Ticks:    st.Ticks,
		Late:     st.Late,
		Entities: st.Entities,
		Elapsed:  st.Elapsed,
		LastTick: st.LastTick,
	}

	var err error
	if m.store != nil && st.State == "RUNNING" {
		err = m.store.AddSample(ctx, sample)
	}
	m.publish(*sample)
	return err
}

// Subscribe returns a channel of samples and a func that ends the
// subscription. A subscriber that falls behind misses samples.
func (m *Monitor) Subscribe() (<-chan model.Sample, func()) {
	ch := make(chan model.Sample, m.config.Buffer)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (m *Monitor) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Dropped returns how many samples were skipped for slow subscribers.
func (m *Monitor) Dropped() int64 {
	return m.dropped.Load()
}

func (m *Monitor) publish(s model.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
			m.dropped.Add(1)
		}
	}
}
