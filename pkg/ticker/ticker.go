// Package ticker provides a fixed-rate tick scheduler. A Scheduler calls
// OnTick on every registered Entity once per period, and calls OnRegister and
// OnUnregister as entities join and leave.
//
// A Scheduler is single-use: NOT_STARTED → RUNNING → STOPPED. Once stopped it
// rejects further use with ErrDiscarded.
package ticker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"sync"
	"time"
)

// DefaultRate is the tick rate used by NewDefault, in ticks per second.
const DefaultRate = 60

// Option configures optional Scheduler settings.
type Option func(*Scheduler)

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger.With("component", "ticker")
	}
}

// WithClock sets the time source used for boundaries, lag and Elapsed. The
// loop still sleeps on real timers, so a clock that lags wall time only makes
// the loop wake and re-check more often.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSpin sets how long before each boundary the loop stops sleeping and
// yields in a tight loop instead. Zero (the default) relies on timers alone.
func WithSpin(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.spin = d
		}
	}
}

// Scheduler drives registered entities at a fixed rate.
type Scheduler struct {
	rate   float64
	period time.Duration
	spin   time.Duration
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	entities []Entity // registration order; the tick snapshot preserves it
	members  map[Entity]struct{}
	joining  map[Entity]struct{} // OnRegister in flight
	leaving  map[Entity]struct{} // OnUnregister in flight
	start    time.Time
	end      time.Time

	stopCh chan struct{}
	doneCh chan struct{}
	stats  counters
}

// New creates a scheduler that ticks rate times per second.
func New(rate float64, opts ...Option) (*Scheduler, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidConfiguration, rate)
	}
	period := time.Duration(float64(time.Second) / rate)
	if period <= 0 {
		return nil, fmt.Errorf("%w: %v ticks per second is below clock resolution", ErrInvalidConfiguration, rate)
	}

	s := &Scheduler{
		rate:    rate,
		period:  period,
		clock:   systemClock{},
		logger:  slog.New(slog.DiscardHandler),
		state:   StateNotStarted,
		members: make(map[Entity]struct{}),
		joining: make(map[Entity]struct{}),
		leaving: make(map[Entity]struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewDefault creates a scheduler running at DefaultRate.
func NewDefault(opts ...Option) *Scheduler {
	s, _ := New(DefaultRate, opts...)
	return s
}

// Rate returns the target rate in ticks per second.
func (s *Scheduler) Rate() float64 { return s.rate }

// Period returns the scheduling period, 1/rate.
func (s *Scheduler) Period() time.Duration { return s.period }

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns loop counters.
func (s *Scheduler) Stats() Stats {
	return s.stats.snapshot()
}

// Done is closed when Run returns.
func (s *Scheduler) Done() <-chan struct{} {
	return s.doneCh
}

// Register adds e to the scheduler. It sets e's back-reference, runs
// e.OnRegister on the calling goroutine, and then adds e to the registry, so
// e is first ticked on the tick after Register returns. If OnRegister fails
// the registration is rolled back and a *HookError is returned.
func (s *Scheduler) Register(e Entity) error {
	if isNil(e) || !isPointer(e) {
		return ErrInvalidEntity
	}
	b := e.base()
	if b == nil {
		return ErrInvalidEntity
	}

	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return ErrDiscarded
	}
	if s.hasLocked(e) {
		s.mu.Unlock()
		return ErrDuplicateEntity
	}
	if !b.claim(s) {
		s.mu.Unlock()
		if b.Scheduler() == s {
			return ErrDuplicateEntity
		}
		return ErrEntityOwned
	}
	s.joining[e] = struct{}{}
	s.mu.Unlock()

	err := e.OnRegister()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.joining, e)
	if err != nil {
		b.release(s)
		s.logger.Error("register hook failed", "entity", fmt.Sprintf("%T", e), "error", err)
		return &HookError{Hook: HookRegister, Err: err}
	}
	s.members[e] = struct{}{}
	s.entities = append(s.entities, e)
	s.logger.Debug("entity registered", "entity", fmt.Sprintf("%T", e), "count", len(s.entities))
	return nil
}

// Unregister runs e.OnUnregister on the calling goroutine and then removes e
// from the registry and clears its back-reference. It does not stop the loop.
// If OnUnregister fails, e stays registered and a *HookError is returned.
func (s *Scheduler) Unregister(e Entity) error {
	if isNil(e) || !isPointer(e) {
		return ErrUnknownEntity
	}

	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return ErrDiscarded
	}
	if _, ok := s.members[e]; !ok {
		s.mu.Unlock()
		return ErrUnknownEntity
	}
	if _, ok := s.leaving[e]; ok {
		s.mu.Unlock()
		return ErrUnknownEntity
	}
	s.leaving[e] = struct{}{}
	s.mu.Unlock()

	err := e.OnUnregister()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leaving, e)
	if err != nil {
		s.logger.Error("unregister hook failed", "entity", fmt.Sprintf("%T", e), "error", err)
		return &HookError{Hook: HookUnregister, Err: err}
	}
	delete(s.members, e)
	if i := slices.Index(s.entities, e); i >= 0 {
		s.entities = slices.Delete(s.entities, i, i+1)
	}
	e.base().release(s)
	s.logger.Debug("entity unregistered", "entity", fmt.Sprintf("%T", e), "count", len(s.entities))
	return nil
}

// Contains reports whether e is currently in the registry.
func (s *Scheduler) Contains(e Entity) bool {
	if isNil(e) || !isPointer(e) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[e]
	return ok
}

// Len returns the number of registered entities.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities)
}

// Entities returns a copy of the registry in tick order.
func (s *Scheduler) Entities() []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entities)
}

// Elapsed returns the time since Run began. It is zero before Run and stops
// advancing once the loop has exited.
func (s *Scheduler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.start.IsZero():
		return 0
	case !s.end.IsZero():
		return s.end.Sub(s.start)
	default:
		return s.clock.Now().Sub(s.start)
	}
}

// Run drives the tick loop on the calling goroutine and blocks until the loop
// exits. It returns nil after Stop, ctx.Err() if ctx is cancelled, or the
// *HookError of a failing OnTick. In every case the scheduler ends STOPPED.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.CanTransitionTo(StateRunning) {
		state := s.state
		s.mu.Unlock()
		if state.IsTerminal() {
			return fmt.Errorf("%w: %w", ErrDiscarded, ErrAlreadyStarted)
		}
		return ErrAlreadyStarted
	}
	s.state = StateRunning
	s.start = s.clock.Now()
	start := s.start
	s.mu.Unlock()
	defer close(s.doneCh)

	s.logger.Info("scheduler started", "rate", s.rate, "period", s.period)

	err := s.loop(ctx, newPacer(start, s.period))

	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StateStopped
		close(s.stopCh)
	}
	s.end = s.clock.Now()
	elapsed := s.end.Sub(s.start)
	s.mu.Unlock()

	stats := s.stats.snapshot()
	if err != nil {
		s.logger.Error("scheduler stopped", "error", err, "ticks", stats.Ticks, "elapsed", elapsed)
	} else {
		s.logger.Info("scheduler stopped", "ticks", stats.Ticks, "late", stats.Late, "elapsed", elapsed)
	}
	return err
}

// Stop asks the loop to exit after the tick in flight, if any. It never runs
// hooks and never blocks, so it is safe to call from inside a hook. Calls after
// the first are no-ops.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateNotStarted:
		return ErrNotStarted
	case StateStopped:
		return nil
	}
	s.state = StateStopped
	close(s.stopCh)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, p *pacer) error {
	timer := time.NewTimer(s.period)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		due, lag := p.advance(s.clock.Now())
		if !due {
			s.wait(ctx, timer, p)
			continue
		}
		late := lag >= s.period
		if late {
			s.logger.Debug("tick behind schedule", "lag", lag)
		}
		if err := s.tick(late); err != nil {
			return err
		}
	}
}

// wait sleeps until the next boundary, or until spin before it when spinning
// is enabled, returning early on stop or cancellation.
func (s *Scheduler) wait(ctx context.Context, timer *time.Timer, p *pacer) {
	d := p.until(s.clock.Now()) - s.spin
	if d <= 0 {
		runtime.Gosched()
		return
	}
	timer.Reset(d)
	select {
	case <-timer.C:
	case <-s.stopCh:
	case <-ctx.Done():
	}
}

// tick runs OnTick on a snapshot of the registry. Registrations and removals
// made while the snapshot is being walked apply from the next tick.
func (s *Scheduler) tick(late bool) error {
	s.mu.Lock()
	snapshot := slices.Clone(s.entities)
	s.mu.Unlock()

	began := s.clock.Now()
	for _, e := range snapshot {
		if err := e.OnTick(); err != nil {
			return &HookError{Hook: HookTick, Err: err}
		}
	}
	s.stats.record(s.clock.Now().Sub(began), late)
	return nil
}

func (s *Scheduler) hasLocked(e Entity) bool {
	if _, ok := s.members[e]; ok {
		return true
	}
	_, ok := s.joining[e]
	return ok
}

// checkRep verifies the registry invariants.
func (s *Scheduler) checkRep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entities) != len(s.members) {
		return fmt.Errorf("registry has %d ordered entries but %d members", len(s.entities), len(s.members))
	}
	for _, e := range s.entities {
		if isNil(e) {
			return fmt.Errorf("nil entity in registry")
		}
		if _, ok := s.members[e]; !ok {
			return fmt.Errorf("entity %T ordered but not a member", e)
		}
		if s.state != StateStopped && e.base().Scheduler() != s {
			return fmt.Errorf("entity %T has a foreign back-reference", e)
		}
	}
	return nil
}
