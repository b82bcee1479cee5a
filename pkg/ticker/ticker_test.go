package ticker

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// counter counts its ticks.
type counter struct {
	Base
	ticks atomic.Int64
}

func (c *counter) OnTick() error {
	c.ticks.Add(1)
	return nil
}

// hooked records hook calls and can fail on demand.
type hooked struct {
	Base
	mu             sync.Mutex
	calls          []Hook
	failRegister   error
	failUnregister error
	failTick       error
	ownerAtHook    *Scheduler
}

func (h *hooked) record(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hook)
}

func (h *hooked) OnRegister() error {
	h.record(HookRegister)
	h.ownerAtHook = h.Scheduler()
	return h.failRegister
}

func (h *hooked) OnTick() error {
	h.record(HookTick)
	return h.failTick
}

func (h *hooked) OnUnregister() error {
	h.record(HookUnregister)
	return h.failUnregister
}

func (h *hooked) Calls() []Hook {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Hook(nil), h.calls...)
}

func newScheduler(t *testing.T, rate float64) *Scheduler {
	t.Helper()
	s, err := New(rate)
	if err != nil {
		t.Fatalf("New(%v): %v", rate, err)
	}
	return s
}

// startLoop runs s in the background and stops it when the test ends.
func startLoop(t *testing.T, s *Scheduler) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	t.Cleanup(func() {
		if s.State() == StateRunning {
			s.Stop()
		}
		select {
		case <-s.Done():
		case <-time.After(2 * time.Second):
			t.Error("scheduler did not exit")
		}
	})
	waitFor(t, func() bool { return s.State() != StateNotStarted })
	return errCh
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

func assertRep(t *testing.T, s *Scheduler) {
	t.Helper()
	if err := s.checkRep(); err != nil {
		t.Fatalf("checkRep: %v", err)
	}
}

func TestNew_InvalidRate(t *testing.T) {
	for _, rate := range []float64{0, -1, -0.5, math.NaN(), math.Inf(1), 1e12} {
		if _, err := New(rate); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("New(%v) error = %v, want ErrInvalidConfiguration", rate, err)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	s := NewDefault()
	if s.Rate() != DefaultRate {
		t.Errorf("Rate() = %v, want %v", s.Rate(), DefaultRate)
	}
	if want := time.Second / DefaultRate; s.Period() != want {
		t.Errorf("Period() = %v, want %v", s.Period(), want)
	}
	if s.State() != StateNotStarted {
		t.Errorf("State() = %s, want NOT_STARTED", s.State())
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if s.Elapsed() != 0 {
		t.Errorf("Elapsed() = %v before Run, want 0", s.Elapsed())
	}
}

func TestRegister_SetsBackReferenceAndRunsHook(t *testing.T) {
	s := newScheduler(t, 10)
	e := &hooked{}

	if err := s.Register(e); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !s.Contains(e) {
		t.Error("Contains = false after Register")
	}
	if e.Scheduler() != s {
		t.Error("back-reference not set to scheduler")
	}
	if e.ownerAtHook != s {
		t.Error("back-reference not set before OnRegister ran")
	}
	if calls := e.Calls(); len(calls) != 1 || calls[0] != HookRegister {
		t.Errorf("calls = %v, want [OnRegister]", calls)
	}
	assertRep(t, s)
}

func TestRegister_Nil(t *testing.T) {
	s := newScheduler(t, 10)
	if err := s.Register(nil); !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("Register(nil) = %v, want ErrInvalidEntity", err)
	}
	var typed *counter
	if err := s.Register(typed); !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("Register(typed nil) = %v, want ErrInvalidEntity", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

// tagged is a value entity whose slice field makes it unhashable.
type tagged struct {
	*Base
	tags []string
}

func TestRegister_NonPointer(t *testing.T) {
	s := newScheduler(t, 10)
	e := tagged{Base: &Base{}, tags: []string{"a"}}
	if err := s.Register(e); !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("Register(value) = %v, want ErrInvalidEntity", err)
	}
	if s.Contains(e) {
		t.Error("Contains(value) = true")
	}
	if err := s.Unregister(e); !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("Unregister(value) = %v, want ErrUnknownEntity", err)
	}
	if e.Scheduler() != nil || s.Len() != 0 {
		t.Error("rejected value entity left state behind")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	s := newScheduler(t, 10)
	e := &counter{}
	if err := s.Register(e); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register(e); !errors.Is(err, ErrDuplicateEntity) {
		t.Errorf("second Register = %v, want ErrDuplicateEntity", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d after duplicate, want 1", s.Len())
	}
	assertRep(t, s)
}

func TestRegister_OwnedByAnotherScheduler(t *testing.T) {
	a := newScheduler(t, 10)
	b := newScheduler(t, 10)
	e := &counter{}
	if err := a.Register(e); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := b.Register(e); !errors.Is(err, ErrEntityOwned) {
		t.Errorf("Register on second scheduler = %v, want ErrEntityOwned", err)
	}
	if e.Scheduler() != a {
		t.Error("back-reference changed by failed registration")
	}

	if err := a.Unregister(e); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := b.Register(e); err != nil {
		t.Errorf("Register after release: %v", err)
	}
	if e.Scheduler() != b {
		t.Error("back-reference not moved to second scheduler")
	}
}

func TestRegister_HookFailureRollsBack(t *testing.T) {
	s := newScheduler(t, 10)
	boom := errors.New("boom")
	e := &hooked{failRegister: boom}

	err := s.Register(e)
	var hookErr *HookError
	if !errors.As(err, &hookErr) {
		t.Fatalf("Register error = %v, want *HookError", err)
	}
	if hookErr.Hook != HookRegister || !errors.Is(err, boom) {
		t.Errorf("HookError = %+v, want OnRegister wrapping boom", hookErr)
	}
	if s.Contains(e) {
		t.Error("entity left in registry after failed OnRegister")
	}
	if e.Scheduler() != nil {
		t.Error("back-reference not cleared after failed OnRegister")
	}

	e.failRegister = nil
	if err := s.Register(e); err != nil {
		t.Errorf("retry Register: %v", err)
	}
	assertRep(t, s)
}

func TestUnregister(t *testing.T) {
	s := newScheduler(t, 10)
	e := &hooked{}
	if err := s.Register(e); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Unregister(e); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if s.Contains(e) {
		t.Error("Contains = true after Unregister")
	}
	if e.Scheduler() != nil {
		t.Error("back-reference not cleared after Unregister")
	}
	calls := e.Calls()
	if len(calls) != 2 || calls[1] != HookUnregister {
		t.Errorf("calls = %v, want [OnRegister OnUnregister]", calls)
	}
	assertRep(t, s)
}

func TestUnregister_Unknown(t *testing.T) {
	s := newScheduler(t, 10)
	kept := &counter{}
	if err := s.Register(kept); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := s.Unregister(&counter{}); !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("Unregister(unknown) = %v, want ErrUnknownEntity", err)
	}
	if err := s.Unregister(nil); !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("Unregister(nil) = %v, want ErrUnknownEntity", err)
	}
	if s.Len() != 1 || !s.Contains(kept) {
		t.Error("registry changed by failed Unregister")
	}
}

func TestUnregister_HookFailureKeepsEntity(t *testing.T) {
	s := newScheduler(t, 10)
	boom := errors.New("boom")
	e := &hooked{failUnregister: boom}
	if err := s.Register(e); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := s.Unregister(e)
	var hookErr *HookError
	if !errors.As(err, &hookErr) || hookErr.Hook != HookUnregister {
		t.Fatalf("Unregister error = %v, want OnUnregister HookError", err)
	}
	if !s.Contains(e) || e.Scheduler() != s {
		t.Error("entity should stay registered when OnUnregister fails")
	}
	assertRep(t, s)
}

func TestEntities_RegistrationOrder(t *testing.T) {
	s := newScheduler(t, 10)
	a, b, c := &counter{}, &counter{}, &counter{}
	for _, e := range []Entity{a, b, c} {
		if err := s.Register(e); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := s.Unregister(b); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	got := s.Entities()
	if len(got) != 2 || got[0] != Entity(a) || got[1] != Entity(c) {
		t.Errorf("Entities() = %v, want [a c]", got)
	}
}

func TestStop_BeforeRun(t *testing.T) {
	s := newScheduler(t, 10)
	if err := s.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop before Run = %v, want ErrNotStarted", err)
	}
	if s.State() != StateNotStarted {
		t.Errorf("State() = %s, want NOT_STARTED", s.State())
	}
}

func TestRun_Twice(t *testing.T) {
	s := newScheduler(t, 100)
	startLoop(t, s)

	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Run = %v, want ErrAlreadyStarted", err)
	}
}

func TestStop_DiscardsScheduler(t *testing.T) {
	s := newScheduler(t, 100)
	e := &counter{}
	if err := s.Register(e); err != nil {
		t.Fatalf("Register: %v", err)
	}
	errCh := startLoop(t, s)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %s, want STOPPED", s.State())
	}
	if err := s.Stop(); err != nil {
		t.Errorf("repeated Stop = %v, want nil", err)
	}

	if err := s.Register(&counter{}); !errors.Is(err, ErrDiscarded) {
		t.Errorf("Register after stop = %v, want ErrDiscarded", err)
	}
	if err := s.Unregister(e); !errors.Is(err, ErrDiscarded) {
		t.Errorf("Unregister after stop = %v, want ErrDiscarded", err)
	}
	err := s.Run(context.Background())
	if !errors.Is(err, ErrDiscarded) || !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Run after stop = %v, want ErrDiscarded and ErrAlreadyStarted", err)
	}
	if !s.Contains(e) {
		t.Error("Contains should still answer after stop")
	}
}

func TestRun_ContextCancel(t *testing.T) {
	s := newScheduler(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	waitFor(t, func() bool { return s.State() == StateRunning })

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %s, want STOPPED", s.State())
	}
}

func TestRun_TickHookFailureStopsLoop(t *testing.T) {
	s := newScheduler(t, 200)
	boom := errors.New("boom")
	if err := s.Register(&hooked{failTick: boom}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	errCh := startLoop(t, s)

	select {
	case err := <-errCh:
		var hookErr *HookError
		if !errors.As(err, &hookErr) || hookErr.Hook != HookTick || !errors.Is(err, boom) {
			t.Errorf("Run = %v, want OnTick HookError wrapping boom", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after hook failure")
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %s, want STOPPED", s.State())
	}
}

func TestRun_RateTen(t *testing.T) {
	s := newScheduler(t, 10)
	a := &counter{}
	if err := s.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	errCh := startLoop(t, s)

	time.Sleep(1050 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := a.ticks.Load(); got < 9 || got > 11 {
		t.Errorf("ticks = %d, want 9..11", got)
	}
	if got := s.Stats().Ticks; got != a.ticks.Load() {
		t.Errorf("Stats().Ticks = %d, want %d", got, a.ticks.Load())
	}
}

func TestRun_RateFidelity(t *testing.T) {
	for _, rate := range []float64{5, 60, 250} {
		s := newScheduler(t, rate)
		errCh := startLoop(t, s)
		time.Sleep(300 * time.Millisecond)
		s.Stop()
		if err := <-errCh; err != nil {
			t.Fatalf("rate %v: Run: %v", rate, err)
		}
		if s.Stats().Ticks == 0 {
			t.Errorf("rate %v: no ticks in 300ms", rate)
		}
	}
}

func TestRun_RateTenWithSpin(t *testing.T) {
	s, err := New(10, WithSpin(2*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := &counter{}
	if err := s.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	errCh := startLoop(t, s)

	time.Sleep(1050 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := a.ticks.Load(); got < 9 || got > 11 {
		t.Errorf("ticks = %d, want 9..11", got)
	}
}

// manualClock only moves when the test advances it.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRun_ManualClock(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := New(100, WithClock(clock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := &counter{}
	if err := s.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	errCh := startLoop(t, s)

	// Ten boundaries pass at once; all are caught up back to back.
	clock.Advance(100 * time.Millisecond)
	waitFor(t, func() bool { return a.ticks.Load() >= 10 })
	// The clock is frozen, so no further boundary comes due.
	time.Sleep(50 * time.Millisecond)
	if got := a.ticks.Load(); got != 10 {
		t.Errorf("ticks = %d with frozen clock, want 10", got)
	}
	if got := s.Stats().Late; got != 9 {
		t.Errorf("Late = %d, want 9", got)
	}
	if got := s.Elapsed(); got != 100*time.Millisecond {
		t.Errorf("Elapsed() = %v, want 100ms", got)
	}

	s.Stop()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s.Elapsed(); got != 100*time.Millisecond {
		t.Errorf("Elapsed() after stop = %v, want 100ms", got)
	}
}

func TestRun_UnregisterMidRun(t *testing.T) {
	s := newScheduler(t, 100)
	a, b := &counter{}, &counter{}
	for _, e := range []Entity{a, b} {
		if err := s.Register(e); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	errCh := startLoop(t, s)

	waitFor(t, func() bool { return a.ticks.Load() >= 3 })
	if err := s.Unregister(a); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	frozen := a.ticks.Load()
	bAtRemoval := b.ticks.Load()
	waitFor(t, func() bool { return b.ticks.Load() >= bAtRemoval+5 })

	s.Stop()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	// A may finish the tick whose snapshot it was already in.
	if got := a.ticks.Load(); got > frozen+1 {
		t.Errorf("A ticked %d times after removal", got-frozen)
	}
	if b.ticks.Load() <= bAtRemoval {
		t.Error("B stopped ticking")
	}
}

// spawner registers child on its first tick and records whether child ran
// in that same tick.
type spawner struct {
	Base
	child         *counter
	spawnedAt     int64
	childSameTick bool
	ticks         int64
}

func (p *spawner) OnTick() error {
	p.ticks++
	if p.ticks == 1 {
		if err := p.Scheduler().Register(p.child); err != nil {
			return err
		}
		p.spawnedAt = p.ticks
	}
	return nil
}

// after is registered behind the spawner so it runs later in the same tick.
type after struct {
	Base
	spawner *spawner
}

func (a *after) OnTick() error {
	if a.spawner.ticks == a.spawner.spawnedAt && a.spawner.child.ticks.Load() > 0 {
		a.spawner.childSameTick = true
	}
	return nil
}

func TestRun_RegistrationDuringTickIsDeferred(t *testing.T) {
	s := newScheduler(t, 100)
	p := &spawner{child: &counter{}}
	if err := s.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register(&after{spawner: p}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	errCh := startLoop(t, s)

	waitFor(t, func() bool { return p.child.ticks.Load() >= 2 })
	s.Stop()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.childSameTick {
		t.Error("entity registered during a tick was ticked in that tick")
	}
	if p.child.Scheduler() != s {
		t.Error("child back-reference not set")
	}
}

// quitter unregisters itself and stops the loop from inside OnTick.
type quitter struct {
	Base
	ticks atomic.Int64
	stop  bool
}

func (q *quitter) OnTick() error {
	q.ticks.Add(1)
	s := q.Scheduler()
	if err := s.Unregister(q); err != nil {
		return err
	}
	if q.stop {
		return s.Stop()
	}
	return nil
}

func TestRun_ReentrantHooks(t *testing.T) {
	s := newScheduler(t, 100)
	q := &quitter{stop: true}
	if err := s.Register(q); err != nil {
		t.Fatalf("Register: %v", err)
	}
	errCh := startLoop(t, s)

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop from inside a hook did not end the loop")
	}
	if q.ticks.Load() != 1 {
		t.Errorf("ticks = %d, want 1", q.ticks.Load())
	}
	if s.Contains(q) {
		t.Error("self-unregistered entity still present")
	}
}

func TestElapsed(t *testing.T) {
	s := newScheduler(t, 100)
	if s.Elapsed() != 0 {
		t.Fatalf("Elapsed() = %v before Run, want 0", s.Elapsed())
	}
	errCh := startLoop(t, s)

	time.Sleep(50 * time.Millisecond)
	first := s.Elapsed()
	time.Sleep(50 * time.Millisecond)
	second := s.Elapsed()
	if first < 40*time.Millisecond || second < first {
		t.Errorf("Elapsed() = %v then %v, want >= 40ms and non-decreasing", first, second)
	}

	s.Stop()
	<-errCh
	frozen := s.Elapsed()
	time.Sleep(20 * time.Millisecond)
	if s.Elapsed() != frozen {
		t.Errorf("Elapsed() moved after stop: %v → %v", frozen, s.Elapsed())
	}
	if frozen < second {
		t.Errorf("Elapsed() = %v after stop, want >= %v", frozen, second)
	}
}

func TestConcurrentRegistration(t *testing.T) {
	s := newScheduler(t, 500)
	errCh := startLoop(t, s)

	shared := &counter{}
	var wg sync.WaitGroup
	var dupes, ok atomic.Int64
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := s.Register(shared); {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrDuplicateEntity):
				dupes.Add(1)
			default:
				t.Errorf("Register: %v", err)
			}
			e := &counter{}
			if err := s.Register(e); err != nil {
				t.Errorf("Register: %v", err)
				return
			}
			if err := s.Unregister(e); err != nil {
				t.Errorf("Unregister: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || dupes.Load() != 15 {
		t.Errorf("ok=%d dupes=%d, want 1 and 15", ok.Load(), dupes.Load())
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	assertRep(t, s)

	s.Stop()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
