package entities

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/me/tickloop/pkg/ticker"
)

const KindScript = "script"

// Script runs JavaScript hooks in an embedded goja runtime. The source may
// define any of onRegister(), onTick() and onUnregister(). Inside the script:
//
//	entity          {id, kind, name}
//	tick            the entity's tick number, starting at 1
//	log(msg)        writes msg to the tickd log at debug level
//	unregister()    leave the scheduler once the current hook returns
//
// Every call is bounded by a time budget; a script that exceeds it is
// interrupted and the hook fails.
type Script struct {
	*meta
	source string
	budget time.Duration
	logger *slog.Logger

	mu      sync.Mutex // goja.Runtime is not safe for concurrent use
	vm      *goja.Runtime
	leaving bool
}

func (r *Registry) buildScript(base *meta, params map[string]any) (Entity, error) {
	source, err := stringParam(params, "source", "")
	if err != nil {
		return nil, err
	}
	if source == "" {
		return nil, errors.New(`param "source": required`)
	}
	budgetMs, err := intParam(params, "budget_ms", 50)
	if err != nil {
		return nil, err
	}
	// Compile now so a syntax error is reported when the entity is built.
	if _, err := goja.Compile(base.name, source, false); err != nil {
		return nil, fmt.Errorf(`param "source": %w`, err)
	}
	return &Script{
		meta:   base,
		source: source,
		budget: time.Duration(budgetMs) * time.Millisecond,
		logger: r.logger.With("entity_id", base.id, "entity", base.name),
	}, nil
}

// OnRegister creates the runtime, runs the source and calls onRegister.
func (s *Script) OnRegister() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vm := goja.New()
	if err := s.setupVM(vm); err != nil {
		return err
	}
	if _, err := s.guard(vm, func() (goja.Value, error) { return vm.RunString(s.source) }); err != nil {
		return fmt.Errorf("load script: %w", err)
	}
	s.vm = vm
	s.leaving = false
	return s.callLocked("onRegister")
}

func (s *Script) OnTick() error {
	s.mu.Lock()
	n := s.ticks.Add(1)
	if err := s.vm.Set("tick", n); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("set tick: %w", err)
	}
	err := s.callLocked("onTick")
	leaving := s.leaving
	s.mu.Unlock()
	if err != nil {
		return err
	}
	sched := s.Scheduler()
	if leaving && sched != nil {
		// The lock is released first: Unregister calls back into OnUnregister.
		if err := sched.Unregister(s); err != nil &&
			!errors.Is(err, ticker.ErrUnknownEntity) && !errors.Is(err, ticker.ErrDiscarded) {
			return err
		}
	}
	return nil
}

func (s *Script) OnUnregister() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callLocked("onUnregister")
}

func (s *Script) setupVM(vm *goja.Runtime) error {
	self := map[string]any{"id": s.id, "kind": s.kind, "name": s.name}
	if err := vm.Set("entity", self); err != nil {
		return fmt.Errorf("set entity: %w", err)
	}
	if err := vm.Set("tick", 0); err != nil {
		return fmt.Errorf("set tick: %w", err)
	}
	if err := vm.Set("log", func(msg string) {
		s.logger.Debug("script", "msg", msg)
	}); err != nil {
		return fmt.Errorf("set log: %w", err)
	}
	// Called with s.mu held, from inside a hook.
	if err := vm.Set("unregister", func() {
		s.leaving = true
	}); err != nil {
		return fmt.Errorf("set unregister: %w", err)
	}
	return nil
}

// callLocked calls the named global function if the script defines it.
func (s *Script) callLocked(name string) error {
	if s.vm == nil {
		return nil
	}
	fn, ok := goja.AssertFunction(s.vm.Get(name))
	if !ok {
		return nil
	}
	if _, err := s.guard(s.vm, func() (goja.Value, error) { return fn(goja.Undefined()) }); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// guard runs call with the time budget enforced.
func (s *Script) guard(vm *goja.Runtime, call func() (goja.Value, error)) (goja.Value, error) {
	if s.budget > 0 {
		timer := time.AfterFunc(s.budget, func() {
			vm.Interrupt(fmt.Sprintf("script exceeded %s budget", s.budget))
		})
		defer func() {
			timer.Stop()
			vm.ClearInterrupt()
		}()
	}
	return call()
}
