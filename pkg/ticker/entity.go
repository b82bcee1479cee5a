package ticker

import (
	"reflect"
	"sync/atomic"
)

// Entity is a unit of behavior driven by a Scheduler.
//
// Implementations embed Base, which supplies no-op hooks and the scheduler
// back-reference, and override whichever hooks they need:
//
//	type Ball struct {
//		ticker.Base
//		x, dx float64
//	}
//
//	func (b *Ball) OnTick() error {
//		b.x += b.dx
//		return nil
//	}
//
// Entities must be pointers and are compared by pointer identity; Register
// rejects any other kind with ErrInvalidEntity.
type Entity interface {
	// OnRegister runs once on the registering goroutine before the entity
	// joins the registry. A non-nil error aborts the registration.
	OnRegister() error

	// OnTick runs once per tick on the scheduler's loop goroutine.
	OnTick() error

	// OnUnregister runs once on the unregistering goroutine before the entity
	// leaves the registry. A non-nil error keeps the entity registered.
	OnUnregister() error

	base() *Base
}

// Base is embedded by every Entity implementation.
type Base struct {
	owner atomic.Pointer[Scheduler]
}

func (b *Base) base() *Base { return b }

// Scheduler returns the scheduler the entity is currently registered with,
// or nil. It is a back-reference only; the scheduler's registry decides
// membership.
func (b *Base) Scheduler() *Scheduler {
	if b == nil {
		return nil
	}
	return b.owner.Load()
}

// OnRegister is a no-op.
func (b *Base) OnRegister() error { return nil }

// OnTick is a no-op.
func (b *Base) OnTick() error { return nil }

// OnUnregister is a no-op.
func (b *Base) OnUnregister() error { return nil }

// claim sets the back-reference to s if the entity is unowned.
func (b *Base) claim(s *Scheduler) bool {
	return b.owner.CompareAndSwap(nil, s)
}

// release clears the back-reference if it still points at s.
func (b *Base) release(s *Scheduler) {
	b.owner.CompareAndSwap(s, nil)
}

// isNil reports whether e is a nil interface or wraps a nil pointer.
func isNil(e Entity) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// isPointer reports whether e's dynamic type is a pointer. The registry keys
// its sets on the interface value, which must be hashable.
func isPointer(e Entity) bool {
	return reflect.ValueOf(e).Kind() == reflect.Pointer
}
