package entities

import (
	"errors"
	"fmt"

	"github.com/me/tickloop/pkg/model"
	"github.com/me/tickloop/pkg/ticker"
)

const KindSpawner = "spawner"

// Spawner registers a new child entity every few ticks, up to a maximum.
// Children are built through the Registry, so any kind can be spawned.
type Spawner struct {
	*meta
	every   int64
	max     int
	child   model.EntitySpec
	build   func(model.EntitySpec) (Entity, error)
	notify  func(Entity)
	spawned int
}

func (r *Registry) buildSpawner(base *meta, params map[string]any) (Entity, error) {
	every, err := intParam(params, "every", 10)
	if err != nil {
		return nil, err
	}
	if every == 0 {
		return nil, errors.New(`param "every": must be at least 1`)
	}
	limit, err := intParam(params, "max", 5)
	if err != nil {
		return nil, err
	}
	kind, err := stringParam(params, "child", KindCounter)
	if err != nil {
		return nil, err
	}
	if kind == KindSpawner {
		return nil, errors.New(`param "child": a spawner cannot spawn spawners`)
	}
	if _, ok := r.builders[kind]; !ok {
		return nil, fmt.Errorf(`param "child": unknown entity kind %q`, kind)
	}
	var childParams map[string]any
	if raw, ok := params["child_params"].(map[string]any); ok {
		childParams = raw
	}

	return &Spawner{
		meta:   base,
		every:  int64(every),
		max:    limit,
		child:  model.EntitySpec{Kind: kind, Params: childParams},
		build:  r.Build,
		notify: r.notifySpawn,
	}, nil
}

// Spawned returns how many children have been registered. Only meaningful
// once the loop has stopped, or from the loop goroutine.
func (s *Spawner) Spawned() int {
	return s.spawned
}

func (s *Spawner) OnTick() error {
	n := s.ticks.Add(1)
	sched := s.Scheduler()
	if sched == nil || s.spawned >= s.max || n%s.every != 0 {
		return nil
	}

	spec := s.child
	spec.Name = fmt.Sprintf("%s-%d", s.name, s.spawned+1)
	child, err := s.build(spec)
	if err != nil {
		return err
	}
	// Registered children are ticked from the next tick on.
	if err := sched.Register(child); err != nil {
		if errors.Is(err, ticker.ErrDiscarded) {
			return nil
		}
		return fmt.Errorf("spawn %s: %w", spec.Name, err)
	}
	s.spawned++
	s.notify(child)
	return nil
}
