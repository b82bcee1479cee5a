package entities

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/me/tickloop/internal/logging"
	"github.com/me/tickloop/pkg/model"
)

// Builder creates an entity of one kind. base carries the id, kind and name
// already assigned by the Registry.
type Builder func(base *meta, params map[string]any) (Entity, error)

// Registry maps kind names to builders.
type Registry struct {
	builders map[string]Builder
	logger   *slog.Logger

	mu      sync.Mutex
	spawned func(Entity)
}

// NewRegistry creates a Registry with the built-in kinds: counter, lifetime,
// spawner and script.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		builders: make(map[string]Builder),
		logger:   logging.OrDiscard(logger).With("component", "entities"),
	}
	r.Register(KindCounter, buildCounter)
	r.Register(KindLifetime, buildLifetime)
	r.Register(KindSpawner, r.buildSpawner)
	r.Register(KindScript, r.buildScript)
	return r
}

// Register adds or replaces the builder for kind.
func (r *Registry) Register(kind string, b Builder) {
	r.builders[kind] = b
	r.logger.Debug("entity kind registered", "kind", kind)
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.builders))
	for k := range r.builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// OnSpawn sets a callback for entities created by other entities (spawner
// children), so the owner can index them.
func (r *Registry) OnSpawn(fn func(Entity)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawned = fn
}

// Build creates an entity from spec. It does not register it.
func (r *Registry) Build(spec model.EntitySpec) (Entity, error) {
	b, ok := r.builders[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", spec.Kind)
	}
	id := "ent_" + uuid.New().String()
	name := spec.Name
	if name == "" {
		name = spec.Kind + "-" + id[4:12]
	}
	e, err := b(&meta{id: id, kind: spec.Kind, name: name}, spec.Params)
	if err != nil {
		return nil, fmt.Errorf("build %s %q: %w", spec.Kind, name, err)
	}
	return e, nil
}

func (r *Registry) notifySpawn(e Entity) {
	r.mu.Lock()
	fn := r.spawned
	r.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}
