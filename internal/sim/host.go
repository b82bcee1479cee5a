// Package sim hosts one tick scheduler for tickd: it builds and indexes
// entities by id and journals the scheduler's lifetime as a Run.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/me/tickloop/internal/entities"
	"github.com/me/tickloop/internal/logging"
	"github.com/me/tickloop/internal/store"
	"github.com/me/tickloop/pkg/model"
	"github.com/me/tickloop/pkg/ticker"
)

// ErrEntityNotFound is returned for ids the host does not know.
var ErrEntityNotFound = errors.New("entity not found")

// Config holds host configuration.
type Config struct {
	Rate float64
	Spin time.Duration
}

// Host owns a scheduler and the id index of the entities registered with it.
type Host struct {
	sched    *ticker.Scheduler
	registry *entities.Registry
	store    store.Store // optional; nil disables the run journal
	logger   *slog.Logger
	runID    string

	mu    sync.Mutex
	index map[string]entities.Entity
}

// New creates a host. st may be nil.
func New(cfg Config, reg *entities.Registry, st store.Store, logger *slog.Logger) (*Host, error) {
	logger = logging.OrDiscard(logger)
	sched, err := ticker.New(cfg.Rate, ticker.WithLogger(logger), ticker.WithSpin(cfg.Spin))
	if err != nil {
		return nil, err
	}
	h := &Host{
		sched:    sched,
		registry: reg,
		store:    st,
		logger:   logger.With("component", "sim"),
		runID:    "run_" + uuid.New().String(),
		index:    make(map[string]entities.Entity),
	}
	reg.OnSpawn(h.track)
	return h, nil
}

// Scheduler returns the underlying scheduler.
func (h *Host) Scheduler() *ticker.Scheduler { return h.sched }

// RunID returns the journal id of this host's run.
func (h *Host) RunID() string { return h.runID }

// Spawn builds an entity from spec and registers it.
func (h *Host) Spawn(spec model.EntitySpec) (entities.Entity, error) {
	e, err := h.registry.Build(spec)
	if err != nil {
		return nil, err
	}
	if err := h.sched.Register(e); err != nil {
		return nil, fmt.Errorf("register %s: %w", e.Name(), err)
	}
	h.track(e)
	h.logger.Info("entity spawned", "entity_id", e.ID(), "kind", e.Kind(), "name", e.Name())
	return e, nil
}

// SpawnAll spawns every spec, stopping at the first failure.
func (h *Host) SpawnAll(specs []model.EntitySpec) error {
	for i, spec := range specs {
		if _, err := h.Spawn(spec); err != nil {
			return fmt.Errorf("entities[%d]: %w", i, err)
		}
	}
	return nil
}

// Despawn unregisters the entity with the given id.
func (h *Host) Despawn(id string) error {
	e, ok := h.Get(id)
	if !ok {
		return ErrEntityNotFound
	}
	if err := h.sched.Unregister(e); err != nil {
		if errors.Is(err, ticker.ErrUnknownEntity) {
			return ErrEntityNotFound
		}
		return err
	}
	h.untrack(id)
	h.logger.Info("entity despawned", "entity_id", id)
	return nil
}

// Get returns a registered entity by id.
func (h *Host) Get(id string) (entities.Entity, bool) {
	h.mu.Lock()
	e, ok := h.index[id]
	h.mu.Unlock()
	if !ok || !h.sched.Contains(e) {
		return nil, false
	}
	return e, true
}

// List returns the registered entities in tick order. Entities that left
// on their own (a lifetime that expired) are dropped from the index.
func (h *Host) List() []model.EntityInfo {
	registered := h.sched.Entities()
	live := make(map[string]struct{}, len(registered))
	infos := make([]model.EntityInfo, 0, len(registered))
	for _, te := range registered {
		e, ok := te.(entities.Entity)
		if !ok {
			continue
		}
		live[e.ID()] = struct{}{}
		infos = append(infos, entities.Info(e))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, e := range h.index {
		if _, ok := live[id]; !ok && !h.sched.Contains(e) {
			delete(h.index, id)
		}
	}
	return infos
}

// Status returns the current scheduler status.
func (h *Host) Status() model.Status {
	stats := h.sched.Stats()
	return model.Status{
		RunID:    h.runID,
		State:    h.sched.State().String(),
		Rate:     h.sched.Rate(),
		Period:   h.sched.Period(),
		Elapsed:  h.sched.Elapsed(),
		Entities: h.sched.Len(),
		Ticks:    stats.Ticks,
		Late:     stats.Late,
		LastTick: stats.LastTick,
		MaxTick:  stats.MaxTick,
	}
}

// Run journals a new run and drives the scheduler until it stops.
func (h *Host) Run(ctx context.Context) error {
	run := &model.Run{
		ID:        h.runID,
		Rate:      h.sched.Rate(),
		State:     model.RunStateRunning,
		StartedAt: time.Now().UTC(),
	}
	if h.store != nil {
		if err := h.store.CreateRun(ctx, run); err != nil {
			return fmt.Errorf("create run: %w", err)
		}
	}
	h.logger.Info("run started", "run_id", h.runID, "rate", run.Rate, "entities", h.sched.Len())

	runErr := h.sched.Run(ctx)

	stats := h.sched.Stats()
	ended := time.Now().UTC()
	run.State = runState(runErr)
	run.Ticks = stats.Ticks
	run.Late = stats.Late
	run.MaxTick = stats.MaxTick
	run.Elapsed = h.sched.Elapsed()
	run.EndedAt = &ended
	if runErr != nil && run.State == model.RunStateFailed {
		run.Error = runErr.Error()
	}
	if h.store != nil {
		if err := h.store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
			h.logger.Error("finalize run", "run_id", h.runID, "error", err)
		}
	}
	h.logger.Info("run finished", "run_id", h.runID, "state", run.State, "ticks", run.Ticks, "elapsed", run.Elapsed)
	return runErr
}

// Stop asks the scheduler to stop after the current tick.
func (h *Host) Stop() error {
	return h.sched.Stop()
}

func (h *Host) track(e entities.Entity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.index[e.ID()] = e
}

func (h *Host) untrack(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.index, id)
}

// runState maps Run's result to the journalled state. A deadline is the
// planned end of a bounded run, so it counts as a normal stop.
func runState(err error) model.RunState {
	switch {
	case err == nil, errors.Is(err, context.DeadlineExceeded):
		return model.RunStateStopped
	case errors.Is(err, context.Canceled):
		return model.RunStateCancelled
	default:
		return model.RunStateFailed
	}
}
