// Package entities provides the entity kinds tickd can build from a scene
// file or an API request.
package entities

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/me/tickloop/pkg/model"
	"github.com/me/tickloop/pkg/ticker"
)

// Entity is a ticker.Entity with an identity tickd can address.
type Entity interface {
	ticker.Entity
	ID() string
	Kind() string
	Name() string
	Ticks() int64
	// Scheduler returns the scheduler the entity is registered with, or nil.
	Scheduler() *ticker.Scheduler
}

// Info returns the API view of e.
func Info(e Entity) model.EntityInfo {
	return model.EntityInfo{ID: e.ID(), Kind: e.Kind(), Name: e.Name(), Ticks: e.Ticks()}
}

// meta holds the identity and tick count shared by every kind.
type meta struct {
	ticker.Base
	id    string
	kind  string
	name  string
	ticks atomic.Int64
}

func (m *meta) ID() string   { return m.id }
func (m *meta) Kind() string { return m.kind }
func (m *meta) Name() string { return m.name }
func (m *meta) Ticks() int64 { return m.ticks.Load() }

// intParam reads a non-negative integer parameter. JSON numbers arrive as
// float64 and YAML numbers as int, so both are accepted.
func intParam(params map[string]any, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case uint64:
		n = int(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("param %q: expected integer, got %v", key, v)
		}
		n = int(v)
	default:
		return 0, fmt.Errorf("param %q: expected integer, got %T", key, raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("param %q: must not be negative, got %d", key, n)
	}
	return n, nil
}

func stringParam(params map[string]any, key, def string) (string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("param %q: expected string, got %T", key, raw)
	}
	return s, nil
}
