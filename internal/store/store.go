package store

import (
	"context"

	"github.com/me/tickloop/pkg/model"
)

// Store defines the persistence layer for the run journal.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	UpdateRun(ctx context.Context, run *model.Run) error

	// Samples
	AddSample(ctx context.Context, sample *model.Sample) error
	ListSamples(ctx context.Context, runID string, limit int) ([]*model.Sample, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
