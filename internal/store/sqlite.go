package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/tickloop/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Each :memory: connection is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, rate, state, ticks, late, max_tick_ns, elapsed_ns, error, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Rate, string(run.State), run.Ticks, run.Late,
		int64(run.MaxTick), int64(run.Elapsed), run.Error,
		run.StartedAt.UTC().Format(timeFormat), formatTimePtr(run.EndedAt),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, rate, state, ticks, late, max_tick_ns, elapsed_ns, error, started_at, ended_at
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var whereClauses []string
	var countArgs []any
	if opts.State != "" {
		whereClauses = append(whereClauses, "state = ?")
		countArgs = append(countArgs, opts.State)
	}
	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT id, rate, state, ticks, late, max_tick_ns, elapsed_ns, error, started_at, ended_at
		FROM runs` + whereSQL + ` ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// UpdateRun persists the counters and state of run. A transition out of a
// terminal state is rejected.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID, "state", run.State)

	current, err := s.GetRun(ctx, run.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("run %s not found", run.ID)
	}
	if current.State != run.State && !current.State.CanTransitionTo(run.State) {
		return &model.InvalidTransitionError{Entity: "Run", ID: run.ID, From: current.State.String(), To: run.State.String()}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, ticks = ?, late = ?, max_tick_ns = ?, elapsed_ns = ?, error = ?, ended_at = ?
		 WHERE id = ?`,
		string(run.State), run.Ticks, run.Late, int64(run.MaxTick), int64(run.Elapsed), run.Error,
		formatTimePtr(run.EndedAt), run.ID,
	)
	return err
}

// --- Samples ---

func (s *SQLiteStore) AddSample(ctx context.Context, sample *model.Sample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (run_id, at, ticks, late, entities, elapsed_ns, last_tick_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sample.RunID, sample.At.UTC().Format(timeFormat), sample.Ticks, sample.Late,
		sample.Entities, int64(sample.Elapsed), int64(sample.LastTick),
	)
	return err
}

// ListSamples returns the most recent samples of a run, oldest first.
func (s *SQLiteStore) ListSamples(ctx context.Context, runID string, limit int) ([]*model.Sample, error) {
	s.logger.Debug("sql", "op", "list", "table", "samples", "run_id", runID, "limit", limit)
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, at, ticks, late, entities, elapsed_ns, last_tick_ns FROM (
			SELECT rowid, * FROM samples WHERE run_id = ? ORDER BY rowid DESC LIMIT ?
		 ) ORDER BY rowid ASC`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*model.Sample
	for rows.Next() {
		var sample model.Sample
		var at string
		var elapsed, lastTick int64
		if err := rows.Scan(&sample.RunID, &at, &sample.Ticks, &sample.Late, &sample.Entities, &elapsed, &lastTick); err != nil {
			return nil, err
		}
		sample.At, _ = time.Parse(time.RFC3339Nano, at)
		sample.Elapsed = time.Duration(elapsed)
		sample.LastTick = time.Duration(lastTick)
		samples = append(samples, &sample)
	}
	return samples, rows.Err()
}

// --- helpers ---

// timeFormat has a fixed-width fraction so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var run model.Run
	var state, startedAt string
	var endedAt *string
	var maxTick, elapsed int64

	if err := row.Scan(&run.ID, &run.Rate, &state, &run.Ticks, &run.Late, &maxTick, &elapsed,
		&run.Error, &startedAt, &endedAt); err != nil {
		return nil, err
	}
	run.State = model.RunState(state)
	run.MaxTick = time.Duration(maxTick)
	run.Elapsed = time.Duration(elapsed)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	run.EndedAt = parseTimePtr(endedAt)
	return &run, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}
