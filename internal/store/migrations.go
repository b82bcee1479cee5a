package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all tickd tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		rate        REAL NOT NULL,
		state       TEXT NOT NULL DEFAULT 'RUNNING',
		ticks       INTEGER NOT NULL DEFAULT 0,
		late        INTEGER NOT NULL DEFAULT 0,
		max_tick_ns INTEGER NOT NULL DEFAULT 0,
		elapsed_ns  INTEGER NOT NULL DEFAULT 0,
		started_at  TEXT NOT NULL,
		ended_at    TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS samples (
		run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		at           TEXT NOT NULL,
		ticks        INTEGER NOT NULL,
		late         INTEGER NOT NULL DEFAULT 0,
		entities     INTEGER NOT NULL,
		elapsed_ns   INTEGER NOT NULL,
		last_tick_ns INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_samples_run_id_at ON samples(run_id, at)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "runs",
		column:   "error",
		alterSQL: "ALTER TABLE runs ADD COLUMN error TEXT NOT NULL DEFAULT ''",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
