package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/tickloop/internal/config"
	"github.com/me/tickloop/internal/entities"
	"github.com/me/tickloop/internal/logging"
	"github.com/me/tickloop/internal/monitor"
	"github.com/me/tickloop/internal/sim"
	"github.com/me/tickloop/internal/store"
)

// configFlags are the flags shared by serve and run. Set flags override
// the config file.
type configFlags struct {
	path string
	rate float64
	spin time.Duration
	db   string
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "config", "c", "", "YAML config file (rate, entities, ...)")
	cmd.Flags().Float64Var(&f.rate, "rate", 0, "Ticks per second (default 60)")
	cmd.Flags().DurationVar(&f.spin, "spin", 0, "Busy-wait window before each tick boundary")
	cmd.Flags().StringVar(&f.db, "db", "", "Run journal database path")
}

// load reads the config file, applies flag overrides and validates the result.
func (f *configFlags) load(cmd *cobra.Command) (config.Config, error) {
	cfg := config.DefaultConfig()
	if f.path != "" {
		var err error
		if cfg, err = config.LoadFile(f.path); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("rate") {
		cfg.Rate = f.rate
	}
	if flags.Changed("spin") {
		cfg.Spin = config.Duration(f.spin)
	}
	if flags.Changed("db") {
		cfg.DBPath = f.db
	}
	if flags.Changed("log-level") || flagDebug {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	logger = logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	return cfg, nil
}

// defaultDBPath returns ~/.tickd/tickd.db, creating the directory.
func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".tickd")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "tickd.db"), nil
}

// stack is the set of components one tickd process runs.
type stack struct {
	host    *sim.Host
	store   store.Store // nil when journalling is off
	monitor *monitor.Monitor
}

// newStack opens the journal at dbPath (skipped when empty), builds the host
// and spawns the configured entities.
func newStack(ctx context.Context, cfg config.Config, dbPath string, logger *slog.Logger) (*stack, error) {
	s := &stack{}
	if dbPath != "" {
		st, err := store.NewSQLiteStore(dbPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("database ready", "path", dbPath)
		s.store = st
	}

	host, err := sim.New(sim.Config{Rate: cfg.Rate, Spin: time.Duration(cfg.Spin)}, entities.NewRegistry(logger), s.store, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := host.SpawnAll(cfg.Entities); err != nil {
		s.Close()
		return nil, err
	}
	s.host = host
	s.monitor = monitor.New(host, s.store, monitor.Config{Interval: time.Duration(cfg.SampleInterval)}, logger)
	return s, nil
}

func (s *stack) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
