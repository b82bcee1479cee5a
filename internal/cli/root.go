package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/tickloop/internal/logging"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking TICKD_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("TICKD_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the tickd CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tickd",
		Short: "tickd: fixed-rate tick scheduler",
		Long: `tickd drives a set of entities at a fixed tick rate.

Use "tickd serve" to run the scheduler behind an HTTP API, or "tickd run" to
run it headless for a fixed duration. The remaining commands talk to a
running server.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "tickd server URL (or TICKD_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newStatusCmd(),
		newEntitiesCmd(),
		newSpawnCmd(),
		newDespawnCmd(),
		newStopCmd(),
		newRunsCmd(),
	)

	return root
}
