package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/tickloop/pkg/model"
)

func newRunCmd() *cobra.Command {
	var flags configFlags
	var duration time.Duration
	var specs []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler headless and print a summary",
		Long: `Runs the tick loop without the HTTP API for a fixed duration (or until
interrupted) and prints loop statistics. Entities come from the config file
and from repeated --entity flags of the form kind or kind=name.

The run is journalled only when --db or db_path is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			for _, s := range specs {
				spec, err := parseEntityFlag(s)
				if err != nil {
					return err
				}
				cfg.Entities = append(cfg.Entities, spec)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			stk, err := newStack(ctx, cfg, cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer stk.Close()

			if stk.store != nil {
				go stk.monitor.Start(ctx)
				defer stk.monitor.Stop()
			}

			runErr := stk.host.Run(ctx)
			printSummary(cmd.OutOrStdout(), stk.host.Status())
			if errors.Is(runErr, context.DeadlineExceeded) || errors.Is(runErr, context.Canceled) {
				return nil
			}
			return runErr
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVarP(&duration, "duration", "d", 5*time.Second, "How long to run (0 runs until interrupted)")
	cmd.Flags().StringArrayVarP(&specs, "entity", "e", nil, "Entity to register, as kind or kind=name (repeatable)")
	return cmd
}

// parseEntityFlag parses "kind" or "kind=name".
func parseEntityFlag(s string) (model.EntitySpec, error) {
	kind, name, _ := strings.Cut(s, "=")
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return model.EntitySpec{}, fmt.Errorf("invalid --entity %q: kind is required", s)
	}
	return model.EntitySpec{Kind: kind, Name: strings.TrimSpace(name)}, nil
}

func printSummary(w io.Writer, st model.Status) {
	achieved := 0.0
	if st.Elapsed > 0 {
		achieved = float64(st.Ticks) / st.Elapsed.Seconds()
	}
	fmt.Fprintf(w, "Run:       %s\n", st.RunID)
	fmt.Fprintf(w, "State:     %s\n", st.State)
	fmt.Fprintf(w, "Elapsed:   %s\n", st.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Ticks:     %s (%s/s, target %s/s)\n",
		humanize.Comma(st.Ticks), humanize.CommafWithDigits(achieved, 1), humanize.Ftoa(st.Rate))
	fmt.Fprintf(w, "Late:      %s\n", humanize.Comma(st.Late))
	fmt.Fprintf(w, "Tick time: last %s, max %s\n", st.LastTick, st.MaxTick)
	fmt.Fprintf(w, "Entities:  %d\n", st.Entities)
}
