package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/tickloop/pkg/model"
)

func newRunsCmd() *cobra.Command {
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run_id]",
		Short: "List journalled runs, or show one run and its recent samples",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showRun(cmd, args[0], limit)
			}

			path := fmt.Sprintf("/api/v1/runs/?limit=%d", limit)
			if state != "" {
				path += "&state=" + state
			}
			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			var runs []model.Run
			if err := resp.decode(&runs); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}
			fmt.Fprintf(out, "%-40s  %-10s  %-10s  %-10s  %s\n", "ID", "STATE", "TICKS", "ELAPSED", "STARTED")
			fmt.Fprintf(out, "%-40s  %-10s  %-10s  %-10s  %s\n", "--", "-----", "-----", "-------", "-------")
			for _, r := range runs {
				fmt.Fprintf(out, "%-40s  %-10s  %-10s  %-10s  %s\n",
					r.ID, r.State, humanize.Comma(r.Ticks), r.Elapsed.Round(time.Millisecond), humanize.Time(r.StartedAt))
			}
			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (RUNNING, STOPPED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs (or samples) to show")
	return cmd
}

func showRun(cmd *cobra.Command, id string, limit int) error {
	resp, err := client.Get("/api/v1/runs/" + id)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	var run model.Run
	if err := resp.decode(&run); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "  State:  %s\n", run.State)
	fmt.Fprintf(out, "  Rate:   %s/s\n", humanize.Ftoa(run.Rate))
	fmt.Fprintf(out, "  Ticks:  %s (%s late)\n", humanize.Comma(run.Ticks), humanize.Comma(run.Late))
	fmt.Fprintf(out, "  Max:    %s\n", run.MaxTick)
	fmt.Fprintf(out, "  Started: %s (%s)\n", run.StartedAt.Format(time.RFC3339), humanize.Time(run.StartedAt))
	if run.EndedAt != nil {
		fmt.Fprintf(out, "  Ended:  %s after %s\n", run.EndedAt.Format(time.RFC3339), run.Elapsed.Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(out, "  Error:  %s\n", run.Error)
	}

	resp, err = client.Get(fmt.Sprintf("/api/v1/runs/%s/samples?limit=%d", id, limit))
	if err != nil {
		return fmt.Errorf("list samples: %w", err)
	}
	var samples []model.Sample
	if err := resp.decode(&samples); err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	fmt.Fprintln(out, "  Samples:")
	for _, s := range samples {
		fmt.Fprintf(out, "    %s  ticks=%s entities=%d last=%s\n",
			s.At.Format(time.TimeOnly), humanize.Comma(s.Ticks), s.Entities, s.LastTick)
	}
	return nil
}
