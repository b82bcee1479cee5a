package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/tickloop/pkg/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the scheduler status of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/status")
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			var st model.Status
			if err := resp.decode(&st); err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the tick loop of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/stop", nil)
			if err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			var st model.Status
			if err := resp.decode(&st); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduler %s: %s\n", st.RunID, st.State)
			return nil
		},
	}
}
