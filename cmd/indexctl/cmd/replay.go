package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pressindex/internal/domain/syncer"
)

func newReplayCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay failed sync events recorded in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			c, err := loadComponents(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			report, err := c.Orchestrator.ReplayFailed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d event(s) still failing", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum number of events to replay")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent sync events from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := syncer.OutcomeStatus(status)
			switch st {
			case "", syncer.StatusReceived, syncer.StatusApplied, syncer.StatusIgnored, syncer.StatusFailed:
			default:
				return fmt.Errorf("invalid --status %q", status)
			}

			c, err := loadComponents(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			if c.Ledger == nil {
				return fmt.Errorf("sync ledger is not configured (set DATABASE_URL)")
			}

			records, err := c.Ledger.ListRecent(cmd.Context(), st, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status: received, applied, ignored, failed")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of events")
	return cmd
}
