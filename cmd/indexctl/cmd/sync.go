package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pressindex/internal/domain/content"
	"pressindex/internal/domain/syncer"
)

func newSyncCmd() *cobra.Command {
	var action string

	cmd := &cobra.Command{
		Use:   "sync <collection> <id>",
		Short: "Apply one lifecycle event to a single document",
		Long: `Apply one lifecycle event to a single document, exactly as the webhook would.

Examples:
  indexctl sync articles 28180
  indexctl sync weekly_news 112 --action delete`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := syncer.ParseEventKind(action)
			if !ok {
				return fmt.Errorf("invalid --action %q: want create, update or delete", action)
			}
			ev := syncer.Event{
				Collection: content.Collection(args[0]),
				Kind:       kind,
				DocumentID: args[1],
			}

			c, err := loadComponents(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			outcome, err := c.Orchestrator.Handle(cmd.Context(), ev)
			if outcome != nil {
				if perr := printJSON(cmd.OutOrStdout(), outcome); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&action, "action", "a", string(syncer.EventUpdate), "Event kind: create, update or delete")
	return cmd
}
