package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/fieldops-api/internal/app"
)

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Statistics snapshot maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "regenerate [task-id]",
		Short: "Rebuild the snapshot of one task, or of every completed task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					if err := a.Statistics.RegenerateSnapshot(ctx, args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "snapshot rebuilt for %s\n", args[0])
					return nil
				}
				done, err := a.Statistics.RegenerateAll(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "%d snapshot(s) rebuilt\n", done)
				return err
			})
		},
	})
	return cmd
}
