package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/noah-isme/fieldops-api/internal/app"
	"github.com/noah-isme/fieldops-api/internal/models"
)

func newClientsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Client roster tools",
	}
	cmd.AddCommand(newClientImportCommand())
	return cmd
}

func newClientImportCommand() *cobra.Command {
	var (
		moderator string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "import <file.csv|file.xlsx>",
		Short: "Import a client roster through the same preview and confirm steps as the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close() //nolint:errcheck
			info, err := file.Stat()
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				claims, err := moderatorClaims(ctx, a, moderator)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				preview, err := a.ClientImport.Preview(ctx, filepath.Base(path), info.Size(), file, claims)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "rows: %d, new: %d, existing: %d, skipped: %d\n",
					len(preview.Rows), preview.ToCreate, preview.ToUpdate, preview.Skipped)
				printIssues(out, "warning", preview.Warnings)
				if dryRun {
					return a.ClientImport.Discard(preview.Token, claims)
				}

				result, err := a.ClientImport.Confirm(ctx, preview.Token, claims)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "created: %d, updated: %d, skipped: %d\n", result.Created, result.Updated, result.Skipped)
				printIssues(out, "error", result.Errors)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&moderator, "as", "", "moderator username recorded as the importer")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only print the preview")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func printIssues(out io.Writer, kind string, issues []models.ImportRowIssue) {
	for _, issue := range issues {
		fmt.Fprintf(out, "  %s line %d: %s\n", kind, issue.Line, issue.Message)
	}
}
