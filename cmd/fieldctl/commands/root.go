// Package commands implements fieldctl, the operator CLI for accounts, client rosters, statistics
// snapshots and schema migrations.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/app"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/pkg/config"
	"github.com/noah-isme/fieldops-api/pkg/logger"
)

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "fieldctl",
		Short:         "Operator tooling for the FieldOps API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newMigrateCommand(),
		newUsersCommand(),
		newClientsCommand(),
		newStatsCommand(),
	)
	return root
}

// withApp loads configuration, builds the service graph and hands it to fn.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, logr, err := bootstrap()
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	a, err := app.New(cfg, logr)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx = models.WithClientInfo(ctx, models.ClientInfo{IP: "local", UserAgent: "fieldctl"})
	return fn(ctx, a)
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, logr, nil
}

// moderatorClaims resolves the acting moderator for commands that go through moderator-only services.
func moderatorClaims(ctx context.Context, a *app.App, username string) (*models.JWTClaims, error) {
	user, err := a.Users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("moderator %q not found: %w", username, err)
	}
	if user.Role != models.RoleModerator {
		return nil, fmt.Errorf("user %q is not a moderator", username)
	}
	return &models.JWTClaims{UserID: user.ID, Role: user.Role}, nil
}
