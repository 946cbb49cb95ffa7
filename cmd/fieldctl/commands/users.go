package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/fieldops-api/internal/app"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/dto"
)

func newUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage employee and moderator accounts",
	}
	cmd.AddCommand(newUserCreateCommand(), newUserPasswordCommand())
	return cmd
}

func newUserCreateCommand() *cobra.Command {
	var req dto.CreateUserRequest
	var role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Role = models.UserRole(strings.ToUpper(role))
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				user, err := a.UserService.Create(ctx, req, nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", user.Role, user.Username, user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "login name")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "initial password")
	cmd.Flags().StringVar(&req.FullName, "full-name", "", "display name used for client imports")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVarP(&role, "role", "r", string(models.RoleEmployee), "EMPLOYEE or MODERATOR")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("full-name")
	return cmd
}

func newUserPasswordCommand() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "set-password",
		Short: "Replace an account's password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.UserService.SetPassword(ctx, username, password, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s, open sessions ended\n", username)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "login name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "new password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
