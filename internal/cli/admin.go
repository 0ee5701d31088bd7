package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/tileclaim/internal/api/middleware"
	"github.com/mcoot/tileclaim/internal/api/response"
	"github.com/mcoot/tileclaim/internal/services/cooldown"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator commands (require the admin token)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Cobra runs only the nearest persistent pre-run
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if cfg.AdminToken == "" {
				return errors.New("--admin-token is required (env: TILECLAIM_ADMIN_TOKEN)")
			}
			client = client.WithHeader(middleware.AdminTokenHeader, cfg.AdminToken)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfg.AdminToken, "admin-token", cfg.AdminToken, "Admin token (env: TILECLAIM_ADMIN_TOKEN)")

	cmd.AddCommand(newAdminResetCmd())
	cmd.AddCommand(newAdminPolicyCmd())

	return cmd
}

func newAdminResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Force a board reset now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Reset

			if err := client.Post("/api/v1/admin/reset", nil, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newAdminPolicyCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show the cooldown policy, or replace it from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result cooldown.Policy

			if file != "" {
				policy, err := cooldown.LoadFile(file)
				if err != nil {
					return fmt.Errorf("failed to load policy: %w", err)
				}
				if err := client.Put("/api/v1/admin/cooldown-policy", policy, &result); err != nil {
					return err
				}
			} else if err := client.Get("/api/v1/admin/cooldown-policy", &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Policy JSON file to upload")

	return cmd
}
