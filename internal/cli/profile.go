package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/tileclaim/internal/api/request"
	"github.com/mcoot/tileclaim/internal/api/response"
)

func newJoinCmd() *cobra.Command {
	var name, color string

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Create a profile, or resume the one in the token file",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.JoinRequest{Username: name, Color: color}
			var result response.Join

			if err := client.Post("/api/v1/profiles", req, &result); err != nil {
				return err
			}

			// Save token
			if err := cfg.SaveToken(result.Token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Username (required for a new profile)")
	cmd.Flags().StringVar(&color, "color", "", "Display colour as #RRGGBB (random when empty)")

	return cmd
}

func newMeCmd() *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:   "me",
		Short: "Show the current profile, optionally changing its colour",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Profile

			if color != "" {
				req := request.UpdateProfileRequest{Color: color}
				if err := client.Patch("/api/v1/profiles/me", req, &result); err != nil {
					return err
				}
			} else if err := client.Get("/api/v1/profiles/me", &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&color, "color", "", "New display colour as #RRGGBB")

	return cmd
}
