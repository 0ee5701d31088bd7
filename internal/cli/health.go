package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/tileclaim/internal/api/response"
)

const healthPath = "/health"

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server and store health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Health

			err := client.Get(healthPath, &result)
			if result.Status != "" {
				output(cmd).Print(result)
			}
			return err
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show board size, generation and reset times",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Info

			if err := client.Get("/api/v1/info", &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}
