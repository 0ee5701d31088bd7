package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/mcoot/tileclaim/internal/api/response"
)

func newTilesCmd() *cobra.Command {
	var unclaimed bool

	cmd := &cobra.Command{
		Use:   "tiles",
		Short: "List every tile on the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Board

			if err := client.Get("/api/v1/tiles", &result); err != nil {
				return err
			}

			if unclaimed {
				open := result.Tiles[:0]
				for _, t := range result.Tiles {
					if t.ClaimedBy == nil {
						open = append(open, t)
					}
				}
				result.Tiles = open
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&unclaimed, "unclaimed", false, "Only show tiles nobody owns")

	return cmd
}

func newClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <tile-id>",
		Short: "Claim a tile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Claim

			path := fmt.Sprintf("/api/v1/tiles/%s/claim", url.PathEscape(args[0]))
			if err := client.Post(path, nil, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newLeaderboardCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the leaderboard for the current board",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Leaderboard

			if err := client.Get("/api/v1/leaderboard", &result); err != nil {
				return err
			}

			if limit > 0 && len(result.Entries) > limit {
				result.Entries = result.Entries[:limit]
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many entries")

	return cmd
}
