package storage

import (
	"context"
	"fmt"

	"github.com/mcoot/tileclaim/internal/model"
)

// BoardStore holds tiles, profiles and board metadata.
//
// Every cross-request guarantee of the game is expressed as an atomic
// operation here: ClaimTile and ResetAll must each commit as a single
// indivisible unit. Domain outcomes are reported with the sentinel errors
// from the model package; any other error is a store failure.
type BoardStore interface {
	// Board operations
	GetBoard(ctx context.Context) (*model.Board, error)
	GetTile(ctx context.Context, id model.TileID) (*model.Tile, error)
	SeedTiles(ctx context.Context, tiles []*model.Tile) (bool, error)

	// ClaimTile sets the tile's owner only if it is unclaimed and the
	// profile is off cooldown, and persists the profile's recomputed
	// score and new cooldown in the same unit of work.
	ClaimTile(ctx context.Context, cmd model.ClaimCommand) (*model.ClaimResult, error)

	// ResetAll clears every claim and applies the new index assignment,
	// only while the board is still at cmd.ExpectedGeneration. Returns
	// model.ErrGenerationConflict when another reset committed first.
	ResetAll(ctx context.Context, cmd model.ResetCommand) (*model.Board, error)

	// Profile operations
	GetProfile(ctx context.Context, id model.ProfileID) (*model.Profile, error)
	ListProfiles(ctx context.Context) ([]*model.Profile, error)
	CreateProfile(ctx context.Context, profile *model.Profile) (*model.Profile, error)
	UpdateProfile(ctx context.Context, profile *model.Profile) error

	Ping(ctx context.Context) error
}

// ValidateAssignment checks that assignment maps every tile to a distinct
// index in 0..len(ids)-1.
func ValidateAssignment(ids []model.TileID, assignment map[model.TileID]int) error {
	if len(assignment) != len(ids) {
		return fmt.Errorf("%w: %d indexes for %d tiles", model.ErrInvalidAssignment, len(assignment), len(ids))
	}
	used := make([]bool, len(ids))
	for _, id := range ids {
		idx, ok := assignment[id]
		if !ok {
			return fmt.Errorf("%w: tile %s has no index", model.ErrInvalidAssignment, id)
		}
		if idx < 0 || idx >= len(ids) || used[idx] {
			return fmt.Errorf("%w: index %d for tile %s", model.ErrInvalidAssignment, idx, id)
		}
		used[idx] = true
	}
	return nil
}
