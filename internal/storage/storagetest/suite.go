// Package storagetest holds the behaviour every BoardStore backend must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/storage"
	"github.com/stretchr/testify/suite"
)

// BaseTime is the fixed instant the suite's scenarios start from
var BaseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// BoardStoreSuite runs the shared contract against a fresh store per test
type BoardStoreSuite struct {
	suite.Suite
	NewStore func(t *testing.T) storage.BoardStore

	store storage.BoardStore
	ctx   context.Context
}

func (s *BoardStoreSuite) SetupTest() {
	s.store = s.NewStore(s.T())
	s.ctx = context.Background()
}

// Tiles builds n unclaimed tiles with ratings 50+i
func Tiles(n int) []*model.Tile {
	tiles := make([]*model.Tile, n)
	for i := 0; i < n; i++ {
		tiles[i] = &model.Tile{
			ID:          model.TileID(fmt.Sprintf("tile-%02d", i)),
			Index:       i,
			PlayerName:  fmt.Sprintf("Player %d", i),
			Rating:      50 + i,
			ImageRef:    fmt.Sprintf("https://img.example/%d.png", i),
			Nationality: "Brazil",
		}
	}
	return tiles
}

func (s *BoardStoreSuite) seed(n int) []*model.Tile {
	tiles := Tiles(n)
	seeded, err := s.store.SeedTiles(s.ctx, tiles)
	s.Require().NoError(err)
	s.Require().True(seeded)
	return tiles
}

func (s *BoardStoreSuite) createProfile(id, username string) *model.Profile {
	p, err := s.store.CreateProfile(s.ctx, &model.Profile{
		ID:           model.ProfileID(id),
		Username:     username,
		DisplayColor: "#112233",
		CreatedAt:    BaseTime,
		UpdatedAt:    BaseTime,
	})
	s.Require().NoError(err)
	return p
}

func (s *BoardStoreSuite) claim(tile, profile string, at time.Time) (*model.ClaimResult, error) {
	return s.store.ClaimTile(s.ctx, model.ClaimCommand{
		TileID:        model.TileID(tile),
		ProfileID:     model.ProfileID(profile),
		At:            at,
		CooldownUntil: at.Add(time.Minute),
	})
}

func identity(tiles []*model.Tile) map[model.TileID]int {
	assignment := make(map[model.TileID]int, len(tiles))
	for i, t := range tiles {
		assignment[t.ID] = i
	}
	return assignment
}

func reversed(tiles []*model.Tile) map[model.TileID]int {
	assignment := make(map[model.TileID]int, len(tiles))
	for i, t := range tiles {
		assignment[t.ID] = len(tiles) - 1 - i
	}
	return assignment
}

// Board tests

func (s *BoardStoreSuite) TestEmptyBoard() {
	board, err := s.store.GetBoard(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(0), board.Generation)
	s.Empty(board.Tiles)
	s.Nil(board.ResetAt)
}

func (s *BoardStoreSuite) TestSeedAndGetBoard() {
	tiles := s.seed(5)

	board, err := s.store.GetBoard(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(board.Tiles, 5)
	for i, t := range board.Tiles {
		s.Equal(i, t.Index)
		s.Equal(tiles[i].ID, t.ID)
		s.Equal(tiles[i].PlayerName, t.PlayerName)
		s.Equal(tiles[i].Rating, t.Rating)
		s.Equal(tiles[i].ImageRef, t.ImageRef)
		s.Equal(tiles[i].Nationality, t.Nationality)
		s.False(t.IsClaimed())
		s.Nil(t.ClaimedAt)
	}
}

func (s *BoardStoreSuite) TestSeedSkipsWhenTilesExist() {
	s.seed(3)

	seeded, err := s.store.SeedTiles(s.ctx, Tiles(10))
	s.Require().NoError(err)
	s.False(seeded)

	board, err := s.store.GetBoard(s.ctx)
	s.Require().NoError(err)
	s.Len(board.Tiles, 3)
}

func (s *BoardStoreSuite) TestGetTile() {
	s.seed(3)

	tile, err := s.store.GetTile(s.ctx, "tile-01")
	s.Require().NoError(err)
	s.Equal(51, tile.Rating)

	_, err = s.store.GetTile(s.ctx, "missing")
	s.ErrorIs(err, model.ErrTileNotFound)
}

// Claim tests

func (s *BoardStoreSuite) TestClaimTile() {
	s.seed(3)
	s.createProfile("alice", "Alice")

	result, err := s.claim("tile-02", "alice", BaseTime)
	s.Require().NoError(err)
	s.Equal(52, result.Score)
	s.True(result.CooldownUntil.Equal(BaseTime.Add(time.Minute)))
	s.True(result.Tile.IsClaimedBy("alice"))
	s.True(result.Tile.ClaimedAt.Equal(BaseTime))

	tile, err := s.store.GetTile(s.ctx, "tile-02")
	s.Require().NoError(err)
	s.True(tile.IsClaimedBy("alice"))

	profile, err := s.store.GetProfile(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(52, profile.Score)
	s.Require().NotNil(profile.CooldownUntil)
	s.True(profile.CooldownUntil.Equal(BaseTime.Add(time.Minute)))
}

func (s *BoardStoreSuite) TestClaimAccumulatesScore() {
	s.seed(3)
	s.createProfile("alice", "Alice")

	_, err := s.claim("tile-00", "alice", BaseTime)
	s.Require().NoError(err)

	result, err := s.claim("tile-01", "alice", BaseTime.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Equal(50+51, result.Score)
}

func (s *BoardStoreSuite) TestClaimProfileNotFound() {
	s.seed(1)
	_, err := s.claim("tile-00", "ghost", BaseTime)
	s.ErrorIs(err, model.ErrProfileNotFound)
}

func (s *BoardStoreSuite) TestClaimTileNotFound() {
	s.seed(1)
	s.createProfile("alice", "Alice")
	_, err := s.claim("missing", "alice", BaseTime)
	s.ErrorIs(err, model.ErrTileNotFound)
}

func (s *BoardStoreSuite) TestClaimAlreadyClaimedByOther() {
	s.seed(1)
	s.createProfile("alice", "Alice")
	s.createProfile("bob", "Bob")

	_, err := s.claim("tile-00", "alice", BaseTime)
	s.Require().NoError(err)

	_, err = s.claim("tile-00", "bob", BaseTime)
	s.ErrorIs(err, model.ErrAlreadyClaimed)

	tile, err := s.store.GetTile(s.ctx, "tile-00")
	s.Require().NoError(err)
	s.True(tile.IsClaimedBy("alice"))
}

func (s *BoardStoreSuite) TestClaimRetryReportsAlreadyClaimed() {
	s.seed(1)
	s.createProfile("alice", "Alice")

	_, err := s.claim("tile-00", "alice", BaseTime)
	s.Require().NoError(err)

	// Still on cooldown, but a retry of the same claim is not a cooldown failure
	_, err = s.claim("tile-00", "alice", BaseTime.Add(time.Second))
	s.ErrorIs(err, model.ErrAlreadyClaimed)
}

func (s *BoardStoreSuite) TestClaimOnCooldown() {
	s.seed(2)
	s.createProfile("alice", "Alice")

	_, err := s.claim("tile-00", "alice", BaseTime)
	s.Require().NoError(err)

	_, err = s.claim("tile-01", "alice", BaseTime.Add(30*time.Second))
	s.ErrorIs(err, model.ErrOnCooldown)

	tile, err := s.store.GetTile(s.ctx, "tile-01")
	s.Require().NoError(err)
	s.False(tile.IsClaimed())

	_, err = s.claim("tile-01", "alice", BaseTime.Add(61*time.Second))
	s.NoError(err)
}

func (s *BoardStoreSuite) TestConcurrentClaimsSameTile() {
	const n = 20
	s.seed(1)
	for i := 0; i < n; i++ {
		s.createProfile(fmt.Sprintf("p%d", i), fmt.Sprintf("user%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.claim("tile-00", fmt.Sprintf("p%d", i), BaseTime)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		s.ErrorIs(err, model.ErrAlreadyClaimed)
	}
	s.Equal(1, successes)
}

func (s *BoardStoreSuite) TestConcurrentClaimsSameProfile() {
	const n = 10
	s.seed(n)
	s.createProfile("alice", "Alice")

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.claim(fmt.Sprintf("tile-%02d", i), "alice", BaseTime)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		s.ErrorIs(err, model.ErrOnCooldown)
	}
	s.Equal(1, successes)
}

// Reset tests

func (s *BoardStoreSuite) TestResetAll() {
	tiles := s.seed(4)
	s.createProfile("alice", "Alice")
	_, err := s.claim("tile-00", "alice", BaseTime)
	s.Require().NoError(err)

	at := BaseTime.Add(time.Hour)
	board, err := s.store.ResetAll(s.ctx, model.ResetCommand{
		ExpectedGeneration: 0,
		Assignment:         reversed(tiles),
		At:                 at,
	})
	s.Require().NoError(err)
	s.Equal(int64(1), board.Generation)
	s.Require().NotNil(board.ResetAt)
	s.True(board.ResetAt.Equal(at))
	s.Require().Len(board.Tiles, 4)
	for i, t := range board.Tiles {
		s.Equal(i, t.Index)
		s.Equal(tiles[3-i].ID, t.ID)
		s.False(t.IsClaimed())
		s.Nil(t.ClaimedAt)
	}

	// Profiles are untouched by a reset
	profile, err := s.store.GetProfile(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(50, profile.Score)

	stored, err := s.store.GetBoard(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), stored.Generation)
	s.Equal(0, stored.Tiles[0].Index)
	s.Equal(model.TileID("tile-03"), stored.Tiles[0].ID)
}

func (s *BoardStoreSuite) TestResetAllGenerationConflict() {
	tiles := s.seed(3)

	_, err := s.store.ResetAll(s.ctx, model.ResetCommand{ExpectedGeneration: 0, Assignment: identity(tiles), At: BaseTime})
	s.Require().NoError(err)

	_, err = s.store.ResetAll(s.ctx, model.ResetCommand{ExpectedGeneration: 0, Assignment: identity(tiles), At: BaseTime})
	s.ErrorIs(err, model.ErrGenerationConflict)

	board, err := s.store.GetBoard(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), board.Generation)
}

func (s *BoardStoreSuite) TestResetAllRejectsInvalidAssignment() {
	tiles := s.seed(3)
	s.createProfile("alice", "Alice")
	_, err := s.claim("tile-01", "alice", BaseTime)
	s.Require().NoError(err)

	bad := identity(tiles)
	bad["tile-02"] = 0
	_, err = s.store.ResetAll(s.ctx, model.ResetCommand{ExpectedGeneration: 0, Assignment: bad, At: BaseTime})
	s.ErrorIs(err, model.ErrInvalidAssignment)

	// Nothing was applied
	board, err := s.store.GetBoard(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(0), board.Generation)
	s.True(board.Tiles[1].IsClaimedBy("alice"))
}

func (s *BoardStoreSuite) TestConcurrentResets() {
	const n = 8
	tiles := s.seed(10)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.store.ResetAll(s.ctx, model.ResetCommand{
				ExpectedGeneration: 0,
				Assignment:         reversed(tiles),
				At:                 BaseTime,
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		s.ErrorIs(err, model.ErrGenerationConflict)
	}
	s.Equal(1, successes)

	board, err := s.store.GetBoard(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), board.Generation)
}

func (s *BoardStoreSuite) TestClaimAfterReset() {
	tiles := s.seed(2)
	s.createProfile("alice", "Alice")
	s.createProfile("bob", "Bob")

	_, err := s.claim("tile-00", "alice", BaseTime)
	s.Require().NoError(err)
	_, err = s.store.ResetAll(s.ctx, model.ResetCommand{ExpectedGeneration: 0, Assignment: identity(tiles), At: BaseTime})
	s.Require().NoError(err)

	result, err := s.claim("tile-00", "bob", BaseTime.Add(time.Second))
	s.Require().NoError(err)
	s.Equal(int64(1), result.Generation)
	s.Equal(50, result.Score)
}

// Profile tests

func (s *BoardStoreSuite) TestCreateAndGetProfile() {
	s.createProfile("alice", "Alice")

	profile, err := s.store.GetProfile(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal("Alice", profile.Username)
	s.Equal("#112233", profile.DisplayColor)
	s.Equal(0, profile.Score)
	s.Nil(profile.CooldownUntil)
	s.True(profile.CreatedAt.Equal(BaseTime))
}

func (s *BoardStoreSuite) TestGetProfileNotFound() {
	_, err := s.store.GetProfile(s.ctx, "ghost")
	s.ErrorIs(err, model.ErrProfileNotFound)
}

func (s *BoardStoreSuite) TestCreateProfileIsIdempotent() {
	s.createProfile("alice", "Alice")

	again, err := s.store.CreateProfile(s.ctx, &model.Profile{
		ID:           "alice",
		Username:     "Renamed",
		DisplayColor: "#000000",
		CreatedAt:    BaseTime.Add(time.Hour),
	})
	s.Require().NoError(err)
	s.Equal("Alice", again.Username)
	s.Equal("#112233", again.DisplayColor)
}

func (s *BoardStoreSuite) TestCreateProfileUsernameTaken() {
	s.createProfile("alice", "Alice")

	_, err := s.store.CreateProfile(s.ctx, &model.Profile{ID: "other", Username: "alice", CreatedAt: BaseTime})
	s.ErrorIs(err, model.ErrUsernameTaken)

	_, err = s.store.GetProfile(s.ctx, "other")
	s.ErrorIs(err, model.ErrProfileNotFound)
}

func (s *BoardStoreSuite) TestUpdateProfile() {
	s.createProfile("alice", "Alice")

	err := s.store.UpdateProfile(s.ctx, &model.Profile{ID: "alice", Username: "ignored", DisplayColor: "#abcdef", UpdatedAt: BaseTime.Add(time.Minute)})
	s.Require().NoError(err)

	profile, err := s.store.GetProfile(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal("#abcdef", profile.DisplayColor)
	s.Equal("Alice", profile.Username)

	err = s.store.UpdateProfile(s.ctx, &model.Profile{ID: "ghost", DisplayColor: "#abcdef"})
	s.ErrorIs(err, model.ErrProfileNotFound)
}

func (s *BoardStoreSuite) TestListProfiles() {
	profiles, err := s.store.ListProfiles(s.ctx)
	s.Require().NoError(err)
	s.Empty(profiles)

	s.createProfile("bob", "Bob")
	s.createProfile("alice", "Alice")

	profiles, err = s.store.ListProfiles(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(profiles, 2)
	s.Equal(model.ProfileID("alice"), profiles[0].ID)
	s.Equal(model.ProfileID("bob"), profiles[1].ID)
}

func (s *BoardStoreSuite) TestPing() {
	s.NoError(s.store.Ping(s.ctx))
}
