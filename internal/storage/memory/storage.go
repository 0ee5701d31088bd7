package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/storage"
)

// Storage is an in-memory implementation of the board store.
// A single mutex makes every claim and reset atomic within the process.
type Storage struct {
	mu sync.RWMutex

	tiles         map[model.TileID]*model.Tile
	profiles      map[model.ProfileID]*model.Profile
	usernameIndex map[string]model.ProfileID
	generation    int64
	resetAt       *time.Time
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		tiles:         make(map[model.TileID]*model.Tile),
		profiles:      make(map[model.ProfileID]*model.Profile),
		usernameIndex: make(map[string]model.ProfileID),
	}
}

// Ensure Storage implements the interface
var _ storage.BoardStore = (*Storage)(nil)

// Board operations

func (s *Storage) GetBoard(ctx context.Context) (*model.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(), nil
}

func (s *Storage) GetTile(ctx context.Context, id model.TileID) (*model.Tile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tile, ok := s.tiles[id]
	if !ok {
		return nil, model.ErrTileNotFound
	}
	return tile.Clone(), nil
}

func (s *Storage) SeedTiles(ctx context.Context, tiles []*model.Tile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tiles) > 0 {
		return false, nil
	}

	indexes := make(map[int]bool, len(tiles))
	for _, t := range tiles {
		if indexes[t.Index] {
			return false, fmt.Errorf("duplicate tile index %d", t.Index)
		}
		indexes[t.Index] = true
	}
	for _, t := range tiles {
		s.tiles[t.ID] = t.Clone()
	}
	return true, nil
}

func (s *Storage) ClaimTile(ctx context.Context, cmd model.ClaimCommand) (*model.ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[cmd.ProfileID]
	if !ok {
		return nil, model.ErrProfileNotFound
	}
	tile, ok := s.tiles[cmd.TileID]
	if !ok {
		return nil, model.ErrTileNotFound
	}
	if err := model.CheckClaim(profile, tile, cmd.At); err != nil {
		return nil, err
	}

	owner := cmd.ProfileID
	at := cmd.At
	tile.ClaimedBy = &owner
	tile.ClaimedAt = &at

	score := 0
	for _, t := range s.tiles {
		if t.IsClaimedBy(owner) {
			score += t.Rating
		}
	}
	until := cmd.CooldownUntil
	profile.Score = score
	profile.CooldownUntil = &until
	profile.UpdatedAt = cmd.At

	return &model.ClaimResult{
		Tile:          tile.Clone(),
		Score:         score,
		CooldownUntil: until,
		Generation:    s.generation,
	}, nil
}

func (s *Storage) ResetAll(ctx context.Context, cmd model.ResetCommand) (*model.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != cmd.ExpectedGeneration {
		return nil, model.ErrGenerationConflict
	}
	ids := make([]model.TileID, 0, len(s.tiles))
	for id := range s.tiles {
		ids = append(ids, id)
	}
	if err := storage.ValidateAssignment(ids, cmd.Assignment); err != nil {
		return nil, err
	}

	for id, t := range s.tiles {
		t.ClaimedBy = nil
		t.ClaimedAt = nil
		t.Index = cmd.Assignment[id]
	}
	at := cmd.At
	s.generation++
	s.resetAt = &at
	return s.snapshot(), nil
}

// Profile operations

func (s *Storage) GetProfile(ctx context.Context, id model.ProfileID) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[id]
	if !ok {
		return nil, model.ErrProfileNotFound
	}
	return profile.Clone(), nil
}

func (s *Storage) ListProfiles(ctx context.Context) ([]*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profiles := make([]*model.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		profiles = append(profiles, p.Clone())
	}
	sort.Slice(profiles, func(i, j int) bool {
		if !profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
		}
		return profiles[i].ID < profiles[j].ID
	})
	return profiles, nil
}

func (s *Storage) CreateProfile(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[profile.ID]; ok {
		return existing.Clone(), nil
	}
	key := strings.ToLower(profile.Username)
	if _, taken := s.usernameIndex[key]; taken {
		return nil, model.ErrUsernameTaken
	}
	s.profiles[profile.ID] = profile.Clone()
	s.usernameIndex[key] = profile.ID
	return profile.Clone(), nil
}

func (s *Storage) UpdateProfile(ctx context.Context, profile *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.profiles[profile.ID]
	if !ok {
		return model.ErrProfileNotFound
	}
	existing.DisplayColor = profile.DisplayColor
	existing.UpdatedAt = profile.UpdatedAt
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

// snapshot must be called with the lock held
func (s *Storage) snapshot() *model.Board {
	tiles := make([]*model.Tile, 0, len(s.tiles))
	for _, t := range s.tiles {
		tiles = append(tiles, t.Clone())
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Index < tiles[j].Index })

	board := &model.Board{Generation: s.generation, Tiles: tiles}
	if s.resetAt != nil {
		at := *s.resetAt
		board.ResetAt = &at
	}
	return board
}
