// Package roster loads the footballer roster and seeds the board from it.
package roster

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/storage"
)

//go:embed roster.json
var defaultRoster []byte

// Entry is one footballer in the roster file
type Entry struct {
	TileIndex   int    `json:"tile_index"`
	Name        string `json:"name"`
	Overall     int    `json:"overall"`
	ImageURL    string `json:"image_url"`
	Nationality string `json:"nationality"`
}

// Default returns the roster built into the binary
func Default() ([]Entry, error) {
	return Parse(defaultRoster)
}

// Parse decodes and validates a JSON roster
func Parse(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode roster: %w", err)
	}
	if err := Validate(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadFile reads a roster from a JSON file
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}
	return Parse(data)
}

// Validate checks that a roster fits on one board
func Validate(entries []Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("roster is empty")
	}
	if len(entries) > model.MaxTiles {
		return fmt.Errorf("roster has %d entries, at most %d fit on the board", len(entries), model.MaxTiles)
	}
	seen := make([]bool, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("roster entry %d has no name", i)
		}
		if e.Overall < 0 || e.Overall > 99 {
			return fmt.Errorf("roster entry %q has rating %d outside 0-99", e.Name, e.Overall)
		}
		if e.TileIndex < 0 || e.TileIndex >= len(entries) || seen[e.TileIndex] {
			return fmt.Errorf("roster entry %q has invalid tile index %d", e.Name, e.TileIndex)
		}
		seen[e.TileIndex] = true
	}
	return nil
}

// Seeder creates the board from a roster
type Seeder struct {
	store   storage.BoardStore
	logger  *slog.Logger
	timeout time.Duration
	newID   func() string
}

// NewSeeder creates a new Seeder
func NewSeeder(store storage.BoardStore, logger *slog.Logger, timeout time.Duration) *Seeder {
	return &Seeder{
		store:   store,
		logger:  logger,
		timeout: timeout,
		newID:   uuid.NewString,
	}
}

// Seed inserts one tile per entry. Nothing is written if the board already
// has tiles; the returned flag reports whether seeding happened.
func (s *Seeder) Seed(ctx context.Context, entries []Entry) (bool, error) {
	if err := Validate(entries); err != nil {
		return false, err
	}

	tiles := make([]*model.Tile, len(entries))
	for i, e := range entries {
		tiles[i] = &model.Tile{
			ID:          model.TileID(s.newID()),
			Index:       e.TileIndex,
			PlayerName:  e.Name,
			Rating:      e.Overall,
			ImageRef:    e.ImageURL,
			Nationality: e.Nationality,
		}
	}

	seeded, err := storage.Call(ctx, s.timeout, func(ctx context.Context) (bool, error) {
		return s.store.SeedTiles(ctx, tiles)
	})
	if err != nil {
		return false, fmt.Errorf("failed to seed board: %w", err)
	}

	if seeded {
		s.logger.Info("board seeded", slog.Int("tiles", len(tiles)))
	} else {
		s.logger.Info("tiles already exist, skipping seeding")
	}
	return seeded, nil
}
