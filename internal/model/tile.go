package model

import "time"

// TileID uniquely identifies a tile across board generations
type TileID string

// ProfileID uniquely identifies a player profile
type ProfileID string

// MaxTiles is the largest board the roster may seed
const MaxTiles = 100

// Tile is one claimable card on the board.
// ClaimedBy and ClaimedAt are either both nil or both set.
type Tile struct {
	ID    TileID
	Index int // Position on the board, unique within a generation

	// Display metadata, immutable after seeding
	PlayerName  string
	Rating      int // 0-99
	ImageRef    string
	Nationality string

	ClaimedBy *ProfileID
	ClaimedAt *time.Time
}

// IsClaimed returns true if the tile has an owner
func (t *Tile) IsClaimed() bool {
	return t.ClaimedBy != nil
}

// IsClaimedBy returns true if the tile is owned by the given profile
func (t *Tile) IsClaimedBy(id ProfileID) bool {
	return t.ClaimedBy != nil && *t.ClaimedBy == id
}

// Clone returns a deep copy so callers cannot mutate stored state
func (t *Tile) Clone() *Tile {
	c := *t
	if t.ClaimedBy != nil {
		owner := *t.ClaimedBy
		c.ClaimedBy = &owner
	}
	if t.ClaimedAt != nil {
		at := *t.ClaimedAt
		c.ClaimedAt = &at
	}
	return &c
}

// Board is a consistent snapshot of every tile in one generation
type Board struct {
	Generation int64
	ResetAt    *time.Time // nil until the first reset
	Tiles      []*Tile    // Ordered by Index
}

// Size returns the number of tiles on the board
func (b *Board) Size() int {
	return len(b.Tiles)
}

// UnclaimedCount returns the number of tiles without an owner
func (b *Board) UnclaimedCount() int {
	n := 0
	for _, t := range b.Tiles {
		if !t.IsClaimed() {
			n++
		}
	}
	return n
}

// AllClaimed returns true if every tile has an owner.
// An empty board is never considered full.
func (b *Board) AllClaimed() bool {
	return len(b.Tiles) > 0 && b.UnclaimedCount() == 0
}

// TileIDs returns the ids of every tile on the board
func (b *Board) TileIDs() []TileID {
	ids := make([]TileID, len(b.Tiles))
	for i, t := range b.Tiles {
		ids[i] = t.ID
	}
	return ids
}
