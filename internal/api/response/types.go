package response

import (
	"time"

	"github.com/mcoot/tileclaim/internal/model"
)

// Tile represents a tile in API responses
type Tile struct {
	ID          string     `json:"id"`
	Index       int        `json:"index"`
	PlayerName  string     `json:"playerName"`
	Rating      int        `json:"rating"`
	ImageURL    string     `json:"imageUrl"`
	Nationality string     `json:"nationality,omitempty"`
	ClaimedBy   *string    `json:"claimedBy"`
	ClaimedAt   *time.Time `json:"claimedAt"`
}

// TileFromModel converts a model.Tile to a response Tile
func TileFromModel(t *model.Tile) Tile {
	tile := Tile{
		ID:          string(t.ID),
		Index:       t.Index,
		PlayerName:  t.PlayerName,
		Rating:      t.Rating,
		ImageURL:    t.ImageRef,
		Nationality: t.Nationality,
		ClaimedAt:   t.ClaimedAt,
	}
	if t.ClaimedBy != nil {
		owner := string(*t.ClaimedBy)
		tile.ClaimedBy = &owner
	}
	return tile
}

// Board is the response for GET /api/v1/tiles
type Board struct {
	Generation int64      `json:"generation"`
	ResetAt    *time.Time `json:"resetAt"`
	Tiles      []Tile     `json:"tiles"`
}

// BoardFromModel converts a model.Board
func BoardFromModel(b *model.Board) Board {
	tiles := make([]Tile, len(b.Tiles))
	for i, t := range b.Tiles {
		tiles[i] = TileFromModel(t)
	}
	return Board{
		Generation: b.Generation,
		ResetAt:    b.ResetAt,
		Tiles:      tiles,
	}
}

// Claim is the response for a successful claim
type Claim struct {
	Score         int       `json:"score"`
	CooldownUntil time.Time `json:"cooldownUntil"`
	Generation    int64     `json:"generation"`
	Tile          Tile      `json:"tile"`
}

// ClaimFromModel converts a model.ClaimResult
func ClaimFromModel(r *model.ClaimResult) Claim {
	return Claim{
		Score:         r.Score,
		CooldownUntil: r.CooldownUntil,
		Generation:    r.Generation,
		Tile:          TileFromModel(r.Tile),
	}
}

// Profile represents a profile in API responses
type Profile struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Color         string     `json:"color"`
	Score         int        `json:"score"`
	CooldownUntil *time.Time `json:"cooldownUntil"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ProfileFromModel converts a model.Profile
func ProfileFromModel(p *model.Profile) Profile {
	return Profile{
		ID:            string(p.ID),
		Username:      p.Username,
		Color:         p.DisplayColor,
		Score:         p.Score,
		CooldownUntil: p.CooldownUntil,
		CreatedAt:     p.CreatedAt,
	}
}

// Join is the response for POST /api/v1/profiles
type Join struct {
	Profile        Profile   `json:"profile"`
	Token          string    `json:"token"`
	TokenExpiresAt time.Time `json:"tokenExpiresAt"`
	Created        bool      `json:"created"`
}

// LeaderboardEntry is one row of the leaderboard
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	ProfileID   string    `json:"profileId"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Score       int       `json:"score"`
	TileCount   int       `json:"tileCount"`
	LastClaimAt time.Time `json:"lastClaimAt"`
}

// Leaderboard is the response for GET /api/v1/leaderboard.
// Entries is never null.
type Leaderboard struct {
	Generation int64              `json:"generation"`
	Entries    []LeaderboardEntry `json:"entries"`
}

// LeaderboardFromModel converts ordered entries, assigning ranks by position
func LeaderboardFromModel(entries []model.LeaderboardEntry, generation int64) Leaderboard {
	out := make([]LeaderboardEntry, len(entries))
	for i, e := range entries {
		out[i] = LeaderboardEntry{
			Rank:        i + 1,
			ProfileID:   string(e.ProfileID),
			Name:        e.Name,
			Color:       e.Color,
			Score:       e.Score,
			TileCount:   e.TileCount,
			LastClaimAt: e.LastClaimAt,
		}
	}
	return Leaderboard{Generation: generation, Entries: out}
}

// Health is the response for GET /health
type Health struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Error  string `json:"error,omitempty"`
}

// Info is the response for GET /api/v1/info
type Info struct {
	BoardSize     int        `json:"boardSize"`
	Unclaimed     int        `json:"unclaimed"`
	Generation    int64      `json:"generation"`
	LastResetAt   *time.Time `json:"lastResetAt"`
	NextResetAt   *time.Time `json:"nextResetAt"`
	Observers     int        `json:"observers"`
	ServerTime    time.Time  `json:"serverTime"`
	ResetSchedule string     `json:"resetSchedule,omitempty"`
}

// Reset is the response for POST /api/v1/admin/reset
type Reset struct {
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Generation int64      `json:"generation"`
	ResetAt    *time.Time `json:"resetAt,omitempty"`
}

// ResetFromModel converts a model.ResetOutcome
func ResetFromModel(o *model.ResetOutcome) Reset {
	return Reset{
		Status:     string(o.Status),
		Reason:     o.Reason,
		Generation: o.Generation,
		ResetAt:    o.ResetAt,
	}
}
