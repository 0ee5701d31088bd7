package model

import "time"

// LeaderboardEntry is one owner's totals for the current generation
type LeaderboardEntry struct {
	ProfileID   ProfileID
	Name        string
	Color       string
	Score       int
	TileCount   int
	LastClaimAt time.Time
}
