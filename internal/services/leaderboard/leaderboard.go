// Package leaderboard derives per-owner totals from the current board.
package leaderboard

import (
	"context"
	"sort"
	"time"

	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/storage"
)

// DefaultName is shown for owners without a profile
const DefaultName = "Player"

// Build groups claimed tiles by owner and orders owners by total rating.
// Equal scores rank the owner whose latest claim is earliest first, then
// by profile id. The result is never nil.
func Build(tiles []*model.Tile, profiles []*model.Profile) []model.LeaderboardEntry {
	byID := make(map[model.ProfileID]*model.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	totals := make(map[model.ProfileID]*model.LeaderboardEntry)
	for _, t := range tiles {
		if !t.IsClaimed() {
			continue
		}
		entry, ok := totals[*t.ClaimedBy]
		if !ok {
			entry = &model.LeaderboardEntry{ProfileID: *t.ClaimedBy, Name: DefaultName}
			if p, found := byID[*t.ClaimedBy]; found {
				entry.Name = p.Username
				entry.Color = p.DisplayColor
			}
			totals[*t.ClaimedBy] = entry
		}
		entry.Score += t.Rating
		entry.TileCount++
		if t.ClaimedAt != nil && t.ClaimedAt.After(entry.LastClaimAt) {
			entry.LastClaimAt = *t.ClaimedAt
		}
	}

	entries := make([]model.LeaderboardEntry, 0, len(totals))
	for _, e := range totals {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.LastClaimAt.Equal(b.LastClaimAt) {
			return a.LastClaimAt.Before(b.LastClaimAt)
		}
		return a.ProfileID < b.ProfileID
	})
	return entries
}

// Service reads the board and profiles and builds the leaderboard
type Service struct {
	store   storage.BoardStore
	timeout time.Duration
}

// NewService creates a new leaderboard Service
func NewService(store storage.BoardStore, timeout time.Duration) *Service {
	return &Service{store: store, timeout: timeout}
}

// Get returns the leaderboard for the current generation
func (s *Service) Get(ctx context.Context) ([]model.LeaderboardEntry, int64, error) {
	board, err := storage.Call(ctx, s.timeout, s.store.GetBoard)
	if err != nil {
		return nil, 0, err
	}
	profiles, err := storage.Call(ctx, s.timeout, s.store.ListProfiles)
	if err != nil {
		return nil, 0, err
	}
	return Build(board.Tiles, profiles), board.Generation, nil
}
