package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/storage/memory"
	"github.com/mcoot/tileclaim/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimed(owner string, rating int, at time.Time) *model.Tile {
	id := model.ProfileID(owner)
	return &model.Tile{Rating: rating, ClaimedBy: &id, ClaimedAt: &at}
}

func TestBuildGroupsAndSorts(t *testing.T) {
	t0 := storagetest.BaseTime
	tiles := []*model.Tile{
		claimed("A", 90, t0),
		claimed("B", 80, t0.Add(time.Minute)),
		claimed("A", 70, t0.Add(2*time.Minute)),
		{Rating: 60},
	}
	profiles := []*model.Profile{
		{ID: "A", Username: "alice", DisplayColor: "#ff0000"},
		{ID: "B", Username: "bob", DisplayColor: "#00ff00"},
	}

	entries := Build(tiles, profiles)

	require.Len(t, entries, 2)
	assert.Equal(t, model.ProfileID("A"), entries[0].ProfileID)
	assert.Equal(t, "alice", entries[0].Name)
	assert.Equal(t, "#ff0000", entries[0].Color)
	assert.Equal(t, 160, entries[0].Score)
	assert.Equal(t, 2, entries[0].TileCount)
	assert.Equal(t, t0.Add(2*time.Minute), entries[0].LastClaimAt)

	assert.Equal(t, model.ProfileID("B"), entries[1].ProfileID)
	assert.Equal(t, 80, entries[1].Score)
	assert.Equal(t, 1, entries[1].TileCount)
}

func TestBuildEmptyBoard(t *testing.T) {
	entries := Build(nil, nil)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	entries = Build([]*model.Tile{{Rating: 99}}, nil)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestBuildUnknownOwnerFallsBackToDefaultName(t *testing.T) {
	entries := Build([]*model.Tile{claimed("ghost", 50, storagetest.BaseTime)}, nil)
	require.Len(t, entries, 1)
	assert.Equal(t, DefaultName, entries[0].Name)
	assert.Empty(t, entries[0].Color)
}

func TestBuildTieBreaks(t *testing.T) {
	t0 := storagetest.BaseTime
	tiles := []*model.Tile{
		claimed("late", 80, t0.Add(time.Hour)),
		claimed("early", 80, t0),
		claimed("z", 60, t0.Add(time.Minute)),
		claimed("y", 60, t0.Add(time.Minute)),
	}

	entries := Build(tiles, nil)

	ids := make([]model.ProfileID, len(entries))
	for i, e := range entries {
		ids[i] = e.ProfileID
	}
	assert.Equal(t, []model.ProfileID{"early", "late", "y", "z"}, ids)
}

func TestServiceGet(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.SeedTiles(ctx, storagetest.Tiles(3))
	require.NoError(t, err)
	_, err = store.CreateProfile(ctx, &model.Profile{ID: "alice", Username: "alice", DisplayColor: "#123456"})
	require.NoError(t, err)

	svc := NewService(store, time.Second)

	entries, generation, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int64(0), generation)

	_, err = store.ClaimTile(ctx, model.ClaimCommand{
		TileID:        "tile-02",
		ProfileID:     "alice",
		At:            storagetest.BaseTime,
		CooldownUntil: storagetest.BaseTime.Add(time.Minute),
	})
	require.NoError(t, err)

	entries, _, err = svc.Get(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Name)
	assert.Equal(t, 52, entries[0].Score)
}
