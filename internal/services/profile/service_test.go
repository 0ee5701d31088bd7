package profile

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tileclaim/internal/dependencies/mocks"
	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/storage/memory"
	"github.com/mcoot/tileclaim/internal/storage/storagetest"
	"github.com/mcoot/tileclaim/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	svc    *Service
	store  *memory.Storage
	clock  *mocks.MockClock
	random *mocks.MockRandom
	ctx    context.Context
	ids    int
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.clock = mocks.NewMockClock(storagetest.BaseTime)
	s.random = mocks.NewMockRandom()
	s.svc = NewService(s.store, s.clock, s.random, testutil.NopLogger(), time.Second)
	s.ids = 0
	s.svc.newID = func() string {
		s.ids++
		return fmt.Sprintf("profile-%d", s.ids)
	}
}

func (s *ServiceSuite) TestJoinCreatesProfile() {
	p, created, err := s.svc.Join(s.ctx, JoinRequest{Username: "  alice ", Color: "#AABBCC"})
	s.Require().NoError(err)
	s.True(created)
	s.Equal(model.ProfileID("profile-1"), p.ID)
	s.Equal("alice", p.Username)
	s.Equal("#aabbcc", p.DisplayColor)
	s.Equal(storagetest.BaseTime, p.CreatedAt)
	s.Equal(0, p.Score)
	s.Nil(p.CooldownUntil)
}

func (s *ServiceSuite) TestJoinPicksPaletteColor() {
	s.random.QueueIntn(3)
	p, _, err := s.svc.Join(s.ctx, JoinRequest{Username: "alice"})
	s.Require().NoError(err)
	s.Equal(Palette[3], p.DisplayColor)
}

func (s *ServiceSuite) TestJoinIsIdempotentForExistingProfile() {
	first, _, err := s.svc.Join(s.ctx, JoinRequest{Username: "alice"})
	s.Require().NoError(err)

	again, created, err := s.svc.Join(s.ctx, JoinRequest{ID: first.ID, Username: "ignored", Color: "#000000"})
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, again.ID)
	s.Equal("alice", again.Username)
	s.Equal(first.DisplayColor, again.DisplayColor)
}

func (s *ServiceSuite) TestJoinUnknownIDCreatesNewProfile() {
	p, created, err := s.svc.Join(s.ctx, JoinRequest{ID: "stale", Username: "alice"})
	s.Require().NoError(err)
	s.True(created)
	s.Equal(model.ProfileID("profile-1"), p.ID)
}

func (s *ServiceSuite) TestJoinUsernameTaken() {
	_, _, err := s.svc.Join(s.ctx, JoinRequest{Username: "alice"})
	s.Require().NoError(err)

	_, _, err = s.svc.Join(s.ctx, JoinRequest{Username: "ALICE"})
	s.ErrorIs(err, model.ErrUsernameTaken)
}

func (s *ServiceSuite) TestJoinValidation() {
	cases := []JoinRequest{
		{Username: ""},
		{Username: "   "},
		{Username: strings.Repeat("x", MaxUsernameLength+1)},
		{Username: "alice", Color: "red"},
		{Username: "alice", Color: "#12345"},
	}
	for _, req := range cases {
		_, _, err := s.svc.Join(s.ctx, req)
		s.ErrorIs(err, model.ErrInvalidRequest, "request %+v", req)
	}

	_, _, err := s.svc.Join(s.ctx, JoinRequest{Username: strings.Repeat("é", MaxUsernameLength)})
	s.NoError(err)
}

func (s *ServiceSuite) TestGetRecomputesScore() {
	p, _, err := s.svc.Join(s.ctx, JoinRequest{Username: "alice"})
	s.Require().NoError(err)
	_, err = s.store.SeedTiles(s.ctx, storagetest.Tiles(2))
	s.Require().NoError(err)
	_, err = s.store.ClaimTile(s.ctx, model.ClaimCommand{
		TileID:        "tile-01",
		ProfileID:     p.ID,
		At:            storagetest.BaseTime,
		CooldownUntil: storagetest.BaseTime.Add(time.Minute),
	})
	s.Require().NoError(err)

	got, err := s.svc.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(51, got.Score)
	s.Require().NotNil(got.CooldownUntil)

	// After a reset the cached score is stale but reads reflect the board
	board, err := s.store.GetBoard(s.ctx)
	s.Require().NoError(err)
	_, err = s.store.ResetAll(s.ctx, model.ResetCommand{
		ExpectedGeneration: board.Generation,
		Assignment:         map[model.TileID]int{"tile-00": 0, "tile-01": 1},
		At:                 storagetest.BaseTime.Add(time.Hour),
	})
	s.Require().NoError(err)

	got, err = s.svc.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(0, got.Score)
}

func (s *ServiceSuite) TestGetUnknown() {
	_, err := s.svc.Get(s.ctx, "nobody")
	s.ErrorIs(err, model.ErrProfileNotFound)
}

func (s *ServiceSuite) TestUpdateColor() {
	p, _, err := s.svc.Join(s.ctx, JoinRequest{Username: "alice", Color: "#111111"})
	s.Require().NoError(err)

	s.clock.Advance(time.Minute)
	updated, err := s.svc.UpdateColor(s.ctx, p.ID, "#22AA22")
	s.Require().NoError(err)
	s.Equal("#22aa22", updated.DisplayColor)

	stored, err := s.store.GetProfile(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal("#22aa22", stored.DisplayColor)
	s.Equal(storagetest.BaseTime.Add(time.Minute), stored.UpdatedAt)

	_, err = s.svc.UpdateColor(s.ctx, p.ID, "green")
	s.ErrorIs(err, model.ErrInvalidRequest)

	_, err = s.svc.UpdateColor(s.ctx, "nobody", "#000000")
	s.ErrorIs(err, model.ErrProfileNotFound)
}
