// Package profile manages player profiles.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mcoot/tileclaim/internal/dependencies/clock"
	"github.com/mcoot/tileclaim/internal/dependencies/random"
	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/storage"
)

// MaxUsernameLength is the longest accepted username, in characters
const MaxUsernameLength = 24

// Palette holds the colours handed out when a player does not pick one
var Palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
	"#008080", "#e6beff", "#9a6324", "#800000", "#aaffc3",
	"#808000", "#000075", "#808080",
}

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// JoinRequest creates a profile, or returns the caller's existing one
type JoinRequest struct {
	// ID is the profile the caller already holds a token for, if any
	ID       model.ProfileID
	Username string
	Color    string
}

// Service manages profiles
type Service struct {
	store   storage.BoardStore
	clock   clock.Clock
	random  random.Random
	logger  *slog.Logger
	timeout time.Duration
	newID   func() string
}

// NewService creates a new profile Service
func NewService(
	store storage.BoardStore,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
	timeout time.Duration,
) *Service {
	return &Service{
		store:   store,
		clock:   clock,
		random:  random,
		logger:  logger,
		timeout: timeout,
		newID:   uuid.NewString,
	}
}

// Join is an idempotent upsert. A caller that already has a profile gets it
// back unchanged; otherwise a new profile is created. Usernames are unique
// regardless of case and the first writer keeps a name.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*model.Profile, bool, error) {
	if req.ID != "" {
		existing, err := s.Get(ctx, req.ID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, model.ErrProfileNotFound) {
			return nil, false, err
		}
	}

	username := strings.TrimSpace(req.Username)
	if err := ValidateUsername(username); err != nil {
		return nil, false, err
	}
	color := req.Color
	if color == "" {
		color = Palette[s.random.Intn(len(Palette))]
	}
	if err := ValidateColor(color); err != nil {
		return nil, false, err
	}

	now := s.clock.Now()
	profile := &model.Profile{
		ID:           model.ProfileID(s.newID()),
		Username:     username,
		DisplayColor: strings.ToLower(color),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := storage.Call(ctx, s.timeout, func(ctx context.Context) (*model.Profile, error) {
		return s.store.CreateProfile(ctx, profile)
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("profile created",
		slog.String("profile_id", string(created.ID)),
		slog.String("username", created.Username),
	)
	return created, true, nil
}

// Get returns a profile with its score recomputed from current ownership
func (s *Service) Get(ctx context.Context, id model.ProfileID) (*model.Profile, error) {
	profile, err := storage.Call(ctx, s.timeout, func(ctx context.Context) (*model.Profile, error) {
		return s.store.GetProfile(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	board, err := storage.Call(ctx, s.timeout, s.store.GetBoard)
	if err != nil {
		return nil, err
	}
	profile.Score = model.ScoreFor(board.Tiles, id)
	return profile, nil
}

// UpdateColor changes the profile's display colour
func (s *Service) UpdateColor(ctx context.Context, id model.ProfileID, color string) (*model.Profile, error) {
	if err := ValidateColor(color); err != nil {
		return nil, err
	}

	profile, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	profile.DisplayColor = strings.ToLower(color)
	profile.UpdatedAt = s.clock.Now()

	err = storage.Exec(ctx, s.timeout, func(ctx context.Context) error {
		return s.store.UpdateProfile(ctx, profile)
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// ValidateUsername checks a trimmed username
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n == 0 {
		return fmt.Errorf("%w: username is required", model.ErrInvalidRequest)
	}
	if n > MaxUsernameLength {
		return fmt.Errorf("%w: username must be at most %d characters", model.ErrInvalidRequest, MaxUsernameLength)
	}
	return nil
}

// ValidateColor checks a #RRGGBB colour
func ValidateColor(color string) error {
	if !colorPattern.MatchString(color) {
		return fmt.Errorf("%w: color must be #RRGGBB", model.ErrInvalidRequest)
	}
	return nil
}
