package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/tileclaim/internal/dependencies/clock"
	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/notify"
	"github.com/mcoot/tileclaim/internal/storage"
	"github.com/mcoot/tileclaim/internal/tasks"
)

// CooldownPolicy maps a tile rating to the wait imposed after claiming it
type CooldownPolicy interface {
	For(rating int) time.Duration
}

// ResetChecker re-evaluates whether the board should be reset
type ResetChecker interface {
	CheckAndReset(ctx context.Context, force bool) (*model.ResetOutcome, error)
}

// TaskSubmitter runs work after the claim has been answered. Submit may
// drop work under load; Signal coalesces but never drops while running.
type TaskSubmitter interface {
	Submit(name string, fn tasks.Func) bool
	Signal(name string, fn tasks.Func) bool
}

// Config controls the arbiter
type Config struct {
	// StoreTimeout bounds every store call made for one claim
	StoreTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the arbiter
func DefaultConfig() Config {
	return Config{StoreTimeout: 2 * time.Second}
}

// Arbiter executes claim attempts. Exactly one claim per tile per board
// generation succeeds; the store's conditional update decides the winner.
type Arbiter struct {
	cfg         Config
	store       storage.BoardStore
	policy      CooldownPolicy
	broadcaster notify.Broadcaster
	resets      ResetChecker
	tasks       TaskSubmitter
	clock       clock.Clock
	logger      *slog.Logger
}

// NewArbiter creates a new claim Arbiter
func NewArbiter(
	cfg Config,
	store storage.BoardStore,
	policy CooldownPolicy,
	broadcaster notify.Broadcaster,
	resets ResetChecker,
	tasks TaskSubmitter,
	clock clock.Clock,
	logger *slog.Logger,
) *Arbiter {
	return &Arbiter{
		cfg:         cfg,
		store:       store,
		policy:      policy,
		broadcaster: broadcaster,
		resets:      resets,
		tasks:       tasks,
		clock:       clock,
		logger:      logger,
	}
}

// Claim attempts to assign tileID to userID.
//
// On success the tile and the profile's score and cooldown have been
// committed. The claim event and the reset check are queued and run after
// Claim returns. A store timeout is reported as model.ErrStoreUnavailable
// and is not retried: the caller may retry, and a retry of a claim that did
// commit reports model.ErrAlreadyClaimed.
func (a *Arbiter) Claim(ctx context.Context, userID model.ProfileID, tileID model.TileID) (*model.ClaimResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", model.ErrInvalidRequest)
	}
	if tileID == "" {
		return nil, fmt.Errorf("%w: tile id is required", model.ErrInvalidRequest)
	}

	now := a.clock.Now()

	profile, err := storage.Call(ctx, a.cfg.StoreTimeout, func(ctx context.Context) (*model.Profile, error) {
		return a.store.GetProfile(ctx, userID)
	})
	if err != nil {
		return nil, a.rejected(userID, tileID, err)
	}

	tile, err := storage.Call(ctx, a.cfg.StoreTimeout, func(ctx context.Context) (*model.Tile, error) {
		return a.store.GetTile(ctx, tileID)
	})
	if err != nil {
		return nil, a.rejected(userID, tileID, err)
	}

	// Cheap rejection before the atomic attempt; the store re-checks
	if err := model.CheckClaim(profile, tile, now); err != nil {
		return nil, a.rejected(userID, tileID, err)
	}

	cmd := model.ClaimCommand{
		TileID:        tileID,
		ProfileID:     userID,
		At:            now,
		CooldownUntil: now.Add(a.policy.For(tile.Rating)),
	}
	result, err := storage.Call(ctx, a.cfg.StoreTimeout, func(ctx context.Context) (*model.ClaimResult, error) {
		return a.store.ClaimTile(ctx, cmd)
	})
	if err != nil {
		return nil, a.rejected(userID, tileID, err)
	}

	a.logger.Info("tile claimed",
		slog.String("tile_id", string(tileID)),
		slog.String("user_id", string(userID)),
		slog.Int("rating", result.Tile.Rating),
		slog.Int("score", result.Score),
		slog.Int64("generation", result.Generation),
		slog.Time("cooldown_until", result.CooldownUntil),
	)

	a.afterClaim(cmd, result)
	return result, nil
}

// afterClaim queues the claim broadcast and signals the completion check.
// Owner and time come from the command that committed.
func (a *Arbiter) afterClaim(cmd model.ClaimCommand, result *model.ClaimResult) {
	event := model.Event{
		Type:       model.EventTileClaimed,
		Timestamp:  cmd.At,
		Generation: result.Generation,
		Payload: model.TileClaimedPayload{
			TileID:    cmd.TileID,
			Index:     result.Tile.Index,
			ClaimedBy: cmd.ProfileID,
			ClaimedAt: cmd.At,
			Rating:    result.Tile.Rating,
			Score:     result.Score,
		},
	}

	a.tasks.Submit("broadcast "+string(model.EventTileClaimed), func(ctx context.Context) error {
		return a.broadcaster.Publish(ctx, model.BoardTopic, event)
	})
	a.SignalResetCheck()
}

// SignalResetCheck asks for the board to be checked for completion.
// A dropped check would leave a full board waiting for the schedule, so
// the check is signalled rather than submitted.
func (a *Arbiter) SignalResetCheck() {
	a.tasks.Signal("reset check", func(ctx context.Context) error {
		_, err := a.resets.CheckAndReset(ctx, false)
		return err
	})
}

func (a *Arbiter) rejected(userID model.ProfileID, tileID model.TileID, err error) error {
	if errors.Is(err, model.ErrStoreUnavailable) {
		a.logger.Error("claim failed",
			slog.String("tile_id", string(tileID)),
			slog.String("user_id", string(userID)),
			slog.String("error", err.Error()),
		)
		return err
	}
	a.logger.Debug("claim rejected",
		slog.String("tile_id", string(tileID)),
		slog.String("user_id", string(userID)),
		slog.String("reason", err.Error()),
	)
	return err
}
