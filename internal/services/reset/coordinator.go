package reset

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mcoot/tileclaim/internal/dependencies/clock"
	"github.com/mcoot/tileclaim/internal/dependencies/random"
	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/notify"
	"github.com/mcoot/tileclaim/internal/storage"
)

// Reasons carried by board_reset events
const (
	TriggerBoardFull = "board_full"
	TriggerForced    = "forced"
	TriggerScheduled = "scheduled"
)

// Config controls the coordinator
type Config struct {
	StoreTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the coordinator
func DefaultConfig() Config {
	return Config{StoreTimeout: 5 * time.Second}
}

// Coordinator resets the board when it is full, when forced, or on schedule.
// Concurrent callers race on the board generation: exactly one reset per
// generation commits and the others report already_reset.
type Coordinator struct {
	cfg         Config
	store       storage.BoardStore
	broadcaster notify.Broadcaster
	clock       clock.Clock
	random      random.Random
	logger      *slog.Logger
}

// NewCoordinator creates a new reset Coordinator
func NewCoordinator(
	cfg Config,
	store storage.BoardStore,
	broadcaster notify.Broadcaster,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		store:       store,
		broadcaster: broadcaster,
		clock:       clock,
		random:      random,
		logger:      logger,
	}
}

// CheckAndReset resets the board if every tile is claimed, or
// unconditionally when force is set.
func (c *Coordinator) CheckAndReset(ctx context.Context, force bool) (*model.ResetOutcome, error) {
	trigger := TriggerBoardFull
	if force {
		trigger = TriggerForced
	}
	return c.run(ctx, trigger, func(board *model.Board) string {
		if !force && !board.AllClaimed() {
			return model.ResetReasonBoardNotFull
		}
		return ""
	})
}

// ResetSince forces a reset unless the board has already been reset at or
// after boundary.
func (c *Coordinator) ResetSince(ctx context.Context, boundary time.Time) (*model.ResetOutcome, error) {
	return c.run(ctx, TriggerScheduled, func(board *model.Board) string {
		if board.ResetAt != nil && !board.ResetAt.Before(boundary) {
			return model.ResetReasonAlreadyReset
		}
		return ""
	})
}

// run performs a reset unless skip returns a reason
func (c *Coordinator) run(ctx context.Context, trigger string, skip func(*model.Board) string) (*model.ResetOutcome, error) {
	board, err := storage.Call(ctx, c.cfg.StoreTimeout, c.store.GetBoard)
	if err != nil {
		return nil, err
	}

	if board.Size() == 0 {
		return skipped(board, model.ResetReasonEmptyBoard), nil
	}
	if reason := skip(board); reason != "" {
		return skipped(board, reason), nil
	}

	now := c.clock.Now()
	perm := random.Permutation(c.random, board.Size())
	assignment := make(map[model.TileID]int, board.Size())
	for i, tile := range board.Tiles {
		assignment[tile.ID] = perm[i]
	}

	cmd := model.ResetCommand{
		ExpectedGeneration: board.Generation,
		Assignment:         assignment,
		At:                 now,
	}
	next, err := storage.Call(ctx, c.cfg.StoreTimeout, func(ctx context.Context) (*model.Board, error) {
		return c.store.ResetAll(ctx, cmd)
	})
	if errors.Is(err, model.ErrGenerationConflict) {
		c.logger.Info("reset lost race",
			slog.String("trigger", trigger),
			slog.Int64("generation", board.Generation),
		)
		return &model.ResetOutcome{
			Status:     model.ResetStatusSkipped,
			Reason:     model.ResetReasonAlreadyReset,
			Generation: board.Generation + 1,
		}, nil
	}
	if err != nil {
		c.logger.Error("reset failed",
			slog.String("trigger", trigger),
			slog.Int64("generation", board.Generation),
			slog.String("error", err.Error()),
		)
		return nil, &model.ResetError{
			Generation:  board.Generation,
			FailedTiles: board.TileIDs(),
			Err:         err,
		}
	}

	c.logger.Info("board reset",
		slog.String("trigger", trigger),
		slog.Int64("generation", next.Generation),
		slog.Int("tiles", next.Size()),
	)

	err = c.broadcaster.Publish(ctx, model.BoardTopic, model.Event{
		Type:       model.EventBoardReset,
		Timestamp:  now,
		Generation: next.Generation,
		Payload: model.BoardResetPayload{
			Forced:    trigger != TriggerBoardFull,
			Reason:    trigger,
			TileCount: next.Size(),
		},
	})
	if err != nil {
		c.logger.Warn("failed to broadcast reset", slog.String("error", err.Error()))
	}

	return &model.ResetOutcome{
		Status:     model.ResetStatusReset,
		Generation: next.Generation,
		ResetAt:    next.ResetAt,
	}, nil
}

func skipped(board *model.Board, reason string) *model.ResetOutcome {
	return &model.ResetOutcome{
		Status:     model.ResetStatusSkipped,
		Reason:     reason,
		Generation: board.Generation,
		ResetAt:    board.ResetAt,
	}
}
