package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/storage"
)

// maxWatchRetries bounds optimistic transactions that lose a WATCH race
const maxWatchRetries = 5

// Storage is a Redis-backed implementation of the board store.
// Claims, resets and board snapshots run as Lua scripts so each is atomic
// across every server process sharing the Redis instance.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Client exposes the underlying client so the event relay can share it
func (s *Storage) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.BoardStore = (*Storage)(nil)

// Board operations

func (s *Storage) GetBoard(ctx context.Context) (*model.Board, error) {
	res, err := boardScript.Run(ctx, s.client, []string{boardKey(), tilesKey()}, tileKeyPrefix).Slice()
	if err != nil {
		return nil, fmt.Errorf("read board: %w", err)
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("read board: unexpected reply of length %d", len(res))
	}

	board := &model.Board{}
	if board.Generation, err = strconv.ParseInt(asString(res[0]), 10, 64); err != nil {
		return nil, fmt.Errorf("parse generation: %w", err)
	}
	if at := asString(res[1]); at != "" {
		resetAt, err := parseMillis(at)
		if err != nil {
			return nil, fmt.Errorf("parse reset_at: %w", err)
		}
		board.ResetAt = &resetAt
	}
	if board.Tiles, err = parseTileReplies(res[2:]); err != nil {
		return nil, fmt.Errorf("read board: %w", err)
	}
	return board, nil
}

// parseTileReplies decodes HGETALL replies returned from a script, ordered
// by board index
func parseTileReplies(replies []interface{}) ([]*model.Tile, error) {
	tiles := make([]*model.Tile, 0, len(replies))
	for _, raw := range replies {
		tile, err := parseTileReply(raw)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, tile)
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Index < tiles[j].Index })
	return tiles, nil
}

func parseTileReply(raw interface{}) (*model.Tile, error) {
	fields, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected tile reply %T", raw)
	}
	return parseTile(pairsToMap(fields))
}

func (s *Storage) GetTile(ctx context.Context, id model.TileID) (*model.Tile, error) {
	fields, err := s.client.HGetAll(ctx, tileKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, model.ErrTileNotFound
	}
	return parseTile(fields)
}

func (s *Storage) SeedTiles(ctx context.Context, tiles []*model.Tile) (bool, error) {
	indexes := make(map[int]bool, len(tiles))
	for _, t := range tiles {
		if indexes[t.Index] {
			return false, fmt.Errorf("duplicate tile index %d", t.Index)
		}
		indexes[t.Index] = true
	}

	seeded := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.SCard(ctx, tilesKey()).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, t := range tiles {
				pipe.HSet(ctx, tileKey(t.ID), tileFields(t))
				pipe.SAdd(ctx, tilesKey(), string(t.ID))
			}
			pipe.HSetNX(ctx, boardKey(), "generation", 0)
			return nil
		})
		if err == nil {
			seeded = true
		}
		return err
	}, tilesKey())

	if errors.Is(err, redis.TxFailedErr) {
		// Another process seeded concurrently
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return seeded, nil
}

func (s *Storage) ClaimTile(ctx context.Context, cmd model.ClaimCommand) (*model.ClaimResult, error) {
	keys := []string{tileKey(cmd.TileID), profileKey(cmd.ProfileID), tilesKey(), boardKey()}
	res, err := claimScript.Run(ctx, s.client, keys,
		string(cmd.ProfileID),
		cmd.At.UnixMilli(),
		cmd.CooldownUntil.UnixMilli(),
		tileKeyPrefix,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("claim tile: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("claim tile: empty reply")
	}
	if err := codeToError(asString(res[0])); err != nil {
		return nil, err
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("claim tile: unexpected reply of length %d", len(res))
	}

	// The claim has committed; everything below comes from the script reply
	tile, err := parseTileReply(res[3])
	if err != nil {
		return nil, fmt.Errorf("claim tile: %w", err)
	}
	return &model.ClaimResult{
		Tile:          tile,
		Score:         int(asInt64(res[1])),
		CooldownUntil: fromMillis(cmd.CooldownUntil.UnixMilli()),
		Generation:    asInt64(res[2]),
	}, nil
}

func (s *Storage) ResetAll(ctx context.Context, cmd model.ResetCommand) (*model.Board, error) {
	args := make([]interface{}, 0, 3+2*len(cmd.Assignment))
	args = append(args, cmd.ExpectedGeneration, cmd.At.UnixMilli(), tileKeyPrefix)
	for id, idx := range cmd.Assignment {
		args = append(args, string(id), idx)
	}

	res, err := resetScript.Run(ctx, s.client, []string{boardKey(), tilesKey()}, args...).Slice()
	if err != nil {
		return nil, fmt.Errorf("reset board: %w", err)
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("reset board: unexpected reply of length %d", len(res))
	}
	if err := codeToError(asString(res[0])); err != nil {
		return nil, err
	}

	resetAt := fromMillis(cmd.At.UnixMilli())
	board := &model.Board{Generation: asInt64(res[1]), ResetAt: &resetAt}
	if board.Tiles, err = parseTileReplies(res[2:]); err != nil {
		return nil, fmt.Errorf("reset board: %w", err)
	}
	return board, nil
}

// Profile operations

func (s *Storage) GetProfile(ctx context.Context, id model.ProfileID) (*model.Profile, error) {
	fields, err := s.client.HGetAll(ctx, profileKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, model.ErrProfileNotFound
	}
	return parseProfile(fields)
}

func (s *Storage) ListProfiles(ctx context.Context) ([]*model.Profile, error) {
	ids, err := s.client.SMembers(ctx, profilesKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Profile{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, profileKey(model.ProfileID(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	profiles := make([]*model.Profile, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		p, err := parseProfile(fields)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		if !profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
		}
		return profiles[i].ID < profiles[j].ID
	})
	return profiles, nil
}

func (s *Storage) CreateProfile(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	pKey := profileKey(profile.ID)
	uKey := usernameIndexKey(profile.Username)

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		var result *model.Profile
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			existing, err := tx.HGetAll(ctx, pKey).Result()
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				result, err = parseProfile(existing)
				return err
			}

			owner, err := tx.Get(ctx, uKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && owner != string(profile.ID) {
				return model.ErrUsernameTaken
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, pKey, profileFields(profile))
				pipe.SAdd(ctx, profilesKey(), string(profile.ID))
				pipe.Set(ctx, uKey, string(profile.ID), 0)
				return nil
			})
			if err == nil {
				result = profile.Clone()
			}
			return err
		}, pKey, uKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("create profile %s: too much contention", profile.ID)
}

func (s *Storage) UpdateProfile(ctx context.Context, profile *model.Profile) error {
	key := profileKey(profile.ID)
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			exists, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if exists == 0 {
				return model.ErrProfileNotFound
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key,
					"color", profile.DisplayColor,
					"updated_at", profile.UpdatedAt.UnixMilli(),
				)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update profile %s: too much contention", profile.ID)
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func codeToError(code string) error {
	switch code {
	case codeOK:
		return nil
	case codeProfileNotFound:
		return model.ErrProfileNotFound
	case codeTileNotFound:
		return model.ErrTileNotFound
	case codeAlreadyClaimed:
		return model.ErrAlreadyClaimed
	case codeOnCooldown:
		return model.ErrOnCooldown
	case codeGenerationConflict:
		return model.ErrGenerationConflict
	case codeInvalidAssignment:
		return model.ErrInvalidAssignment
	default:
		return fmt.Errorf("unexpected script status %q", code)
	}
}

// time helpers

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return fromMillis(ms), nil
}
