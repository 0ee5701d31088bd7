package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mcoot/tileclaim/internal/dbx"
	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/storage"
)

// Storage is a PostgreSQL implementation of the board store.
// Claims are conditional row updates and resets are single transactions
// guarded by the generation row lock.
type Storage struct {
	db *sql.DB
}

// New opens a connection pool, verifies it and optionally migrates the schema
func New(ctx context.Context, cfg Config) (*Storage, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if cfg.Migrate {
		if err := RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Storage{db: db}, nil
}

// NewWithDB creates a storage over an existing pool (for testing)
func NewWithDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Close closes the connection pool
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ensure Storage implements the interface
var _ storage.BoardStore = (*Storage)(nil)

const tileColumns = `id, tile_index, player_name, rating, image_ref, nationality, claimed_by, claimed_at`

const profileColumns = `id, username, display_color, score, cooldown_until, created_at, updated_at`

// Board operations

func (s *Storage) GetBoard(ctx context.Context) (*model.Board, error) {
	board := &model.Board{}
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

	err := dbx.WithTx(ctx, s.db, opts, func(ctx context.Context, tx dbx.DBTX) error {
		var resetAt sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT generation, reset_at FROM board_state WHERE id = 1`,
		).Scan(&board.Generation, &resetAt)
		if err != nil {
			return err
		}
		if resetAt.Valid {
			at := resetAt.Time.UTC()
			board.ResetAt = &at
		}

		board.Tiles, err = queryTiles(ctx, tx,
			`SELECT `+tileColumns+` FROM tiles ORDER BY tile_index`)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return board, nil
}

func (s *Storage) GetTile(ctx context.Context, id model.TileID) (*model.Tile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tileColumns+` FROM tiles WHERE id = $1`, string(id))
	tile, err := scanTile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrTileNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tile, nil
}

func (s *Storage) SeedTiles(ctx context.Context, tiles []*model.Tile) (bool, error) {
	seeded := false
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Serialises concurrent seeders on the board row
		var generation int64
		if err := tx.QueryRowContext(ctx,
			`SELECT generation FROM board_state WHERE id = 1 FOR UPDATE`,
		).Scan(&generation); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tiles`).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		for _, t := range tiles {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO tiles (id, tile_index, player_name, rating, image_ref, nationality)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				string(t.ID), t.Index, t.PlayerName, t.Rating, t.ImageRef, t.Nationality)
			if err != nil {
				return fmt.Errorf("insert tile %s: %w", t.ID, err)
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return seeded, nil
}

func (s *Storage) ClaimTile(ctx context.Context, cmd model.ClaimCommand) (*model.ClaimResult, error) {
	result := &model.ClaimResult{CooldownUntil: cmd.CooldownUntil.UTC()}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// The profile row lock serialises claims by the same user
		var cooldown sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT cooldown_until FROM profiles WHERE id = $1 FOR UPDATE`,
			string(cmd.ProfileID),
		).Scan(&cooldown)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrProfileNotFound
		}
		if err != nil {
			return err
		}

		var owner sql.NullString
		err = tx.QueryRowContext(ctx,
			`SELECT claimed_by FROM tiles WHERE id = $1`,
			string(cmd.TileID),
		).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrTileNotFound
		}
		if err != nil {
			return err
		}
		if owner.Valid && owner.String == string(cmd.ProfileID) {
			return model.ErrAlreadyClaimed
		}
		if cooldown.Valid && cooldown.Time.After(cmd.At) {
			return model.ErrOnCooldown
		}

		// The conditional update is the only authority on who wins the tile
		tile, err := scanTile(tx.QueryRowContext(ctx,
			`UPDATE tiles SET claimed_by = $1, claimed_at = $2
			 WHERE id = $3 AND claimed_by IS NULL
			 RETURNING `+tileColumns,
			string(cmd.ProfileID), cmd.At, string(cmd.TileID)))
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrAlreadyClaimed
		}
		if err != nil {
			return err
		}
		result.Tile = tile

		err = tx.QueryRowContext(ctx,
			`UPDATE profiles
			 SET score = (SELECT COALESCE(SUM(rating), 0) FROM tiles WHERE claimed_by = $1),
			     cooldown_until = $2,
			     updated_at = $3
			 WHERE id = $1
			 RETURNING score`,
			string(cmd.ProfileID), cmd.CooldownUntil, cmd.At,
		).Scan(&result.Score)
		if err != nil {
			return err
		}

		return tx.QueryRowContext(ctx,
			`SELECT generation FROM board_state WHERE id = 1`,
		).Scan(&result.Generation)
	})
	if err != nil {
		if model.IsDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (s *Storage) ResetAll(ctx context.Context, cmd model.ResetCommand) (*model.Board, error) {
	board := &model.Board{}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Concurrent resets queue on this lock; the loser sees the new generation
		var generation int64
		if err := tx.QueryRowContext(ctx,
			`SELECT generation FROM board_state WHERE id = 1 FOR UPDATE`,
		).Scan(&generation); err != nil {
			return err
		}
		if generation != cmd.ExpectedGeneration {
			return model.ErrGenerationConflict
		}

		ids, err := queryTileIDs(ctx, tx)
		if err != nil {
			return err
		}
		if err := storage.ValidateAssignment(ids, cmd.Assignment); err != nil {
			return err
		}

		for _, id := range ids {
			res, err := tx.ExecContext(ctx,
				`UPDATE tiles SET claimed_by = NULL, claimed_at = NULL, tile_index = $1 WHERE id = $2`,
				cmd.Assignment[id], string(id))
			if err != nil {
				return fmt.Errorf("reset tile %s: %w", id, err)
			}
			if n, err := res.RowsAffected(); err != nil || n != 1 {
				return fmt.Errorf("reset tile %s: %d rows affected: %v", id, n, err)
			}
		}

		var resetAt time.Time
		err = tx.QueryRowContext(ctx,
			`UPDATE board_state SET generation = generation + 1, reset_at = $1 WHERE id = 1
			 RETURNING generation, reset_at`,
			cmd.At).Scan(&board.Generation, &resetAt)
		if err != nil {
			return err
		}
		resetAt = resetAt.UTC()
		board.ResetAt = &resetAt

		// Read inside the transaction so the result is exactly what commits
		board.Tiles, err = queryTiles(ctx, tx,
			`SELECT `+tileColumns+` FROM tiles ORDER BY tile_index`)
		return err
	})
	if err != nil {
		if model.IsDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return board, nil
}

// Profile operations

func (s *Storage) GetProfile(ctx context.Context, id model.ProfileID) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, string(id))
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrProfileNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (s *Storage) ListProfiles(ctx context.Context) ([]*model.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	profiles := []*model.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return profiles, nil
}

func (s *Storage) CreateProfile(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT DO NOTHING
		 RETURNING id`,
		string(profile.ID), profile.Username, profile.DisplayColor, profile.Score,
		nullTime(profile.CooldownUntil), profile.CreatedAt, profile.UpdatedAt,
	).Scan(&id)
	if err == nil {
		return profile.Clone(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	// Nothing inserted: either the id already exists or the username is taken
	existing, err := s.GetProfile(ctx, profile.ID)
	if errors.Is(err, model.ErrProfileNotFound) {
		return nil, model.ErrUsernameTaken
	}
	return existing, err
}

func (s *Storage) UpdateProfile(ctx context.Context, profile *model.Profile) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET display_color = $1, updated_at = $2 WHERE id = $3`,
		profile.DisplayColor, profile.UpdatedAt, string(profile.ID))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return model.ErrProfileNotFound
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// scanning helpers

type scanner interface {
	Scan(dest ...any) error
}

func scanTile(row scanner) (*model.Tile, error) {
	var (
		t         model.Tile
		id        string
		claimedBy sql.NullString
		claimedAt sql.NullTime
	)
	if err := row.Scan(&id, &t.Index, &t.PlayerName, &t.Rating, &t.ImageRef, &t.Nationality, &claimedBy, &claimedAt); err != nil {
		return nil, err
	}
	t.ID = model.TileID(id)
	if claimedBy.Valid && claimedAt.Valid {
		owner := model.ProfileID(claimedBy.String)
		at := claimedAt.Time.UTC()
		t.ClaimedBy = &owner
		t.ClaimedAt = &at
	}
	return &t, nil
}

func queryTiles(ctx context.Context, db dbx.DBTX, query string, args ...any) ([]*model.Tile, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tiles := []*model.Tile{}
	for rows.Next() {
		t, err := scanTile(rows)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, t)
	}
	return tiles, rows.Err()
}

func queryTileIDs(ctx context.Context, db dbx.DBTX) ([]model.TileID, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM tiles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []model.TileID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, model.TileID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Stable statement order keeps row locks acquired in the same sequence
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func scanProfile(row scanner) (*model.Profile, error) {
	var (
		p        model.Profile
		id       string
		cooldown sql.NullTime
	)
	if err := row.Scan(&id, &p.Username, &p.DisplayColor, &p.Score, &cooldown, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = model.ProfileID(id)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if cooldown.Valid {
		until := cooldown.Time.UTC()
		p.CooldownUntil = &until
	}
	return &p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
