package model

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors used across the application
var (
	// Validation errors
	ErrInvalidRequest = errors.New("invalid request")

	// Profile errors
	ErrProfileNotFound = errors.New("profile not found")
	ErrUsernameTaken   = errors.New("username is already taken")

	// Tile errors
	ErrTileNotFound   = errors.New("tile not found")
	ErrAlreadyClaimed = errors.New("tile already claimed")
	ErrOnCooldown     = errors.New("profile is on cooldown")

	// Board errors
	ErrGenerationConflict = errors.New("board generation changed")
	ErrInvalidAssignment  = errors.New("reset assignment is not a permutation of the board")

	// Infrastructure errors
	ErrStoreUnavailable = errors.New("store unavailable")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
)

// ResetError reports a reset that did not commit.
// FailedTiles lists every tile that was not reset.
type ResetError struct {
	Generation  int64
	FailedTiles []TileID
	Err         error
}

func (e *ResetError) Error() string {
	ids := make([]string, len(e.FailedTiles))
	for i, id := range e.FailedTiles {
		ids[i] = string(id)
	}
	return fmt.Sprintf("reset of generation %d failed for %d tiles [%s]: %v",
		e.Generation, len(ids), strings.Join(ids, ","), e.Err)
}

func (e *ResetError) Unwrap() error {
	return e.Err
}

// IsDomainError returns true for expected outcomes that are not store failures
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest,
		ErrProfileNotFound,
		ErrUsernameTaken,
		ErrTileNotFound,
		ErrAlreadyClaimed,
		ErrOnCooldown,
		ErrGenerationConflict,
		ErrInvalidAssignment,
		ErrUnauthorized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
