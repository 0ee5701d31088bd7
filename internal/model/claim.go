package model

import "time"

// ClaimCommand is a single atomic claim evaluated by the board store.
// The store applies it only if the profile is off cooldown at At and the
// tile is unclaimed, and persists the profile's score and cooldown in the
// same unit of work.
type ClaimCommand struct {
	TileID        TileID
	ProfileID     ProfileID
	At            time.Time
	CooldownUntil time.Time
}

// ClaimResult is the outcome of a successful claim
type ClaimResult struct {
	Tile          *Tile
	Score         int
	CooldownUntil time.Time
	Generation    int64
}

// CheckClaim applies the claim preconditions in their canonical order:
// a retry of the caller's own claim reports ErrAlreadyClaimed, then cooldown,
// then ownership by anyone else. Every store backend evaluates the same order.
func CheckClaim(p *Profile, t *Tile, now time.Time) error {
	if t.IsClaimedBy(p.ID) {
		return ErrAlreadyClaimed
	}
	if p.OnCooldown(now) {
		return ErrOnCooldown
	}
	if t.IsClaimed() {
		return ErrAlreadyClaimed
	}
	return nil
}

// ScoreFor sums the ratings of every tile owned by the profile
func ScoreFor(tiles []*Tile, id ProfileID) int {
	score := 0
	for _, t := range tiles {
		if t.IsClaimedBy(id) {
			score += t.Rating
		}
	}
	return score
}
