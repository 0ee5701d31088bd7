package model

import "time"

// Profile is a player's identity on the board
type Profile struct {
	ID           ProfileID
	Username     string // unique and immutable (first write wins)
	DisplayColor string

	// Cached from the last successful claim
	Score         int
	CooldownUntil *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OnCooldown returns true if the profile may not claim at the given instant
func (p *Profile) OnCooldown(now time.Time) bool {
	return p.CooldownUntil != nil && p.CooldownUntil.After(now)
}

// Clone returns a deep copy of the profile
func (p *Profile) Clone() *Profile {
	c := *p
	if p.CooldownUntil != nil {
		until := *p.CooldownUntil
		c.CooldownUntil = &until
	}
	return &c
}
