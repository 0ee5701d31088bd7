package model

import "time"

// ResetStatus is the result of a reset check
type ResetStatus string

const (
	ResetStatusSkipped ResetStatus = "skipped"
	ResetStatusReset   ResetStatus = "reset"
)

// Reasons reported with a skipped reset
const (
	ResetReasonBoardNotFull = "board_not_full"
	ResetReasonAlreadyReset = "already_reset"
	ResetReasonEmptyBoard   = "empty_board"
)

// ResetCommand clears every claim and reassigns tile indexes in one atomic
// unit, but only while the board is still at ExpectedGeneration.
type ResetCommand struct {
	ExpectedGeneration int64
	Assignment         map[TileID]int // New index for every tile
	At                 time.Time
}

// ResetOutcome describes what a reset check did
type ResetOutcome struct {
	Status     ResetStatus
	Reason     string // Set when skipped
	Generation int64  // Board generation after the check
	ResetAt    *time.Time
}

// Performed returns true if the board was reset
func (o *ResetOutcome) Performed() bool {
	return o.Status == ResetStatusReset
}
