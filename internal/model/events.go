package model

import "time"

// EventType identifies the type of event
type EventType string

const (
	EventTileClaimed EventType = "tile_claimed"
	EventBoardReset  EventType = "board_reset"
)

// BoardTopic is the topic every board event is published on
const BoardTopic = "board"

// Event is the base structure for all events
type Event struct {
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Generation int64     `json:"generation"`
	Payload    any       `json:"payload"`
}

// TileClaimedPayload contains data for tile claimed events
type TileClaimedPayload struct {
	TileID    TileID    `json:"tileId"`
	Index     int       `json:"index"`
	ClaimedBy ProfileID `json:"claimedBy"`
	ClaimedAt time.Time `json:"claimedAt"`
	Rating    int       `json:"rating"`
	Score     int       `json:"score"`
}

// BoardResetPayload contains data for board reset events
type BoardResetPayload struct {
	Forced    bool   `json:"forced"`
	Reason    string `json:"reason"`
	TileCount int    `json:"tileCount"`
}
