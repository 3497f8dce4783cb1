package domain

import "time"

// Event types emitted by the presence registry
const (
	EventMatch          = "match"
	EventEvict          = "evict"
	EventLeave          = "leave"
	EventSearchingStart = "searching_start"
	EventSearchingStop  = "searching_stop"
)

// Event represents a registry change for operator feeds
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"event"`
	PlayerID  string      `json:"player_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// MatchEvent is sent when a presence update resolves a counterpart.
// From is the submitter, To is the player whose connect_to was rewritten.
type MatchEvent struct {
	FromPlayerID string `json:"from_player_id"`
	FromName     string `json:"from_name"`
	ToPlayerID   string `json:"to_player_id"`
	ToName       string `json:"to_name"`
	RoomCode     string `json:"room_code"`
	ConnectTo    string `json:"connect_to"`
}

// EvictEvent is sent when a stale record is swept
type EvictEvent struct {
	DisplayName string    `json:"display_name"`
	LastSeen    time.Time `json:"last_seen"`
}

// LeaveEvent is sent when a player leaves explicitly
type LeaveEvent struct {
	DisplayName string `json:"display_name"`
}

// SearchingEvent is sent when a player starts or stops searching
type SearchingEvent struct {
	DisplayName string `json:"display_name"`
	Region      string `json:"region"`
}
