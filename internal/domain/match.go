package domain

import "time"

// Match is a recorded mutual-intent resolution
type Match struct {
	ID           string    `json:"id"`
	FromPlayerID string    `json:"from_player_id"`
	FromName     string    `json:"from_name"`
	ToPlayerID   string    `json:"to_player_id"`
	ToName       string    `json:"to_name"`
	RoomCode     string    `json:"room_code"`
	ConnectTo    string    `json:"connect_to"`
	MatchedAt    time.Time `json:"matched_at"`
}

// MatchFromEvent builds a Match from a match event, or returns false
// if the event carries no match payload.
func MatchFromEvent(e Event) (Match, bool) {
	if e.Type != EventMatch {
		return Match{}, false
	}
	data, ok := e.Data.(MatchEvent)
	if !ok {
		return Match{}, false
	}
	return Match{
		ID:           e.ID,
		FromPlayerID: data.FromPlayerID,
		FromName:     data.FromName,
		ToPlayerID:   data.ToPlayerID,
		ToName:       data.ToName,
		RoomCode:     data.RoomCode,
		ConnectTo:    data.ConnectTo,
		MatchedAt:    e.Timestamp,
	}, true
}
