package domain

import (
	"time"
	"unicode/utf8"
)

// Status is a player's matchmaking status
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSearching Status = "searching"
)

// Field caps in bytes, matching the game client's fixed-size buffers
const (
	MaxDisplayName = 31
	MaxRegion      = 7
	MaxRoomCode    = 15
	MaxConnectTo   = 15
)

// RTT bounds. RTTUnknown is reported for players that never sent one.
const (
	RTTUnknown = -1
	MaxRTT     = 9999
)

// Presence is a player's most recently reported connectivity metadata
type Presence struct {
	PlayerID    string    `json:"player_id"`
	DisplayName string    `json:"display_name"`
	Region      string    `json:"region"`
	RoomCode    string    `json:"room_code"`
	ConnectTo   string    `json:"connect_to"`
	Status      Status    `json:"status"`
	RTTMs       int       `json:"rtt_ms"`
	LastSeen    time.Time `json:"last_seen"`
}

// PresenceUpdate carries the fields a client submits on /presence.
// Status and RTTMs are optional; nil keeps the stored value.
type PresenceUpdate struct {
	DisplayName string
	Region      string
	RoomCode    string
	ConnectTo   string
	Status      *Status
	RTTMs       *int
}

// Normalize truncates string fields to their caps and clamps the RTT.
// A negative RTT is dropped.
func (u PresenceUpdate) Normalize() PresenceUpdate {
	u.DisplayName = Truncate(u.DisplayName, MaxDisplayName)
	u.Region = Truncate(u.Region, MaxRegion)
	u.RoomCode = Truncate(u.RoomCode, MaxRoomCode)
	u.ConnectTo = Truncate(u.ConnectTo, MaxConnectTo)
	if u.RTTMs != nil {
		rtt := *u.RTTMs
		switch {
		case rtt < 0:
			u.RTTMs = nil
		case rtt > MaxRTT:
			rtt = MaxRTT
			u.RTTMs = &rtt
		}
	}
	return u
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
