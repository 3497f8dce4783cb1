package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ernie/netplay-lobby/internal/domain"
	"github.com/ernie/netplay-lobby/internal/presence"
	"go.uber.org/zap"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeOK writes the {"ok":true} acknowledgement
func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// OKResponse acknowledges a successful mutation
type OKResponse struct {
	OK bool `json:"ok"`
}

// HealthResponse is the body of the unauthenticated health check
type HealthResponse struct {
	Service          string `json:"service"`
	PlayersOnline    int    `json:"players_online"`
	PlayersSearching int    `json:"players_searching"`
}

// PresenceRequest is the request body for presence updates
type PresenceRequest struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Region      string `json:"region"`
	RoomCode    string `json:"room_code"`
	ConnectTo   string `json:"connect_to"`
	RTTMs       *int   `json:"rtt_ms,omitempty"`
}

// PlayerRequest is the request body for calls that only name a player
type PlayerRequest struct {
	PlayerID string `json:"player_id"`
}

// SearchingPlayer is one entry of the searching listing
type SearchingPlayer struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Region      string `json:"region"`
	RoomCode    string `json:"room_code"`
	ConnectTo   string `json:"connect_to"`
	RTTMs       int    `json:"rtt_ms"`
}

// SearchingResponse is the body of GET /searching
type SearchingResponse struct {
	Players []SearchingPlayer `json:"players"`
}

// handleHealth reports registry counts
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	total, searching := r.store.Counts()
	writeJSON(w, http.StatusOK, HealthResponse{
		Service:          r.serviceName,
		PlayersOnline:    total,
		PlayersSearching: searching,
	})
}

// handlePresence registers or replaces a player's presence
func (r *Router) handlePresence(w http.ResponseWriter, req *http.Request, body []byte) {
	var p PresenceRequest
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if p.PlayerID == "" || p.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "missing player_id or display_name")
		return
	}

	r.store.Upsert(p.PlayerID, domain.PresenceUpdate{
		DisplayName: p.DisplayName,
		Region:      p.Region,
		RoomCode:    p.RoomCode,
		ConnectTo:   p.ConnectTo,
		RTTMs:       p.RTTMs,
	})
	writeOK(w)
}

// handleSearchingStart marks a registered player as searching
func (r *Router) handleSearchingStart(w http.ResponseWriter, req *http.Request, body []byte) {
	r.setStatus(w, body, domain.StatusSearching)
}

// handleSearchingStop returns a registered player to idle
func (r *Router) handleSearchingStop(w http.ResponseWriter, req *http.Request, body []byte) {
	r.setStatus(w, body, domain.StatusIdle)
}

func (r *Router) setStatus(w http.ResponseWriter, body []byte, status domain.Status) {
	playerID, ok := parsePlayerRequest(w, body)
	if !ok {
		return
	}

	if err := r.store.SetStatus(playerID, status); err != nil {
		if errors.Is(err, presence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "player not found, call /presence first")
			return
		}
		r.logger.Error("setting status", zap.String("player_id", playerID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeOK(w)
}

// handleSearching lists searching players, optionally filtered by region
func (r *Router) handleSearching(w http.ResponseWriter, req *http.Request, body []byte) {
	region := req.URL.Query().Get("region")

	records := r.store.ListSearching(region)
	players := make([]SearchingPlayer, len(records))
	for i, p := range records {
		players[i] = SearchingPlayer{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			Region:      p.Region,
			RoomCode:    p.RoomCode,
			ConnectTo:   p.ConnectTo,
			RTTMs:       p.RTTMs,
		}
	}
	writeJSON(w, http.StatusOK, SearchingResponse{Players: players})
}

// handleLeave removes a player immediately
func (r *Router) handleLeave(w http.ResponseWriter, req *http.Request, body []byte) {
	playerID, ok := parsePlayerRequest(w, body)
	if !ok {
		return
	}
	r.store.Remove(playerID)
	writeOK(w)
}

// parsePlayerRequest decodes a PlayerRequest, writing a 400 on failure
func parsePlayerRequest(w http.ResponseWriter, body []byte) (string, bool) {
	var p PlayerRequest
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return "", false
	}
	if p.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "missing player_id")
		return "", false
	}
	return p.PlayerID, true
}
