package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ernie/netplay-lobby/internal/domain"
	"github.com/ernie/netplay-lobby/internal/storage"
	"go.uber.org/zap"
)

// MatchHistory reads recorded matches
type MatchHistory interface {
	GetMatch(ctx context.Context, id string) (*domain.Match, error)
	GetRecentMatches(ctx context.Context, limit int) ([]domain.Match, error)
	GetPlayerMatches(ctx context.Context, playerID string, limit int) ([]domain.Match, error)
}

// MatchesResponse is the body of GET /matches
type MatchesResponse struct {
	Matches []domain.Match `json:"matches"`
}

// handleGetMatches returns recent matches, optionally for one player
func (r *Router) handleGetMatches(w http.ResponseWriter, req *http.Request, body []byte) {
	limit := parseLimit(req, 20, 100)
	playerID := req.URL.Query().Get("player_id")

	var (
		matches []domain.Match
		err     error
	)
	if playerID != "" {
		matches, err = r.history.GetPlayerMatches(req.Context(), playerID, limit)
	} else {
		matches, err = r.history.GetRecentMatches(req.Context(), limit)
	}
	if err != nil {
		r.logger.Error("loading match history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if matches == nil {
		matches = []domain.Match{}
	}
	writeJSON(w, http.StatusOK, MatchesResponse{Matches: matches})
}

// handleGetMatch returns a single recorded match
func (r *Router) handleGetMatch(w http.ResponseWriter, req *http.Request, body []byte) {
	id := req.PathValue("id")

	match, err := r.history.GetMatch(req.Context(), id)
	if errors.Is(err, storage.ErrMatchNotFound) {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}
	if err != nil {
		r.logger.Error("loading match", zap.String("match_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, match)
}
