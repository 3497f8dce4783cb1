package presence

import (
	"github.com/ernie/netplay-lobby/internal/domain"
	"go.uber.org/zap"
)

// matchLocked looks for another player publishing the room code that rec
// wants to reach. The first one found, in registration order, gets its
// connect_to pointed back at rec's room code so both sides see the mutual
// intent on their next poll. Room codes are not unique, so any further
// players publishing the same code are left alone.
//
// The caller must hold s.mu.
func (s *Store) matchLocked(rec *domain.Presence) *domain.MatchEvent {
	for _, id := range s.order {
		if id == rec.PlayerID {
			continue
		}
		other := s.players[id]
		if other.RoomCode != rec.ConnectTo {
			continue
		}

		other.ConnectTo = rec.RoomCode

		match := &domain.MatchEvent{
			FromPlayerID: rec.PlayerID,
			FromName:     rec.DisplayName,
			ToPlayerID:   other.PlayerID,
			ToName:       other.DisplayName,
			RoomCode:     rec.RoomCode,
			ConnectTo:    rec.ConnectTo,
		}
		s.logger.Info("match",
			zap.String("from", rec.DisplayName),
			zap.String("to", other.DisplayName),
			zap.String("room_code", rec.RoomCode))
		s.emit(domain.EventMatch, rec.PlayerID, *match)
		return match
	}
	return nil
}
