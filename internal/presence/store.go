package presence

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ernie/netplay-lobby/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned for operations on an unregistered player
var ErrNotFound = errors.New("player not found")

// Store is the in-memory presence registry. A single mutex guards every
// read and write, including the scan and rewrite done by the matcher.
type Store struct {
	clock  clock.Clock
	logger *zap.Logger
	events chan domain.Event

	mu      sync.Mutex
	players map[string]*domain.Presence
	order   []string // player IDs in first-registration order
}

// NewStore creates an empty registry
func NewStore(clk clock.Clock, logger *zap.Logger) *Store {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		clock:   clk,
		logger:  logger,
		events:  make(chan domain.Event, 100),
		players: make(map[string]*domain.Presence),
	}
}

// Events returns the event channel for operator feeds
func (s *Store) Events() <-chan domain.Event {
	return s.events
}

// Upsert replaces a player's presence and then resolves mutual intent.
// Status and RTT fall back to the stored values (or idle/unknown) when the
// update omits them. The returned match is nil when no counterpart was found.
func (s *Store) Upsert(playerID string, update domain.PresenceUpdate) (domain.Presence, *domain.MatchEvent) {
	update = update.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	rec := &domain.Presence{
		PlayerID:    playerID,
		DisplayName: update.DisplayName,
		Region:      update.Region,
		RoomCode:    update.RoomCode,
		ConnectTo:   update.ConnectTo,
		Status:      domain.StatusIdle,
		RTTMs:       domain.RTTUnknown,
		LastSeen:    now,
	}
	if existing, ok := s.players[playerID]; ok {
		rec.Status = existing.Status
		rec.RTTMs = existing.RTTMs
	} else {
		s.order = append(s.order, playerID)
	}
	if update.Status != nil {
		rec.Status = *update.Status
	}
	if update.RTTMs != nil {
		rec.RTTMs = *update.RTTMs
	}
	s.players[playerID] = rec

	var match *domain.MatchEvent
	if rec.RoomCode != "" && rec.ConnectTo != "" {
		match = s.matchLocked(rec)
	}
	return *rec, match
}

// Get returns a copy of a player's presence
func (s *Store) Get(playerID string) (domain.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.players[playerID]
	if !ok {
		return domain.Presence{}, ErrNotFound
	}
	return *rec, nil
}

// SetStatus changes a registered player's status and refreshes last_seen
func (s *Store) SetStatus(playerID string, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.players[playerID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.LastSeen = s.clock.Now()

	eventType := domain.EventSearchingStop
	if status == domain.StatusSearching {
		eventType = domain.EventSearchingStart
	}
	s.emit(eventType, playerID, domain.SearchingEvent{
		DisplayName: rec.DisplayName,
		Region:      rec.Region,
	})
	return nil
}

// Remove deletes a player. Removing an unknown player is not an error;
// the return value reports whether a record existed.
func (s *Store) Remove(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.players[playerID]
	if !ok {
		return false
	}
	s.deleteLocked(playerID)
	s.emit(domain.EventLeave, playerID, domain.LeaveEvent{DisplayName: rec.DisplayName})
	return true
}

// ListSearching returns searching players, optionally limited to one region.
// An empty region matches all players.
func (s *Store) ListSearching(region string) []domain.Presence {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.Presence, 0)
	for _, id := range s.order {
		rec := s.players[id]
		if rec.Status != domain.StatusSearching {
			continue
		}
		if region != "" && rec.Region != region {
			continue
		}
		result = append(result, *rec)
	}
	return result
}

// Counts returns the number of registered and searching players
func (s *Store) Counts() (total, searching int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.players {
		if rec.Status == domain.StatusSearching {
			searching++
		}
	}
	return len(s.players), searching
}

// Sweep removes every player not seen within staleAfter and returns their IDs.
// Counterparts pointing at an evicted room code are left untouched.
func (s *Store) Sweep(staleAfter time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var evicted []string
	kept := s.order[:0]
	for _, id := range s.order {
		rec := s.players[id]
		if now.Sub(rec.LastSeen) > staleAfter {
			evicted = append(evicted, id)
			delete(s.players, id)
			s.emit(domain.EventEvict, id, domain.EvictEvent{
				DisplayName: rec.DisplayName,
				LastSeen:    rec.LastSeen,
			})
			continue
		}
		kept = append(kept, id)
	}
	clear(s.order[len(kept):])
	s.order = kept
	return evicted
}

func (s *Store) deleteLocked(playerID string) {
	delete(s.players, playerID)
	if i := slices.Index(s.order, playerID); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

// emit queues an event without blocking; events are dropped when the
// channel is full.
func (s *Store) emit(eventType, playerID string, data interface{}) {
	event := domain.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		PlayerID:  playerID,
		Timestamp: s.clock.Now(),
		Data:      data,
	}
	select {
	case s.events <- event:
	default:
		s.logger.Warn("event channel full, dropping event", zap.String("event", eventType))
	}
}
