package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ernie/netplay-lobby/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "lobby.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGetMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 17, 12, 30, 0, 0, time.UTC)

	m := &domain.Match{
		ID:           "m1",
		FromPlayerID: "b",
		FromName:     "Bob",
		ToPlayerID:   "a",
		ToName:       "Alice",
		RoomCode:     "BBBB",
		ConnectTo:    "AAAA",
		MatchedAt:    at,
	}
	require.NoError(t, s.RecordMatch(ctx, m))
	require.NoError(t, s.RecordMatch(ctx, m), "duplicate IDs are ignored")

	got, err := s.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.FromName)
	assert.Equal(t, "AAAA", got.ConnectTo)
	assert.True(t, at.Equal(got.MatchedAt), "got %v", got.MatchedAt)

	_, err = s.GetMatch(ctx, "missing")
	require.ErrorIs(t, err, ErrMatchNotFound)
}

func TestRecentMatchesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, s.RecordMatch(ctx, &domain.Match{
			ID:           id,
			FromPlayerID: "p" + id,
			ToPlayerID:   "x",
			MatchedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := s.GetRecentMatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "m3", recent[0].ID)
	assert.Equal(t, "m2", recent[1].ID)

	mine, err := s.GetPlayerMatches(ctx, "pm1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "m1", mine[0].ID)

	theirs, err := s.GetPlayerMatches(ctx, "x", 10)
	require.NoError(t, err)
	assert.Len(t, theirs, 3)

	none, err := s.GetPlayerMatches(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSendRecordsOnlyMatchEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Send(ctx, domain.Event{ID: "e1", Type: domain.EventLeave, Timestamp: now}))
	require.NoError(t, s.Send(ctx, domain.Event{
		ID:        "e2",
		Type:      domain.EventMatch,
		PlayerID:  "b",
		Timestamp: now,
		Data:      domain.MatchEvent{FromPlayerID: "b", FromName: "Bob", ToPlayerID: "a", ToName: "Alice", RoomCode: "BBBB", ConnectTo: "AAAA"},
	}))

	recent, err := s.GetRecentMatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "e2", recent[0].ID)
	assert.Equal(t, "Alice", recent[0].ToName)
}
