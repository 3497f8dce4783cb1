package presence

import (
	"testing"

	"github.com/ernie/netplay-lobby/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSetsCounterpartConnectTo(t *testing.T) {
	s, _ := newTestStore(t)

	s.Upsert("a", domain.PresenceUpdate{DisplayName: "Alice", RoomCode: "AAAA"})
	require.NoError(t, s.SetStatus("a", domain.StatusSearching))

	b, match := s.Upsert("b", domain.PresenceUpdate{DisplayName: "Bob", RoomCode: "BBBB", ConnectTo: "AAAA"})
	require.NotNil(t, match)
	assert.Equal(t, "b", match.FromPlayerID)
	assert.Equal(t, "a", match.ToPlayerID)
	assert.Equal(t, "Bob", match.FromName)
	assert.Equal(t, "Alice", match.ToName)

	a, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "BBBB", a.ConnectTo)
	assert.Equal(t, "AAAA", b.ConnectTo, "submitter is never rewritten")

	listed := s.ListSearching("")
	require.Len(t, listed, 1)
	assert.Equal(t, "BBBB", listed[0].ConnectTo)

	var sawMatch bool
	for len(s.Events()) > 0 {
		if e := <-s.Events(); e.Type == domain.EventMatch {
			sawMatch = true
			assert.Equal(t, *match, e.Data)
		}
	}
	assert.True(t, sawMatch)
}

func TestMatchRequiresRoomCodeAndConnectTo(t *testing.T) {
	s, _ := newTestStore(t)
	s.Upsert("a", domain.PresenceUpdate{DisplayName: "Alice", RoomCode: "AAAA"})

	_, match := s.Upsert("b", domain.PresenceUpdate{DisplayName: "Bob", ConnectTo: "AAAA"})
	assert.Nil(t, match)

	a, err := s.Get("a")
	require.NoError(t, err)
	assert.Empty(t, a.ConnectTo)
}

func TestMatchSkipsSubmitter(t *testing.T) {
	s, _ := newTestStore(t)
	_, match := s.Upsert("a", domain.PresenceUpdate{DisplayName: "Alice", RoomCode: "AAAA", ConnectTo: "AAAA"})
	assert.Nil(t, match)
}

func TestMatchNoCounterpart(t *testing.T) {
	s, _ := newTestStore(t)
	s.Upsert("a", domain.PresenceUpdate{DisplayName: "Alice", RoomCode: "AAAA"})
	_, match := s.Upsert("b", domain.PresenceUpdate{DisplayName: "Bob", RoomCode: "BBBB", ConnectTo: "ZZZZ"})
	assert.Nil(t, match)
}

func TestMatchFirstRegisteredWinsOnCollision(t *testing.T) {
	s, _ := newTestStore(t)
	s.Upsert("first", domain.PresenceUpdate{DisplayName: "First", RoomCode: "SAME"})
	s.Upsert("second", domain.PresenceUpdate{DisplayName: "Second", RoomCode: "SAME"})
	// Re-registering keeps the original position
	s.Upsert("first", domain.PresenceUpdate{DisplayName: "First", RoomCode: "SAME"})

	_, match := s.Upsert("c", domain.PresenceUpdate{DisplayName: "C", RoomCode: "CCCC", ConnectTo: "SAME"})
	require.NotNil(t, match)
	assert.Equal(t, "first", match.ToPlayerID)

	first, _ := s.Get("first")
	second, _ := s.Get("second")
	assert.Equal(t, "CCCC", first.ConnectTo)
	assert.Empty(t, second.ConnectTo)
}

func TestMatchComparesTruncatedCodes(t *testing.T) {
	s, _ := newTestStore(t)
	s.Upsert("a", domain.PresenceUpdate{DisplayName: "Alice", RoomCode: "0123456789ABCDEF-extra"})

	_, match := s.Upsert("b", domain.PresenceUpdate{
		DisplayName: "Bob",
		RoomCode:    "ZYXWVUTSRQPONMLK-extra",
		ConnectTo:   "0123456789ABCDEF-other",
	})
	require.NotNil(t, match)

	a, _ := s.Get("a")
	assert.Equal(t, "ZYXWVUTSRQPONML", a.ConnectTo)
}
