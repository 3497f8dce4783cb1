package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ernie/netplay-lobby/internal/domain"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (s *recordingSink) Send(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherFansOutDespiteFailingSink(t *testing.T) {
	failing := &recordingSink{err: errors.New("boom")}
	ok := &recordingSink{}
	d := NewDispatcher(nil, failing, ok)

	events := make(chan domain.Event, 2)
	events <- domain.Event{ID: "1", Type: domain.EventLeave}
	events <- domain.Event{ID: "2", Type: domain.EventEvict}
	close(events)

	d.Run(context.Background(), events)

	assert.Equal(t, 2, failing.count())
	assert.Equal(t, 2, ok.count())
	assert.Equal(t, "2", ok.events[1].ID)
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	d := NewDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Run(ctx, make(chan domain.Event))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func runNATSServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestPublisherSendsEventsBySubject(t *testing.T) {
	ns := runNATSServer(t)

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer sub.Close()
	msgs, err := sub.SubscribeSync("lobby.events.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := Connect(ns.ClientURL(), "lobby.events", nil)
	require.NoError(t, err)
	defer pub.Close()

	event := domain.Event{
		ID:       "evt-1",
		Type:     domain.EventMatch,
		PlayerID: "b",
		Data:     domain.MatchEvent{FromPlayerID: "b", ToPlayerID: "a", RoomCode: "BBBB", ConnectTo: "AAAA"},
	}
	require.NoError(t, pub.Send(context.Background(), event))

	msg, err := msgs.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "lobby.events.match", msg.Subject)

	var got struct {
		ID   string            `json:"id"`
		Type string            `json:"event"`
		Data domain.MatchEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, domain.EventMatch, got.Type)
	assert.Equal(t, "AAAA", got.Data.ConnectTo)
}

func TestConnectFailsWithoutServer(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "lobby.events", nil)
	require.Error(t, err)
}
