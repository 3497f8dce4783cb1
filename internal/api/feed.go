package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ernie/netplay-lobby/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = 30 * time.Second
	feedReadLimit  = 512
	feedQueueSize  = 64
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is irrelevant, the upgrade request is already signed
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientIP returns the caller address, preferring proxy headers
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Feed streams registry events to operator WebSocket subscribers.
// A single Run goroutine owns membership changes and fan-out.
type Feed struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}

	events chan []byte
	join   chan *subscriber
	leave  chan *subscriber

	startOnce sync.Once
	started   chan struct{}
	done      chan struct{}
}

type subscriber struct {
	feed   *Feed
	conn   *websocket.Conn
	queue  chan []byte
	remote string
}

// NewFeed creates an idle feed; call Run to start delivery
func NewFeed(logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		logger:  logger,
		subs:    make(map[*subscriber]struct{}),
		events:  make(chan []byte, 256),
		join:    make(chan *subscriber),
		leave:   make(chan *subscriber),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run delivers events until ctx is cancelled, then disconnects everyone.
// Only the first call runs; later calls return immediately.
func (f *Feed) Run(ctx context.Context) {
	if f.markStarted() {
		f.loop(ctx)
	}
}

// markStarted reports whether this is the first start of the feed
func (f *Feed) markStarted() bool {
	first := false
	f.startOnce.Do(func() {
		first = true
		close(f.started)
	})
	return first
}

func (f *Feed) loop(ctx context.Context) {
	defer f.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-f.join:
			f.add(s)
		case s := <-f.leave:
			f.drop(s, "disconnected")
		case msg := <-f.events:
			f.fanOut(msg)
		}
	}
}

func (f *Feed) add(s *subscriber) {
	f.mu.Lock()
	f.subs[s] = struct{}{}
	n := len(f.subs)
	f.mu.Unlock()
	f.logger.Info("feed subscriber connected", zap.String("remote", s.remote), zap.Int("subscribers", n))
}

func (f *Feed) drop(s *subscriber, reason string) {
	f.mu.Lock()
	_, ok := f.subs[s]
	if ok {
		delete(f.subs, s)
		close(s.queue)
	}
	n := len(f.subs)
	f.mu.Unlock()
	if ok {
		f.logger.Info("feed subscriber "+reason, zap.String("remote", s.remote), zap.Int("subscribers", n))
	}
}

func (f *Feed) fanOut(msg []byte) {
	var slow []*subscriber
	f.mu.RLock()
	for s := range f.subs {
		select {
		case s.queue <- msg:
		default:
			slow = append(slow, s)
		}
	}
	f.mu.RUnlock()

	for _, s := range slow {
		f.drop(s, "dropped, queue full")
	}
}

func (f *Feed) closeAll() {
	f.mu.Lock()
	for s := range f.subs {
		close(s.queue)
		delete(f.subs, s)
	}
	f.mu.Unlock()
	close(f.done)
}

// Publish queues an event for every subscriber without blocking
func (f *Feed) Publish(event domain.Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		f.logger.Warn("encoding feed event", zap.Error(err))
		return
	}
	select {
	case f.events <- msg:
	default:
		f.logger.Warn("feed backlog full, dropping event", zap.String("event", event.Type))
	}
}

// Send implements bus.Sink
func (f *Feed) Send(ctx context.Context, event domain.Event) error {
	f.Publish(event)
	return nil
}

// Running reports whether Run is accepting subscribers
func (f *Feed) Running() bool {
	select {
	case <-f.done:
		return false
	default:
	}
	select {
	case <-f.started:
		return true
	default:
		return false
	}
}

// Subscribers returns the number of connected subscribers
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// handleFeed upgrades a signed GET /ws request into a feed subscription
func (r *Router) handleFeed(w http.ResponseWriter, req *http.Request, body []byte) {
	if !r.feed.Running() {
		writeError(w, http.StatusServiceUnavailable, "event feed unavailable")
		return
	}

	conn, err := feedUpgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Debug("feed upgrade failed", zap.Error(err))
		return
	}

	s := &subscriber{
		feed:   r.feed,
		conn:   conn,
		queue:  make(chan []byte, feedQueueSize),
		remote: clientIP(req),
	}
	select {
	case r.feed.join <- s:
	case <-r.feed.done:
		conn.Close()
		return
	}

	go s.writeLoop()
	go s.readLoop()
}

// readLoop discards inbound frames; it exists to service pongs and notice disconnects
func (s *subscriber) readLoop() {
	defer func() {
		select {
		case s.feed.leave <- s:
		case <-s.feed.done:
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(feedReadLimit)
	s.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.feed.logger.Debug("feed read error", zap.String("remote", s.remote), zap.Error(err))
			}
			return
		}
	}
}

// writeLoop writes queued events and keepalive pings until the queue closes
func (s *subscriber) writeLoop() {
	ping := time.NewTicker(feedPingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case msg, ok := <-s.queue:
			if !ok {
				s.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			kind, data = websocket.TextMessage, msg
		case <-ping.C:
			kind = websocket.PingMessage
		}

		s.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := s.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}
