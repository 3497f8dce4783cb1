package api

import (
	"context"
	"net/http"

	"github.com/ernie/netplay-lobby/internal/auth"
	"github.com/ernie/netplay-lobby/internal/presence"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured
const DefaultMaxBodyBytes = 4096

// Options holds router settings that come from configuration
type Options struct {
	ServiceName  string
	MaxBodyBytes int64

	// History enables GET /matches when set
	History MatchHistory
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux         *http.ServeMux
	store       *presence.Store
	verifier    *auth.Verifier
	feed        *Feed
	history     MatchHistory
	logger      *zap.Logger
	serviceName string
	maxBody     int64
}

// NewRouter creates a new HTTP router
func NewRouter(store *presence.Store, verifier *auth.Verifier, logger *zap.Logger, opts Options) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "3sx-lobby"
	}

	r := &Router{
		mux:         http.NewServeMux(),
		store:       store,
		verifier:    verifier,
		feed:        NewFeed(logger),
		history:     opts.History,
		logger:      logger,
		serviceName: opts.ServiceName,
		maxBody:     opts.MaxBodyBytes,
	}

	// Health check (no auth)
	r.mux.HandleFunc("GET /{$}", r.handleHealth)

	// Presence routes
	r.mux.HandleFunc("POST /presence", r.signed(r.handlePresence))
	r.mux.HandleFunc("POST /searching/start", r.signed(r.handleSearchingStart))
	r.mux.HandleFunc("POST /searching/stop", r.signed(r.handleSearchingStop))
	r.mux.Handle("GET /searching", gzhttp.GzipHandler(r.signed(r.handleSearching)))
	r.mux.HandleFunc("POST /leave", r.signed(r.handleLeave))

	// Operator event feed
	r.mux.HandleFunc("GET /ws", r.signed(r.handleFeed))

	// Match history - only served if a database is configured
	if opts.History != nil {
		r.mux.HandleFunc("GET /matches", r.signed(r.handleGetMatches))
		r.mux.HandleFunc("GET /matches/{id}", r.signed(r.handleGetMatch))
	}

	r.mux.HandleFunc("/", r.handleNotFound)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		r.logger.Error("request panic",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Any("panic", rec),
			zap.Stack("stack"))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}()

	r.mux.ServeHTTP(w, req)
}

// Feed returns the operator event feed so it can be registered as a sink
func (r *Router) Feed() *Feed {
	return r.feed
}

// StartFeed runs the event feed until ctx is cancelled. /ws answers 503
// until this is called.
func (r *Router) StartFeed(ctx context.Context) {
	if r.feed.markStarted() {
		go r.feed.loop(ctx)
	}
}

func (r *Router) handleNotFound(w http.ResponseWriter, req *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}
