package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ernie/netplay-lobby/internal/api"
	"github.com/ernie/netplay-lobby/internal/auth"
	"github.com/ernie/netplay-lobby/internal/domain"
)

// Client calls the lobby HTTP API, signing every request except the health check
type Client struct {
	baseURL string
	secret  []byte
	http    *http.Client
	now     func() time.Time
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces the time source used for X-Timestamp
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client for the lobby at baseURL
func New(baseURL, secret string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lobby returned %d: %s", e.StatusCode, e.Message)
}

// Presence is the payload for UpdatePresence
type Presence = api.PresenceRequest

// Health fetches registry counts
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/", nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePresence registers or refreshes a player
func (c *Client) UpdatePresence(ctx context.Context, p Presence) error {
	return c.do(ctx, http.MethodPost, "/presence", p, true, nil)
}

// StartSearching marks a player as searching
func (c *Client) StartSearching(ctx context.Context, playerID string) error {
	return c.do(ctx, http.MethodPost, "/searching/start", api.PlayerRequest{PlayerID: playerID}, true, nil)
}

// StopSearching marks a player as idle
func (c *Client) StopSearching(ctx context.Context, playerID string) error {
	return c.do(ctx, http.MethodPost, "/searching/stop", api.PlayerRequest{PlayerID: playerID}, true, nil)
}

// Searching lists searching players, filtered by region when non-empty
func (c *Client) Searching(ctx context.Context, region string) ([]api.SearchingPlayer, error) {
	path := "/searching"
	if region != "" {
		path += "?region=" + url.QueryEscape(region)
	}
	var out api.SearchingResponse
	if err := c.do(ctx, http.MethodGet, path, nil, true, &out); err != nil {
		return nil, err
	}
	return out.Players, nil
}

// Leave removes a player from the registry
func (c *Client) Leave(ctx context.Context, playerID string) error {
	return c.do(ctx, http.MethodPost, "/leave", api.PlayerRequest{PlayerID: playerID}, true, nil)
}

// Matches lists recorded matches, for one player when playerID is non-empty
func (c *Client) Matches(ctx context.Context, playerID string, limit int) ([]domain.Match, error) {
	q := url.Values{}
	if playerID != "" {
		q.Set("player_id", playerID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/matches"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out api.MatchesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, true, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

// Match fetches one recorded match by ID
func (c *Client) Match(ctx context.Context, id string) (*domain.Match, error) {
	var out domain.Match
	if err := c.do(ctx, http.MethodGet, "/matches/"+url.PathEscape(id), nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignHeaders returns the auth headers for a request at the current time
func (c *Client) SignHeaders(method, path string, body []byte) http.Header {
	ts := auth.Timestamp(c.now())
	h := http.Header{}
	h.Set(auth.HeaderTimestamp, ts)
	h.Set(auth.HeaderSignature, auth.Sign(c.secret, ts, method, path, body))
	return h
}

func (c *Client) do(ctx context.Context, method, path string, in interface{}, sign bool, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sign {
		for k, v := range c.SignHeaders(method, path, body) {
			req.Header[k] = v
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		json.Unmarshal(data, &e)
		return &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
