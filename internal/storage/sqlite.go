package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ernie/netplay-lobby/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrMatchNotFound is returned when a match ID is unknown
var ErrMatchNotFound = errors.New("match not found")

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

//go:embed schema.sql
var schema string

// Store records match history. The presence registry itself is never
// written here.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordMatch stores a match. Recording the same ID twice is a no-op.
func (s *Store) RecordMatch(ctx context.Context, m *domain.Match) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (`+matchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, m.ID, m.FromPlayerID, m.FromName, m.ToPlayerID, m.ToName, m.RoomCode, m.ConnectTo, formatTimestamp(m.MatchedAt))
	if err != nil {
		return fmt.Errorf("recording match: %w", err)
	}
	return nil
}

const matchColumns = `id, from_player_id, from_name, to_player_id, to_name, room_code, connect_to, matched_at`

// GetMatch returns a match by ID
func (s *Store) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	return m, err
}

// GetRecentMatches returns the most recent matches, newest first
func (s *Store) GetRecentMatches(ctx context.Context, limit int) ([]domain.Match, error) {
	return s.queryMatches(ctx, `
		SELECT `+matchColumns+` FROM matches
		ORDER BY matched_at DESC, rowid DESC LIMIT ?
	`, limit)
}

// GetPlayerMatches returns recent matches a player took part in on either side
func (s *Store) GetPlayerMatches(ctx context.Context, playerID string, limit int) ([]domain.Match, error) {
	return s.queryMatches(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE from_player_id = ? OR to_player_id = ?
		ORDER BY matched_at DESC, rowid DESC LIMIT ?
	`, playerID, playerID, limit)
}

// queryMatches runs a match query; the result is never nil
func (s *Store) queryMatches(ctx context.Context, query string, args ...any) ([]domain.Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()

	matches := []domain.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// Send implements bus.Sink by recording match events and ignoring the rest
func (s *Store) Send(ctx context.Context, event domain.Event) error {
	m, ok := domain.MatchFromEvent(event)
	if !ok {
		return nil
	}
	return s.RecordMatch(ctx, &m)
}
