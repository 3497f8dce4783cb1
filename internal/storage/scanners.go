package storage

import (
	"github.com/ernie/netplay-lobby/internal/domain"
)

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanMatch scans a match row from the database
func scanMatch(s scanner) (*domain.Match, error) {
	var m domain.Match
	err := s.Scan(&m.ID, &m.FromPlayerID, &m.FromName, &m.ToPlayerID, &m.ToName,
		&m.RoomCode, &m.ConnectTo, &m.MatchedAt)
	if err != nil {
		return nil, err
	}
	m.MatchedAt = m.MatchedAt.UTC()
	return &m, nil
}
