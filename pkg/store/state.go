package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetSystemState returns the value stored under key and whether it exists.
func (s *Store) GetSystemState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get system state %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) SetSystemState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set system state %s: %w", key, err)
	}
	return nil
}

// LastSeq returns the journal position of the newest event, 0 when empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read last seq: %w", err)
	}
	return seq.Int64, nil
}

// seqScanner reads the seq column ahead of the event columns.
type seqScanner struct {
	row scanner
	seq *int64
}

func (s seqScanner) Scan(dest ...any) error {
	return s.row.Scan(append([]any{s.seq}, dest...)...)
}

// ReadEventsAfter returns up to limit events past journal position after,
// oldest first, with the position of the last one returned.
func (s *Store) ReadEventsAfter(ctx context.Context, after int64, limit int) ([]*Event, int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, `+eventColumns+` FROM events WHERE seq > ? ORDER BY seq ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, after, fmt.Errorf("failed to read events: %w", err)
	}
	defer rows.Close()

	var (
		events []*Event
		last   = after
	)
	for rows.Next() {
		var seq int64
		evt, err := scanEvent(seqScanner{row: rows, seq: &seq})
		if err != nil {
			return nil, after, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, evt)
		last = seq
	}
	if err := rows.Err(); err != nil {
		return nil, after, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, last, nil
}
