package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const eventColumns = `event_id, event_type, schema_version, ts_event, ts_ingest,
	session_id, stage, origin_kind, origin_id, payload`

// AppendEvent writes an event to the journal. A missing ingest time is
// stamped with the current time.
func (s *Store) AppendEvent(ctx context.Context, event *Event) error {
	if event.EventID == "" {
		return errors.New("event_id is required")
	}
	if event.TsIngest.IsZero() {
		event.TsIngest = time.Now().UTC()
	}
	payload := event.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(event.EventID),
		string(event.EventType),
		event.SchemaVersion,
		event.TsEvent.UTC(),
		event.TsIngest.UTC(),
		event.SessionID,
		event.Stage,
		event.Source.OriginKind,
		event.Source.OriginID,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", event.EventID, err)
	}
	return nil
}

// GetEvent returns the event with the given ID, or nil if there is none.
func (s *Store) GetEvent(ctx context.Context, id EventID) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = ?`, string(id))
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return evt, nil
}

// ReadRecentEvents returns the newest events, newest first.
func (s *Store) ReadRecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	return s.QueryEvents(ctx, EventFilter{Limit: limit})
}

// QueryEvents returns events matching filter, newest first. A zero Limit
// returns at most 1000 events.
func (s *Store) QueryEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if !filter.From.IsZero() {
		where = append(where, "ts_event >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "ts_event <= ?")
		args = append(args, filter.To.UTC())
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "event_type IN ("+strings.Join(placeholders, ",")+")")
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// PruneEvents deletes events ingested before now-retention and returns how
// many were removed.
func (s *Store) PruneEvents(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, errors.New("retention must be positive")
	}
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE ts_ingest < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned events: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*Event, error) {
	var (
		evt        Event
		id, typ    string
		originKind sql.NullString
		originID   sql.NullString
		payload    string
	)
	if err := row.Scan(&id, &typ, &evt.SchemaVersion, &evt.TsEvent, &evt.TsIngest,
		&evt.SessionID, &evt.Stage, &originKind, &originID, &payload); err != nil {
		return nil, err
	}
	evt.EventID = EventID(id)
	evt.EventType = EventType(typ)
	evt.Source = EventSource{OriginKind: originKind.String, OriginID: originID.String}
	evt.Payload = json.RawMessage(payload)
	return &evt, nil
}

// ReadExpiredEvents returns up to limit events ingested before cutoff, oldest
// first.
func (s *Store) ReadExpiredEvents(ctx context.Context, cutoff time.Time, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE ts_ingest < ? ORDER BY seq ASC LIMIT ?`,
		cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read expired events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// DeleteEvents removes the given events in one transaction.
func (s *Store) DeleteEvents(ctx context.Context, ids []EventID) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM events WHERE event_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, string(id)); err != nil {
			return fmt.Errorf("failed to delete event %s: %w", id, err)
		}
	}
	return tx.Commit()
}
