package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
	"github.com/rmax-ai/transformer-puzzle/pkg/simulation"
)

// ErrSessionNotFound is returned when the daemon has no session with the
// requested ID.
var ErrSessionNotFound = errors.New("session not found")

// Status represents the health check response.
type Status struct {
	// Status is the health status string (e.g. "ok").
	Status string `json:"status"`
}

// Event represents a journaled session event.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	TsEvent       time.Time       `json:"ts_event"`
	TsIngest      time.Time       `json:"ts_ingest"`
	SessionID     string          `json:"session_id"`
	Stage         string          `json:"stage"`
	Source        EventSource     `json:"source"`
	Payload       json.RawMessage `json:"payload"`
}

type EventSource struct {
	OriginKind string `json:"origin_kind"`
	OriginID   string `json:"origin_id"`
}

// EventsOptions defines filters for Events.
type EventsOptions struct {
	SessionID string
	Types     []string
	Limit     int // default 50
}

// ReportOptions selects a journal report. Zero values take the daemon's
// defaults: validations, csv, the last 24 hours.
type ReportOptions struct {
	Type      string // validations or events
	Format    string // csv or json
	SessionID string
	From      time.Time
	To        time.Time
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	Details    string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s (status %d)", e.Code, e.StatusCode)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// Unwrap maps the daemon's error codes back onto the sentinel errors the
// in-process session returns, so callers can use errors.Is either way.
func (e *APIError) Unwrap() error {
	if e.Code == "session_not_found" {
		return ErrSessionNotFound
	}
	if e.Code != "command_rejected" {
		return nil
	}
	switch e.Reason {
	case "unknown_label":
		return puzzle.ErrUnknownLabel
	case "unknown_block":
		return puzzle.ErrUnknownBlock
	case "unknown_side":
		return puzzle.ErrUnknownSide
	case "self_connection":
		return puzzle.ErrSelfConnection
	default:
		return puzzle.ErrUnknownCommand
	}
}

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type endpoint struct {
	Block string `json:"block"`
	Side  string `json:"side"`
}

// commandRequest is the POST /v1/sessions/{id}/commands body.
type commandRequest struct {
	Kind  string    `json:"kind"`
	Label string    `json:"label,omitempty"`
	Block string    `json:"block,omitempty"`
	At    *point    `json:"at,omitempty"`
	From  *endpoint `json:"from,omitempty"`
	To    *endpoint `json:"to,omitempty"`
}

func newCommandRequest(cmd puzzle.Command) commandRequest {
	req := commandRequest{Kind: string(cmd.Kind), Label: string(cmd.Label), Block: string(cmd.Block)}
	switch cmd.Kind {
	case puzzle.CommandPlaceBlock, puzzle.CommandMoveBlock:
		req.At = &point{X: cmd.At.X, Y: cmd.At.Y}
	case puzzle.CommandConnect:
		req.From = &endpoint{Block: string(cmd.From.Block), Side: string(cmd.From.Side)}
		req.To = &endpoint{Block: string(cmd.To.Block), Side: string(cmd.To.Side)}
	}
	return req
}

type commandResponse struct {
	Outcome puzzle.Outcome `json:"outcome"`
	Session puzzle.State   `json:"session"`
}

type sessionList struct {
	Sessions []string `json:"sessions"`
}

type simulationRequest struct {
	Name     string               `json:"name,omitempty"`
	Scenario *simulation.Scenario `json:"scenario,omitempty"`
}

type pruneRequest struct {
	Retention string `json:"retention"`
}

type pruneResponse struct {
	Status        string `json:"status"`
	PrunedCount   int64  `json:"pruned_count"`
	RetentionUsed string `json:"retention_used"`
}
