package store

import (
	"encoding/json"
	"time"
)

// EventType represents the kind of journaled event.
type EventType string

const (
	EventTypeSessionCreated      EventType = "session_created"
	EventTypeSessionDeleted      EventType = "session_deleted"
	EventTypeBlockPlaced         EventType = "block_placed"
	EventTypeBlockMoved          EventType = "block_moved"
	EventTypeBlockDiscarded      EventType = "block_discarded"
	EventTypeArrowConnected      EventType = "arrow_connected"
	EventTypeStageCleared        EventType = "stage_cleared"
	EventTypeSessionReset        EventType = "session_reset"
	EventTypeValidationPerformed EventType = "validation_performed"
	EventTypeStageAdvanced       EventType = "stage_advanced"
	EventTypePuzzleCompleted     EventType = "puzzle_completed"
)

// SchemaVersion is written into every new event envelope.
const SchemaVersion = 1

// EventID is a unique identifier for an event.
type EventID string

// Event is the envelope of every journaled session event.
type Event struct {
	EventID       EventID         `json:"event_id"`
	EventType     EventType       `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	TsEvent       time.Time       `json:"ts_event"`
	TsIngest      time.Time       `json:"ts_ingest"`
	SessionID     string          `json:"session_id"`
	Stage         string          `json:"stage"`
	Source        EventSource     `json:"source"`
	Payload       json.RawMessage `json:"payload"`
}

// EventSource describes who issued the command behind the event.
type EventSource struct {
	OriginKind string `json:"origin_kind"` // api, mcp, tui, sim
	OriginID   string `json:"origin_id"`
}

// EventFilter defines filters for querying events. Zero values match all.
type EventFilter struct {
	From       time.Time
	To         time.Time
	EventTypes []EventType
	SessionID  string
	Limit      int
}

// ValidationPayload is the payload of validation_performed events.
type ValidationPayload struct {
	Verdict    string `json:"verdict"`
	Success    bool   `json:"success"`
	MessageKey string `json:"message_key"`
	Message    string `json:"message"`
	Blocks     int    `json:"blocks"`
	Arrows     int    `json:"arrows"`
}
