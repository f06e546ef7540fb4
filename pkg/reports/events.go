package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/rmax-ai/transformer-puzzle/pkg/store"
)

// EventRecord is one journal entry flattened for export.
type EventRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	SessionID string          `json:"session_id"`
	Stage     string          `json:"stage"`
	Origin    string          `json:"origin"`
	Payload   json.RawMessage `json:"payload"`
}

// EventReport exports raw journal events oldest first.
type EventReport struct {
	store ReportStore
}

func NewEventReport(s ReportStore) *EventReport {
	return &EventReport{store: s}
}

func (r *EventReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	events, err := r.store.QueryEvents(ctx, store.EventFilter{
		From:      params.Start,
		To:        params.End,
		SessionID: params.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	slices.Reverse(events)

	t := table{
		headers: []string{"timestamp", "event_id", "event_type", "session_id", "stage", "origin", "payload"},
	}
	records := make([]EventRecord, 0, len(events))
	for _, event := range events {
		rec := EventRecord{
			Timestamp: event.TsEvent.UTC(),
			EventID:   string(event.EventID),
			EventType: string(event.EventType),
			SessionID: event.SessionID,
			Stage:     event.Stage,
			Origin:    event.Source.OriginKind,
			Payload:   event.Payload,
		}
		records = append(records, rec)
		t.rows = append(t.rows, []string{
			rec.Timestamp.Format(time.RFC3339),
			rec.EventID,
			rec.EventType,
			rec.SessionID,
			rec.Stage,
			rec.Origin,
			string(rec.Payload),
		})
	}
	t.records = records
	return t.render(params.Format)
}
