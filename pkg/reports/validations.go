package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/rmax-ai/transformer-puzzle/pkg/store"
)

// ValidationRecord is one check attempt.
type ValidationRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	Stage      string    `json:"stage"`
	Verdict    string    `json:"verdict"`
	Success    bool      `json:"success"`
	MessageKey string    `json:"message_key"`
	Blocks     int       `json:"blocks"`
	Arrows     int       `json:"arrows"`
	Origin     string    `json:"origin"`
}

// ValidationReport lists validation attempts oldest first.
type ValidationReport struct {
	store ReportStore
}

func NewValidationReport(s ReportStore) *ValidationReport {
	return &ValidationReport{store: s}
}

func (r *ValidationReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	records, err := r.Records(ctx, params)
	if err != nil {
		return nil, err
	}

	t := table{
		headers: []string{"timestamp", "session_id", "stage", "verdict", "success", "message_key", "blocks", "arrows", "origin"},
		records: records,
	}
	for _, rec := range records {
		t.rows = append(t.rows, []string{
			rec.Timestamp.Format(time.RFC3339),
			rec.SessionID,
			rec.Stage,
			rec.Verdict,
			strconv.FormatBool(rec.Success),
			rec.MessageKey,
			strconv.Itoa(rec.Blocks),
			strconv.Itoa(rec.Arrows),
			rec.Origin,
		})
	}
	return t.render(params.Format)
}

// Records returns the validation attempts matching params, oldest first.
func (r *ValidationReport) Records(ctx context.Context, params ReportParams) ([]ValidationRecord, error) {
	events, err := r.store.QueryEvents(ctx, store.EventFilter{
		From:       params.Start,
		To:         params.End,
		SessionID:  params.SessionID,
		EventTypes: []store.EventType{store.EventTypeValidationPerformed},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	records := make([]ValidationRecord, 0, len(events))
	for _, event := range events {
		var payload store.ValidationPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload for event %s: %w", event.EventID, err)
		}
		records = append(records, ValidationRecord{
			Timestamp:  event.TsEvent.UTC(),
			SessionID:  event.SessionID,
			Stage:      event.Stage,
			Verdict:    payload.Verdict,
			Success:    payload.Success,
			MessageKey: payload.MessageKey,
			Blocks:     payload.Blocks,
			Arrows:     payload.Arrows,
			Origin:     event.Source.OriginKind,
		})
	}
	// The journal returns newest first.
	slices.Reverse(records)
	return records, nil
}

// Summary counts verdict kinds per stage.
func Summary(records []ValidationRecord) map[string]map[string]int {
	out := make(map[string]map[string]int)
	for _, rec := range records {
		if out[rec.Stage] == nil {
			out[rec.Stage] = make(map[string]int)
		}
		out[rec.Stage][rec.Verdict]++
	}
	return out
}
