package game

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
	"github.com/rmax-ai/transformer-puzzle/pkg/store"
)

type originKey struct{}

// WithOrigin tags ctx with the surface issuing commands (api, mcp, tui, sim)
// and an identifier such as a trace ID. Journaled events carry it.
func WithOrigin(ctx context.Context, kind, id string) context.Context {
	return context.WithValue(ctx, originKey{}, store.EventSource{OriginKind: kind, OriginID: id})
}

// OriginFrom returns the origin set by WithOrigin.
func OriginFrom(ctx context.Context) store.EventSource {
	if src, ok := ctx.Value(originKey{}).(store.EventSource); ok {
		return src
	}
	return store.EventSource{OriginKind: "unknown"}
}

// Event payloads.

type BlockPayload struct {
	Block puzzle.BlockID `json:"block"`
	Label puzzle.Label   `json:"label,omitempty"`
	At    *puzzle.Point  `json:"at,omitempty"`
}

type ArrowPayload struct {
	Arrow puzzle.ArrowID  `json:"arrow"`
	From  puzzle.Endpoint `json:"from"`
	To    puzzle.Endpoint `json:"to"`
}

type StagePayload struct {
	From puzzle.Stage `json:"from"`
	To   puzzle.Stage `json:"to"`
}

// journalOutcome writes the events describing one applied command. before
// is the state the command ran against.
func (m *Manager) journalOutcome(ctx context.Context, id string, stage puzzle.Stage, cmd puzzle.Command, out puzzle.Outcome, before puzzle.State) {
	if m.journal == nil {
		return
	}
	switch cmd.Kind {
	case puzzle.CommandPlaceBlock:
		at := cmd.At
		m.record(ctx, id, stage, store.EventTypeBlockPlaced, BlockPayload{Block: out.Block, Label: cmd.Label, At: &at})
	case puzzle.CommandMoveBlock:
		at := cmd.At
		m.record(ctx, id, stage, store.EventTypeBlockMoved, BlockPayload{Block: out.Block, At: &at})
	case puzzle.CommandDiscardBlock:
		m.record(ctx, id, stage, store.EventTypeBlockDiscarded, BlockPayload{Block: out.Block})
	case puzzle.CommandConnect:
		m.record(ctx, id, stage, store.EventTypeArrowConnected, ArrowPayload{Arrow: out.Arrow, From: cmd.From, To: cmd.To})
	case puzzle.CommandClearStage:
		m.record(ctx, id, stage, store.EventTypeStageCleared, nil)
	case puzzle.CommandReset:
		m.record(ctx, id, stage, store.EventTypeSessionReset, nil)
	case puzzle.CommandCheck:
		v := out.Verdict
		m.record(ctx, id, stage, store.EventTypeValidationPerformed, store.ValidationPayload{
			Verdict:    string(v.Kind),
			Success:    v.Success,
			MessageKey: v.MessageKey,
			Message:    v.Message,
			Blocks:     len(before.Canvas.Blocks),
			Arrows:     len(before.Canvas.Arrows),
		})
		if out.Advanced {
			m.record(ctx, id, stage, store.EventTypeStageAdvanced, StagePayload{From: stage, To: out.Stage})
		}
		if out.Completed {
			m.record(ctx, id, stage, store.EventTypePuzzleCompleted, nil)
		}
	}
}

// record appends one event. Journal failures are logged and never fail the
// command.
func (m *Manager) record(ctx context.Context, sessionID string, stage puzzle.Stage, typ store.EventType, payload any) {
	if m.journal == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			m.logger.Error("event_marshal_failed", "event_type", typ, "error", err)
			return
		}
		raw = data
	}
	now := m.now().UTC()
	evt := &store.Event{
		EventID:       store.EventID("evt_" + uuid.NewString()),
		EventType:     typ,
		SchemaVersion: store.SchemaVersion,
		TsEvent:       now,
		TsIngest:      now,
		SessionID:     sessionID,
		Stage:         string(stage),
		Source:        OriginFrom(ctx),
		Payload:       raw,
	}
	if err := m.journal.AppendEvent(ctx, evt); err != nil {
		m.logger.Error("event_append_failed",
			"event_type", typ,
			"session_id", sessionID,
			"error", err,
		)
	}
}
