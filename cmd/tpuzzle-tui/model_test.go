package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rmax-ai/transformer-puzzle/pkg/game"
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds keys through Update and delivers any session command result
// synchronously.
func press(t *testing.T, m model, keys ...string) model {
	t.Helper()
	for _, k := range keys {
		next, cmd := m.Update(keyMsg(k))
		m = next.(model)
		if cmd == nil {
			continue
		}
		if msg, ok := cmd().(appliedMsg); ok {
			next, _ = m.Update(msg)
			m = next.(model)
		}
	}
	return m
}

func newTestModel(t *testing.T) model {
	t.Helper()
	mgr := game.NewManager(nil, game.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	m := newModel(game.WithOrigin(context.Background(), "tui", ""), mgr)
	next, _ := m.Update(m.createSession()())
	m = next.(model)
	if !m.ready {
		t.Fatalf("session not created: %v", m.err)
	}
	return m
}

func selectLabel(t *testing.T, m model, l puzzle.Label) model {
	t.Helper()
	for range m.palette {
		if m.palette[m.selected].Label == l {
			return m
		}
		m = press(t, m, "tab")
	}
	t.Fatalf("label %s not in palette", l)
	return m
}

// build stacks labels in one column starting at the cursor and returns their IDs.
func build(t *testing.T, m model, x int, labels []puzzle.Label) (model, []puzzle.BlockID) {
	t.Helper()
	ids := make([]puzzle.BlockID, len(labels))
	for i, l := range labels {
		m.cursor = puzzle.Point{X: x, Y: 1200 - i*100}
		m = selectLabel(t, m, l)
		before := len(m.st.Canvas.Blocks)
		m = press(t, m, "enter")
		if len(m.st.Canvas.Blocks) != before+1 {
			t.Fatalf("place %s failed: %s", l, m.message)
		}
		ids[i] = m.st.Canvas.Blocks[before].ID
	}
	return m, ids
}

func wire(t *testing.T, m model, x int, edges []puzzle.Edge) model {
	t.Helper()
	for _, e := range edges {
		m.cursor = puzzle.Point{X: x, Y: 1200 - e.Source*100}
		m = press(t, m, "c")
		m.cursor = puzzle.Point{X: x, Y: 1200 - e.Target*100}
		m = press(t, m, "c")
	}
	return m
}

func TestModel_SolvePuzzle(t *testing.T) {
	m := newTestModel(t)

	enc, _ := puzzle.Reference(puzzle.StageEncoder)
	m, encIDs := build(t, m, 300, enc.Sequence)
	m = wire(t, m, 300, enc.Edges)
	if len(m.st.Canvas.Arrows) != len(enc.Edges) {
		t.Fatalf("expected %d arrows, got %d", len(enc.Edges), len(m.st.Canvas.Arrows))
	}

	m = press(t, m, "v")
	if m.st.Stage != puzzle.StageDecoder {
		t.Fatalf("expected decoder stage, got %s (%s)", m.st.Stage, m.message)
	}
	if !strings.Contains(m.message, "Encoder complete") {
		t.Errorf("unexpected message %q", m.message)
	}
	if m.cursor != (puzzle.Point{X: 700, Y: 1200}) {
		t.Errorf("expected cursor moved to decoder column, got %+v", m.cursor)
	}

	dec, _ := puzzle.Reference(puzzle.StageDecoder)
	m, _ = build(t, m, 700, dec.Sequence)
	m = wire(t, m, 700, dec.Edges)

	m = press(t, m, "v")
	if m.st.Completed {
		t.Fatal("expected the cross-stage edge to be required")
	}
	if len(m.highlight) == 0 {
		t.Error("expected the missing cross edge ends to be highlighted")
	}

	// Saved encoder blocks are arrow sources.
	m.cursor = puzzle.Point{X: 300, Y: 1200 - 5*100}
	m = press(t, m, "c")
	if m.pending != encIDs[5] {
		t.Fatalf("expected pending source %s, got %s", encIDs[5], m.pending)
	}
	m.cursor = puzzle.Point{X: 700, Y: 1200 - 4*100}
	m = press(t, m, "c")
	last := m.st.Canvas.Arrows[len(m.st.Canvas.Arrows)-1]
	if last.From.Side != puzzle.SideRight || last.To.Side != puzzle.SideLeft {
		t.Errorf("expected sideways arrow, got %+v", last)
	}

	m = press(t, m, "v")
	if !m.st.Completed || !strings.Contains(m.message, "Congratulations") {
		t.Errorf("expected completion, got %q", m.message)
	}
	if len(m.highlight) != 0 {
		t.Error("expected highlights cleared")
	}
}

func TestModel_LabelMismatchHighlight(t *testing.T) {
	m := newTestModel(t)
	m, ids := build(t, m, 300, []puzzle.Label{
		puzzle.LabelInputEmbedding, puzzle.LabelPositionalEncoding, puzzle.LabelMultiHeadAttention,
		puzzle.LabelFeedForward, puzzle.LabelAddNorm, puzzle.LabelAddNorm,
	})

	m = press(t, m, "v")
	if !m.highlight[ids[3]] || len(m.highlight) != 1 {
		t.Errorf("expected only the block at position 4 highlighted, got %v", m.highlight)
	}
	if !strings.Contains(m.View(), "Wrong block at position 4") {
		t.Error("expected the verdict message in the view")
	}

	// Any later command clears the highlight.
	m = press(t, m, "up", "enter")
	if len(m.highlight) != 0 {
		t.Errorf("expected highlight cleared, got %v", m.highlight)
	}
}

func TestModel_GrabAndDrop(t *testing.T) {
	m := newTestModel(t)
	m, ids := build(t, m, 300, []puzzle.Label{puzzle.LabelLinear})

	m.cursor = puzzle.Point{X: 310, Y: 1200}
	m = press(t, m, "g")
	if m.grabbed != ids[0] {
		t.Fatalf("expected %s grabbed, got %q", ids[0], m.grabbed)
	}
	if !strings.Contains(m.View(), "Moving block") {
		t.Error("expected move hint in status line")
	}

	m = press(t, m, "K", "g")
	b, _ := m.st.Canvas.Block(ids[0])
	if b.Rect.X != 300 || b.Rect.Y != 1100 || m.grabbed != "" {
		t.Errorf("expected block at (300,1100), got %+v", b.Rect)
	}

	// esc cancels a grab without moving.
	m = press(t, m, "g", "down", "esc", "enter")
	b, _ = m.st.Canvas.Block(ids[0])
	if b.Rect.Y != 1100 {
		t.Errorf("expected block unmoved after cancel, got %+v", b.Rect)
	}
}

func TestModel_DiscardClearAndReset(t *testing.T) {
	m := newTestModel(t)
	m, _ = build(t, m, 300, []puzzle.Label{puzzle.LabelInputEmbedding, puzzle.LabelPositionalEncoding})

	m.cursor = puzzle.Point{X: 300, Y: 1100}
	m = press(t, m, "x")
	if len(m.st.Canvas.Blocks) != 1 {
		t.Fatalf("expected 1 block after discard, got %d", len(m.st.Canvas.Blocks))
	}

	m = press(t, m, "X")
	if len(m.st.Canvas.Blocks) != 0 {
		t.Errorf("expected empty canvas after clear, got %d", len(m.st.Canvas.Blocks))
	}

	m, _ = build(t, m, 300, []puzzle.Label{puzzle.LabelSoftmax})
	m = press(t, m, "R")
	if len(m.st.Canvas.Blocks) != 0 || m.st.Stage != puzzle.StageEncoder {
		t.Errorf("expected fresh encoder after reset, got %+v", m.st)
	}
}

func TestModel_TransientMessages(t *testing.T) {
	m := newTestModel(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.cursor = puzzle.Point{X: 0, Y: 0}
	m = press(t, m, "x")
	if m.message != "Nothing to discard here" {
		t.Fatalf("unexpected message %q", m.message)
	}

	now = now.Add(2 * time.Second)
	next, _ := m.Update(tickMsg(now))
	m = next.(model)
	if m.message == "" {
		t.Fatal("message expired early")
	}

	now = now.Add(time.Second)
	next, _ = m.Update(tickMsg(now))
	m = next.(model)
	if m.message != "" {
		t.Errorf("expected message cleared after %v, got %q", messageTTL, m.message)
	}
}

func TestModel_Rejections(t *testing.T) {
	m := newTestModel(t)
	tests := []struct {
		err  error
		want string
	}{
		{puzzle.ErrUnknownBlock, "not on the active stage"},
		{puzzle.ErrSelfConnection, "two different connection points"},
		{fmt.Errorf("daemon unreachable: %w", context.DeadlineExceeded), "daemon unreachable"},
	}
	for _, tt := range tests {
		m.applied(appliedMsg{err: tt.err})
		if !strings.Contains(m.message, tt.want) {
			t.Errorf("rejection(%v) = %q, want %q", tt.err, m.message, tt.want)
		}
	}
}

func TestModel_CursorAndPalette(t *testing.T) {
	m := newTestModel(t)

	for range 40 {
		m = press(t, m, "H")
	}
	if m.cursor.X != 0 {
		t.Errorf("expected cursor clamped to 0, got %d", m.cursor.X)
	}
	for range 40 {
		m = press(t, m, "J")
	}
	if m.cursor.Y != canvasH-cellH {
		t.Errorf("expected cursor clamped to %d, got %d", canvasH-cellH, m.cursor.Y)
	}

	m = press(t, m, "shift+tab")
	if m.selected != len(m.palette)-1 {
		t.Errorf("expected wrap to last palette entry, got %d", m.selected)
	}

	view := m.View()
	for _, want := range []string{"Palette", "stage: encoder", "No blocks placed."} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestAutoSides(t *testing.T) {
	enc := puzzle.Block{Rect: puzzle.Rect{X: 300, Y: 700, W: 150, H: 25}}
	mha := puzzle.Block{Rect: puzzle.Rect{X: 700, Y: 800, W: 150, H: 50}}
	below := puzzle.Block{Rect: puzzle.Rect{X: 300, Y: 800, W: 150, H: 50}}

	if from, to := autoSides(enc, mha); from != puzzle.SideRight || to != puzzle.SideLeft {
		t.Errorf("autoSides(enc, mha) = %s, %s", from, to)
	}
	if from, to := autoSides(below, enc); from != puzzle.SideTop || to != puzzle.SideBottom {
		t.Errorf("autoSides(below, enc) = %s, %s", from, to)
	}
}
