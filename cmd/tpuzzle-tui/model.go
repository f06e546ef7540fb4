package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

// Canvas geometry. One terminal cell covers cellW x cellH canvas units.
const (
	cellW   = 10
	cellH   = 50
	canvasW = 1000
	canvasH = 1300

	messageTTL = 3 * time.Second
	tickRate   = 250 * time.Millisecond
)

// backend applies commands to a session. *game.Manager plays in-process and
// *client.Client plays against a daemon.
type backend interface {
	Create(ctx context.Context) (puzzle.State, error)
	Apply(ctx context.Context, id string, cmd puzzle.Command) (puzzle.Outcome, puzzle.State, error)
}

type tickMsg time.Time

type sessionMsg struct {
	st  puzzle.State
	err error
}

type appliedMsg struct {
	cmd puzzle.Command
	out puzzle.Outcome
	st  puzzle.State
	err error
}

type model struct {
	ctx     context.Context
	backend backend
	keys    keyMap
	help    help.Model
	now     func() time.Time

	palette  []puzzle.PaletteEntry
	selected int
	cursor   puzzle.Point

	st    puzzle.State
	ready bool
	err   error

	// grabbed is the block being dragged; grabOffset is the cursor's
	// position inside it.
	grabbed    puzzle.BlockID
	grabOffset puzzle.Point
	// pending is the source block of an arrow being drawn.
	pending puzzle.BlockID

	highlight map[puzzle.BlockID]bool

	message      string
	messageStyle lipgloss.Style
	messageUntil time.Time
}

func newModel(ctx context.Context, b backend) model {
	return model{
		ctx:       ctx,
		backend:   b,
		keys:      defaultKeyMap(),
		help:      help.New(),
		now:       time.Now,
		palette:   puzzle.Palette(),
		cursor:    puzzle.Point{X: 300, Y: 1200},
		highlight: make(map[puzzle.BlockID]bool),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.createSession(), tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		if m.message != "" && !m.now().Before(m.messageUntil) {
			m.message = ""
		}
		return m, tick()

	case sessionMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.st = msg.st
		m.ready = true

	case appliedMsg:
		m.applied(msg)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}
	if !m.ready {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(0, -cellH)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(0, cellH)
	case key.Matches(msg, m.keys.Left):
		m.moveCursor(-cellW, 0)
	case key.Matches(msg, m.keys.Right):
		m.moveCursor(cellW, 0)
	case key.Matches(msg, m.keys.FastUp):
		m.moveCursor(0, -2*cellH)
	case key.Matches(msg, m.keys.FastDown):
		m.moveCursor(0, 2*cellH)
	case key.Matches(msg, m.keys.FastLeft):
		m.moveCursor(-5*cellW, 0)
	case key.Matches(msg, m.keys.FastRight):
		m.moveCursor(5*cellW, 0)

	case key.Matches(msg, m.keys.NextLabel):
		m.selected = (m.selected + 1) % len(m.palette)
	case key.Matches(msg, m.keys.PrevLabel):
		m.selected = (m.selected + len(m.palette) - 1) % len(m.palette)

	case key.Matches(msg, m.keys.Cancel):
		m.grabbed, m.pending = "", ""

	case key.Matches(msg, m.keys.Place):
		if m.grabbed != "" {
			cmd := m.drop()
			return m, cmd
		}
		return m, m.apply(puzzle.PlaceBlock(m.palette[m.selected].Label, m.cursor))

	case key.Matches(msg, m.keys.Grab):
		if m.grabbed != "" {
			cmd := m.drop()
			return m, cmd
		}
		b, ok := m.activeBlockAtCursor()
		if !ok {
			m.flash("Nothing to grab here", errorStyle)
			return m, nil
		}
		m.grabbed = b.ID
		m.grabOffset = puzzle.Point{X: m.cursor.X - b.Rect.X, Y: m.cursor.Y - b.Rect.Y}

	case key.Matches(msg, m.keys.Connect):
		cmd := m.connect()
		return m, cmd

	case key.Matches(msg, m.keys.Discard):
		b, ok := m.activeBlockAtCursor()
		if !ok {
			m.flash("Nothing to discard here", errorStyle)
			return m, nil
		}
		return m, m.apply(puzzle.DiscardBlock(b.ID))

	case key.Matches(msg, m.keys.Check):
		return m, m.apply(puzzle.Check())
	case key.Matches(msg, m.keys.Clear):
		return m, m.apply(puzzle.ClearStage())
	case key.Matches(msg, m.keys.Reset):
		return m, m.apply(puzzle.Reset())
	}
	return m, nil
}

func (m *model) moveCursor(dx, dy int) {
	m.cursor.X = min(max(m.cursor.X+dx, 0), canvasW-cellW)
	m.cursor.Y = min(max(m.cursor.Y+dy, 0), canvasH-cellH)
}

func (m *model) drop() tea.Cmd {
	id := m.grabbed
	at := puzzle.Point{X: m.cursor.X - m.grabOffset.X, Y: m.cursor.Y - m.grabOffset.Y}
	m.grabbed = ""
	return m.apply(puzzle.MoveBlock(id, at))
}

// connect starts an arrow on the block under the cursor, or finishes the
// pending one there. Saved encoder blocks can be arrow sources.
func (m *model) connect() tea.Cmd {
	b, ok := m.blockAtCursor()
	if !ok {
		m.flash("Move the cursor onto a block to connect it", errorStyle)
		return nil
	}
	if m.pending == "" {
		m.pending = b.ID
		return nil
	}
	src, ok := m.lookup(m.pending)
	m.pending = ""
	if !ok {
		return nil
	}
	from, to := autoSides(src, b)
	return m.apply(puzzle.Connect(
		puzzle.Endpoint{Block: src.ID, Side: from},
		puzzle.Endpoint{Block: b.ID, Side: to},
	))
}

// autoSides routes an arrow out of the top of the source into the bottom of
// the target, or sideways when the target sits in a column to the right.
func autoSides(src, dst puzzle.Block) (puzzle.Side, puzzle.Side) {
	if dst.Rect.Left() >= src.Rect.Right() {
		return puzzle.SideRight, puzzle.SideLeft
	}
	return puzzle.SideTop, puzzle.SideBottom
}

func (m model) createSession() tea.Cmd {
	ctx, b := m.ctx, m.backend
	return func() tea.Msg {
		st, err := b.Create(ctx)
		return sessionMsg{st: st, err: err}
	}
}

func (m model) apply(cmd puzzle.Command) tea.Cmd {
	ctx, b, id := m.ctx, m.backend, m.st.ID
	return func() tea.Msg {
		out, st, err := b.Apply(ctx, id, cmd)
		return appliedMsg{cmd: cmd, out: out, st: st, err: err}
	}
}

func (m *model) applied(msg appliedMsg) {
	if msg.err != nil {
		m.flash(rejection(msg.err), errorStyle)
		return
	}
	m.st = msg.st
	clear(m.highlight)

	v := msg.out.Verdict
	if msg.cmd.Kind != puzzle.CommandCheck || v == nil {
		return
	}
	switch {
	case msg.out.Completed:
		m.flash("Congratulations! You assembled the Transformer.", okStyle)
	case msg.out.Advanced:
		m.flash("Encoder complete! Now build the decoder.", okStyle)
		m.cursor = puzzle.Point{X: 700, Y: 1200}
	case v.Success:
		m.flash(v.Message, okStyle)
	default:
		for _, id := range v.Offenders() {
			m.highlight[id] = true
		}
		m.flash(v.Message, errorStyle)
	}
}

func (m *model) flash(text string, style lipgloss.Style) {
	m.message = text
	m.messageStyle = style
	m.messageUntil = m.now().Add(messageTTL)
}

func rejection(err error) string {
	switch {
	case errors.Is(err, puzzle.ErrUnknownBlock):
		return "That block is not on the active stage"
	case errors.Is(err, puzzle.ErrSelfConnection):
		return "An arrow needs two different connection points"
	}
	return fmt.Sprintf("Error: %v", err)
}

// blockAtCursor finds the block drawn under the cursor cell. Active blocks
// are drawn above the saved encoder.
func (m model) blockAtCursor() (puzzle.Block, bool) {
	if b, ok := m.activeBlockAtCursor(); ok {
		return b, true
	}
	if m.st.Stage == puzzle.StageDecoder {
		return blockAtCell(m.st.Encoder.Blocks, m.cursor)
	}
	return puzzle.Block{}, false
}

func (m model) activeBlockAtCursor() (puzzle.Block, bool) {
	return blockAtCell(m.st.Canvas.Blocks, m.cursor)
}

func (m model) lookup(id puzzle.BlockID) (puzzle.Block, bool) {
	if b, ok := m.st.Canvas.Block(id); ok {
		return b, true
	}
	return m.st.Encoder.Block(id)
}

func blockAtCell(blocks []puzzle.Block, p puzzle.Point) (puzzle.Block, bool) {
	col, row := p.X/cellW, p.Y/cellH
	for i := len(blocks) - 1; i >= 0; i-- {
		c0, c1, r0, r1 := cellSpan(blocks[i].Rect)
		if col >= c0 && col <= c1 && row >= r0 && row <= r1 {
			return blocks[i], true
		}
	}
	return puzzle.Block{}, false
}

// cellSpan returns the inclusive column and row range a rect is drawn on.
func cellSpan(r puzzle.Rect) (c0, c1, r0, r1 int) {
	c0, r0 = r.X/cellW, r.Y/cellH
	c1 = max(c0, (r.Right()-1)/cellW)
	r1 = max(r0, (r.Bottom()-1)/cellH)
	return c0, c1, r0, r1
}

func tick() tea.Cmd {
	return tea.Tick(tickRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
