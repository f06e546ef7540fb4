package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	savedStyle     = lipgloss.NewStyle().Background(lipgloss.Color("238")).Foreground(lipgloss.Color("250"))
	highlightStyle = lipgloss.NewStyle().Background(lipgloss.Color("196")).Foreground(lipgloss.Color("231")).Bold(true)
	ghostStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	cursorStyle    = lipgloss.NewStyle().Reverse(true)
	pendingStyle   = lipgloss.NewStyle().Background(lipgloss.Color("99")).Foreground(lipgloss.Color("231"))
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
)

func labelStyle(l puzzle.Label) lipgloss.Style {
	e, _ := puzzle.LookupLabel(l)
	return lipgloss.NewStyle().
		Background(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", e.Color.R, e.Color.G, e.Color.B))).
		Foreground(lipgloss.Color("16"))
}

type cell struct {
	ch    rune
	style *lipgloss.Style
}

// grid is the canvas rasterized to terminal cells.
type grid [][]cell

func newGrid() grid {
	g := make(grid, canvasH/cellH)
	for r := range g {
		g[r] = make([]cell, canvasW/cellW)
		for c := range g[r] {
			g[r][c] = cell{ch: ' '}
			if c%10 == 0 && r%2 == 0 {
				g[r][c] = cell{ch: '·', style: &subtleStyle}
			}
		}
	}
	return g
}

// drawBlock paints b with its label clipped to the block width.
func (g grid) drawBlock(b puzzle.Block, style *lipgloss.Style) {
	c0, c1, r0, r1 := cellSpan(b.Rect)
	if c0 < 0 || r0 < 0 {
		return
	}
	text := []rune(b.Label.Short())
	if b.Shape == puzzle.ShapeYinYang {
		text = []rune("☯ " + b.Label.Short())
	}
	for r := r0; r <= r1 && r < len(g); r++ {
		for c := c0; c <= c1 && c < len(g[r]); c++ {
			ch := ' '
			if i := c - c0 - 1; r == r0 && i >= 0 && i < len(text) && c < c1 {
				ch = text[i]
			}
			g[r][c] = cell{ch: ch, style: style}
		}
	}
}

func (g grid) drawGhost(r puzzle.Rect) {
	c0, c1, r0, r1 := cellSpan(r)
	for row := max(r0, 0); row <= r1 && row < len(g); row++ {
		for c := max(c0, 0); c <= c1 && c < len(g[row]); c++ {
			g[row][c] = cell{ch: '░', style: &ghostStyle}
		}
	}
}

func (g grid) render() string {
	var sb strings.Builder
	for _, row := range g {
		var run strings.Builder
		var style *lipgloss.Style
		flush := func() {
			if run.Len() == 0 {
				return
			}
			if style != nil {
				sb.WriteString(style.Render(run.String()))
			} else {
				sb.WriteString(run.String())
			}
			run.Reset()
		}
		for _, c := range row {
			if c.style != style {
				flush()
				style = c.style
			}
			run.WriteRune(c.ch)
		}
		flush()
		sb.WriteByte('\n')
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (m model) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Could not start a session: %v", m.err)) + "\nPress q to quit\n"
	}
	if !m.ready {
		return "\nStarting session..."
	}

	stage := string(m.st.Stage)
	if m.st.Completed {
		stage += " (complete)"
	}
	header := headerStyle.Render(fmt.Sprintf("Transformer Puzzle • stage: %s • session %s", stage, shortID(m.st.ID)))

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Render(m.renderCanvas()),
		lipgloss.JoinVertical(lipgloss.Left,
			paneStyle.Render(m.renderPalette()),
			paneStyle.Render(m.renderReadingOrder()),
		),
	)

	status := subtleStyle.Render(m.statusLine())
	if m.message != "" {
		status = m.messageStyle.Render(m.message)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, status, m.help.View(m.keys))
}

func (m model) renderCanvas() string {
	g := newGrid()
	if m.st.Stage == puzzle.StageDecoder {
		for _, b := range m.st.Encoder.Blocks {
			g.drawBlock(b, m.blockStyle(b, &savedStyle))
		}
	}
	for _, b := range m.st.Canvas.Blocks {
		style := labelStyle(b.Label)
		g.drawBlock(b, m.blockStyle(b, &style))
	}
	if m.grabbed != "" {
		if b, ok := m.st.Canvas.Block(m.grabbed); ok {
			r := b.Rect
			r.X, r.Y = m.cursor.X-m.grabOffset.X, m.cursor.Y-m.grabOffset.Y
			g.drawGhost(r)
		}
	}

	row, col := m.cursor.Y/cellH, m.cursor.X/cellW
	cur := g[row][col]
	if cur.ch == ' ' || cur.ch == '·' {
		cur.ch = '+'
	}
	cur.style = &cursorStyle
	g[row][col] = cur
	return g.render()
}

func (m model) blockStyle(b puzzle.Block, base *lipgloss.Style) *lipgloss.Style {
	switch {
	case m.highlight[b.ID]:
		return &highlightStyle
	case m.pending == b.ID:
		return &pendingStyle
	}
	return base
}

func (m model) renderPalette() string {
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Palette") + "\n")
	for i, e := range m.palette {
		if i == m.selected {
			sb.WriteString(selectedStyle.Render("▸ " + string(e.Label)))
		} else {
			sb.WriteString("  " + string(e.Label))
		}
		sb.WriteByte('\n')
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// renderReadingOrder lists the active blocks the way the checker reads them,
// with the arrows leaving each one.
func (m model) renderReadingOrder() string {
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Reading order") + "\n")
	blocks := puzzle.ReadingOrder(m.st.Canvas.Blocks)
	if len(blocks) == 0 {
		sb.WriteString(subtleStyle.Render("No blocks placed."))
		return sb.String()
	}
	index := make(map[puzzle.BlockID]int, len(blocks))
	for i, b := range blocks {
		index[b.ID] = i
	}
	for i, b := range blocks {
		var targets []string
		for _, a := range m.st.Canvas.Arrows {
			if a.From.Block != b.ID {
				continue
			}
			if j, ok := index[a.To.Block]; ok {
				targets = append(targets, fmt.Sprint(j+1))
			}
		}
		line := fmt.Sprintf("%2d %-10s", i+1, b.Label.Short())
		if len(targets) > 0 {
			line += " → " + strings.Join(targets, ",")
		}
		if m.highlight[b.ID] {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (m model) statusLine() string {
	switch {
	case m.grabbed != "":
		return "Moving block: press g or enter to drop, esc to cancel"
	case m.pending != "":
		return "Drawing arrow: move to the target block and press c, esc to cancel"
	}
	return fmt.Sprintf("Cursor (%d, %d) • %d blocks • %d arrows", m.cursor.X, m.cursor.Y, len(m.st.Canvas.Blocks), len(m.st.Canvas.Arrows))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
