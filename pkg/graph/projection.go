package graph

import (
	"strconv"

	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

// Project builds the graph of a session: every active and saved encoder
// block, every drawn arrow, and the reference edges still missing.
//
// Missing edges are only listed when the active canvas holds exactly as many
// blocks as the reference, since reference positions mean nothing otherwise.
func Project(st puzzle.State) *Graph {
	g := NewGraph(st.ID, string(st.Stage))

	if st.Stage == puzzle.StageDecoder {
		for i, b := range puzzle.ReadingOrder(st.Encoder.Blocks) {
			g.AddNode(blockNode(b, NodeEncoderBlock, puzzle.StageEncoder, i))
		}
		for _, a := range st.Encoder.Arrows {
			g.AddEdge(arrowEdge(a))
		}
	}

	order := puzzle.ReadingOrder(st.Canvas.Blocks)
	for i, b := range order {
		g.AddNode(blockNode(b, NodeBlock, st.Stage, i))
	}
	for _, a := range st.Canvas.Arrows {
		g.AddEdge(arrowEdge(a))
	}

	ref, ok := puzzle.Reference(st.Stage)
	if !ok || len(order) != len(ref.Sequence) {
		return g
	}
	for _, e := range ref.Edges {
		src, dst := order[e.Source].ID, order[e.Target].ID
		if puzzle.HasEdge(st.Canvas.Arrows, src, dst) {
			continue
		}
		g.AddEdge(&Edge{
			FromID:    string(src),
			ToID:      string(dst),
			Type:      EdgeMissing,
			Reference: e.String(),
		})
	}

	if st.Stage == puzzle.StageDecoder {
		last, ok := st.Encoder.Last()
		if !ok {
			return g
		}
		for _, b := range order {
			if b.Label != puzzle.LabelMultiHeadAttention {
				continue
			}
			if !puzzle.HasEdge(st.Canvas.Arrows, last.ID, b.ID) {
				g.AddEdge(&Edge{FromID: string(last.ID), ToID: string(b.ID), Type: EdgeMissingCross})
			}
			break
		}
	}
	return g
}

func blockNode(b puzzle.Block, t NodeType, stage puzzle.Stage, index int) *Node {
	return &Node{
		ID:    string(b.ID),
		Type:  t,
		Label: string(b.Label),
		Stage: string(stage),
		Index: index,
		Properties: map[string]string{
			"shape": b.Shape.String(),
			"x":     strconv.Itoa(b.Rect.X),
			"y":     strconv.Itoa(b.Rect.Y),
			"w":     strconv.Itoa(b.Rect.W),
			"h":     strconv.Itoa(b.Rect.H),
		},
	}
}

func arrowEdge(a puzzle.Arrow) *Edge {
	return &Edge{
		ID:       string(a.ID),
		FromID:   string(a.From.Block),
		ToID:     string(a.To.Block),
		Type:     EdgeArrow,
		FromSide: string(a.From.Side),
		ToSide:   string(a.To.Side),
	}
}
