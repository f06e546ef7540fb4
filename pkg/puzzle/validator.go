package puzzle

import (
	"cmp"
	"slices"
)

// ReadingOrder sorts blocks bottom-most first, then left-most. The sort is
// stable: blocks sharing a position keep their insertion order. That
// tie-break is arbitrary from the player's point of view.
func ReadingOrder(blocks []Block) []Block {
	sorted := slices.Clone(blocks)
	slices.SortStableFunc(sorted, func(a, b Block) int {
		if c := cmp.Compare(b.Rect.Y, a.Rect.Y); c != 0 {
			return c
		}
		return cmp.Compare(a.Rect.X, b.Rect.X)
	})
	return sorted
}

// Validation is the outcome of Validate. Order is the reading order of the
// canvas and is set whenever the block count matched.
type Validation struct {
	Verdict Verdict
	Order   []Block
}

// Validate checks canvas against the reference topology of stage. In the
// decoder stage, encoder is the snapshot saved when the encoder passed; the
// block placed last in it must feed the decoder's Multi-Head Attention block.
//
// Validate is pure. Applying the consequences of a passing verdict is up to
// the caller (see Session).
func Validate(stage Stage, canvas Canvas, encoder Snapshot) Validation {
	ref := reference(stage)

	if len(canvas.Blocks) != len(ref.Sequence) {
		return Validation{Verdict: countMismatch(stage, len(ref.Sequence), len(canvas.Blocks))}
	}

	order := ReadingOrder(canvas.Blocks)
	for i, b := range order {
		if b.Label != ref.Sequence[i] {
			return Validation{Verdict: labelMismatch(stage, i, b, ref.Sequence[i]), Order: order}
		}
	}

	for _, e := range ref.Edges {
		src, dst := order[e.Source], order[e.Target]
		if !HasEdge(canvas.Arrows, src.ID, dst.ID) {
			return Validation{Verdict: missingEdge(stage, e, src, dst), Order: order}
		}
	}

	if stage == StageEncoder {
		return Validation{Verdict: encoderComplete(), Order: order}
	}

	// The decoder reference already places Multi-Head Attention, so this only
	// fires for a reference table without one.
	mha := slices.IndexFunc(order, func(b Block) bool { return b.Label == LabelMultiHeadAttention })
	if mha < 0 {
		return Validation{Verdict: missingComponent(stage, LabelMultiHeadAttention), Order: order}
	}

	last := len(encoder.Blocks) - 1
	lastBlock, ok := encoder.Last()
	lastID := lastBlock.ID
	if !ok || !HasEdge(canvas.Arrows, lastID, order[mha].ID) {
		return Validation{Verdict: missingCrossStageEdge(last, lastID, mha, order[mha].ID), Order: order}
	}

	return Validation{Verdict: allComplete(), Order: order}
}
