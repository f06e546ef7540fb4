package puzzle

import "testing"

// buildStage lays out the reference sequence of stage as a vertical stack at
// column x, bottom-most first, and draws every reference edge not in skip.
// It returns the block IDs in sequence order.
func buildStage(t *testing.T, s *Session, stage Stage, x int, skip ...Edge) []BlockID {
	t.Helper()
	ref, ok := Reference(stage)
	if !ok {
		t.Fatalf("no reference for %s", stage)
	}
	ids := make([]BlockID, len(ref.Sequence))
	for i, label := range ref.Sequence {
		out, err := s.Apply(PlaceBlock(label, Point{X: x, Y: 1200 - i*100}))
		if err != nil {
			t.Fatalf("place %s: %v", label, err)
		}
		ids[i] = out.Block
	}
	omitted := make(map[Edge]bool, len(skip))
	for _, e := range skip {
		omitted[e] = true
	}
	for _, e := range ref.Edges {
		if omitted[e] {
			continue
		}
		connect(t, s, ids[e.Source], ids[e.Target])
	}
	return ids
}

func connect(t *testing.T, s *Session, from, to BlockID) ArrowID {
	t.Helper()
	out, err := s.Apply(Connect(Endpoint{Block: from, Side: SideTop}, Endpoint{Block: to, Side: SideBottom}))
	if err != nil {
		t.Fatalf("connect %s -> %s: %v", from, to, err)
	}
	return out.Arrow
}

func check(t *testing.T, s *Session) Outcome {
	t.Helper()
	out, err := s.Apply(Check())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if out.Verdict == nil {
		t.Fatal("check returned no verdict")
	}
	return out
}

// solveEncoder drives a fresh session into the decoder stage.
func solveEncoder(t *testing.T, s *Session) []BlockID {
	t.Helper()
	ids := buildStage(t, s, StageEncoder, 400)
	if out := check(t, s); out.Verdict.Kind != VerdictEncoderComplete {
		t.Fatalf("encoder did not pass: %s", out.Verdict)
	}
	return ids
}
