package puzzle

import "fmt"

// VerdictKind tags the result of a check.
type VerdictKind string

const (
	VerdictEncoderComplete       VerdictKind = "encoder_complete"
	VerdictAllComplete           VerdictKind = "all_complete"
	VerdictCountMismatch         VerdictKind = "count_mismatch"
	VerdictLabelMismatch         VerdictKind = "label_mismatch"
	VerdictMissingEdge           VerdictKind = "missing_edge"
	VerdictMissingComponent      VerdictKind = "missing_component"
	VerdictMissingCrossStageEdge VerdictKind = "missing_cross_stage_edge"
)

// Success reports whether the kind is a passing verdict.
func (k VerdictKind) Success() bool {
	return k == VerdictEncoderComplete || k == VerdictAllComplete
}

// Valid reports whether k is one of the known verdict kinds.
func (k VerdictKind) Valid() bool {
	switch k {
	case VerdictEncoderComplete, VerdictAllComplete, VerdictCountMismatch, VerdictLabelMismatch,
		VerdictMissingEdge, VerdictMissingComponent, VerdictMissingCrossStageEdge:
		return true
	}
	return false
}

// MessageKey is the presentation key for the verdict text.
func (k VerdictKind) MessageKey() string {
	return "verdict." + string(k)
}

// EdgeRef names both ends of a reference edge, by reading-order index and by
// the blocks that occupied those positions.
type EdgeRef struct {
	Source      int     `json:"source"`
	Target      int     `json:"target"`
	SourceBlock BlockID `json:"source_block"`
	TargetBlock BlockID `json:"target_block"`
}

// Verdict is the structured outcome of validation. Failed verdicts carry
// enough identity for a front end to highlight the culprit.
type Verdict struct {
	Kind       VerdictKind `json:"kind"`
	Stage      Stage       `json:"stage"`
	Success    bool        `json:"success"`
	MessageKey string      `json:"message_key"`
	Message    string      `json:"message"`

	// CountMismatch
	Expected int `json:"expected"`
	Got      int `json:"got"`

	// LabelMismatch; Index is only meaningful together with Block.
	Index         int     `json:"index"`
	Block         BlockID `json:"block,omitempty"`
	ExpectedLabel Label   `json:"expected_label,omitempty"`
	GotLabel      Label   `json:"got_label,omitempty"`

	// MissingEdge and MissingCrossStageEdge
	Edge *EdgeRef `json:"edge,omitempty"`

	// MissingComponent
	Component Label `json:"component,omitempty"`
}

// Offenders lists the blocks a front end should highlight.
func (v Verdict) Offenders() []BlockID {
	var ids []BlockID
	if v.Block != "" {
		ids = append(ids, v.Block)
	}
	if v.Edge != nil {
		if v.Edge.SourceBlock != "" {
			ids = append(ids, v.Edge.SourceBlock)
		}
		if v.Edge.TargetBlock != "" {
			ids = append(ids, v.Edge.TargetBlock)
		}
	}
	return ids
}

func (v Verdict) String() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Message)
}

func newVerdict(kind VerdictKind, stage Stage) Verdict {
	return Verdict{
		Kind:       kind,
		Stage:      stage,
		Success:    kind.Success(),
		MessageKey: kind.MessageKey(),
	}
}

func countMismatch(stage Stage, expected, got int) Verdict {
	v := newVerdict(VerdictCountMismatch, stage)
	v.Expected, v.Got = expected, got
	v.Message = fmt.Sprintf("Wrong number of blocks for the %s: expected %d, got %d", stage, expected, got)
	return v
}

func labelMismatch(stage Stage, index int, b Block, expected Label) Verdict {
	v := newVerdict(VerdictLabelMismatch, stage)
	v.Index, v.Block = index, b.ID
	v.ExpectedLabel, v.GotLabel = expected, b.Label
	v.Message = fmt.Sprintf("Wrong block at position %d in the %s: %s", index+1, stage, b.Label)
	return v
}

func missingEdge(stage Stage, e Edge, src, dst Block) Verdict {
	v := newVerdict(VerdictMissingEdge, stage)
	v.Edge = &EdgeRef{Source: e.Source, Target: e.Target, SourceBlock: src.ID, TargetBlock: dst.ID}
	v.Message = fmt.Sprintf("Missing connection from %s to %s in the %s", src.Label, dst.Label, stage)
	return v
}

func missingComponent(stage Stage, l Label) Verdict {
	v := newVerdict(VerdictMissingComponent, stage)
	v.Component = l
	v.Message = fmt.Sprintf("No %s block found in the %s", l, stage)
	return v
}

// missingCrossStageEdge indexes the source in the saved encoder's placement
// order and the target in the decoder's reading order.
func missingCrossStageEdge(srcIndex int, src BlockID, dstIndex int, dst BlockID) Verdict {
	v := newVerdict(VerdictMissingCrossStageEdge, StageDecoder)
	v.Edge = &EdgeRef{Source: srcIndex, Target: dstIndex, SourceBlock: src, TargetBlock: dst}
	v.Message = "Almost there! Now connect the encoder to the decoder"
	return v
}

func encoderComplete() Verdict {
	v := newVerdict(VerdictEncoderComplete, StageEncoder)
	v.Message = "Encoder assembled correctly! Now build the decoder"
	return v
}

func allComplete() Verdict {
	v := newVerdict(VerdictAllComplete, StageDecoder)
	v.Message = "All correct! The Transformer is complete"
	return v
}
