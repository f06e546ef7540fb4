package puzzle

import "fmt"

// Stage selects which reference topology the canvas is checked against.
type Stage string

const (
	StageEncoder Stage = "encoder"
	StageDecoder Stage = "decoder"
)

// ParseStage accepts "encoder" or "decoder".
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageEncoder, StageDecoder:
		return Stage(s), nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Edge is a directed pair of reading-order indices.
type Edge struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

func (e Edge) String() string {
	return fmt.Sprintf("(%d,%d)", e.Source, e.Target)
}

// Topology is the reference answer for one stage.
type Topology struct {
	Stage    Stage   `json:"stage"`
	Sequence []Label `json:"sequence"`
	Edges    []Edge  `json:"edges"`
}

var encoderTopology = Topology{
	Stage: StageEncoder,
	Sequence: []Label{
		LabelInputEmbedding,
		LabelPositionalEncoding,
		LabelMultiHeadAttention,
		LabelAddNorm,
		LabelFeedForward,
		LabelAddNorm,
	},
	Edges: []Edge{
		{0, 1}, // embedding -> positional encoding
		{1, 2}, // positional encoding -> attention
		{2, 3}, // attention -> add & norm
		{1, 3}, // residual
		{3, 5}, // residual around feed forward
		{3, 4},
		{4, 5},
	},
}

var decoderTopology = Topology{
	Stage: StageDecoder,
	Sequence: []Label{
		LabelOutputEmbedding,
		LabelPositionalEncoding,
		LabelMaskedMultiHeadAttention,
		LabelAddNorm,
		LabelMultiHeadAttention,
		LabelAddNorm,
		LabelFeedForward,
		LabelAddNorm,
		LabelLinear,
		LabelSoftmax,
	},
	Edges: []Edge{
		{0, 1},
		{1, 2},
		{1, 3}, // residual around masked attention
		{2, 3},
		{3, 4},
		{3, 5}, // residual around cross attention
		{4, 5},
		{5, 6},
		{6, 7},
		{5, 7}, // residual around feed forward
		{7, 8},
		{8, 9},
	},
}

// Reference returns a copy of the reference topology for stage.
func Reference(stage Stage) (Topology, bool) {
	var t Topology
	switch stage {
	case StageEncoder:
		t = encoderTopology
	case StageDecoder:
		t = decoderTopology
	default:
		return Topology{}, false
	}
	return Topology{
		Stage:    t.Stage,
		Sequence: append([]Label(nil), t.Sequence...),
		Edges:    append([]Edge(nil), t.Edges...),
	}, true
}

// reference returns the shared table without copying. Callers must not
// modify it.
func reference(stage Stage) Topology {
	if stage == StageDecoder {
		return decoderTopology
	}
	return encoderTopology
}

// HasEdge reports whether the topology requires source -> target.
func (t Topology) HasEdge(source, target int) bool {
	for _, e := range t.Edges {
		if e.Source == source && e.Target == target {
			return true
		}
	}
	return false
}
