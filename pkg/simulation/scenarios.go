package simulation

import (
	"fmt"
	"slices"

	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

// DefaultScenarios returns the built-in scenarios, one per reachable verdict.
//
// missing_component has no scenario: every reference decoder layout that
// passes the label check already contains Multi-Head Attention.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Name:        "solve",
			Description: "Both stacks built exactly as the reference, blocks dropped in random order.",
			Players:     1,
			Seed:        1,
			Expect:      puzzle.VerdictAllComplete,
		},
		{
			Name:        "short_encoder",
			Description: "The final Add & Norm of the encoder is never placed.",
			Players:     1,
			Seed:        2,
			Faults:      []Fault{{Kind: FaultDropBlock, Stage: puzzle.StageEncoder, A: 5}},
			Expect:      puzzle.VerdictCountMismatch,
		},
		{
			Name:        "swapped_feed_forward",
			Description: "Feed Forward and the first Add & Norm trade places in the encoder.",
			Players:     1,
			Seed:        3,
			Faults:      []Fault{{Kind: FaultSwapLabels, Stage: puzzle.StageEncoder, A: 3, B: 4}},
			Expect:      puzzle.VerdictLabelMismatch,
		},
		{
			Name:        "missing_residual",
			Description: "The residual around encoder attention is never drawn.",
			Players:     1,
			Seed:        4,
			Faults:      []Fault{{Kind: FaultOmitEdge, Stage: puzzle.StageEncoder, A: 1, B: 3}},
			Expect:      puzzle.VerdictMissingEdge,
		},
		{
			Name:        "encoder_only",
			Description: "The encoder passes but the decoder drops its last residual.",
			Players:     1,
			Seed:        5,
			Faults:      []Fault{{Kind: FaultOmitEdge, Stage: puzzle.StageDecoder, A: 5, B: 7}},
			Expect:      puzzle.VerdictMissingEdge,
		},
		{
			Name:        "no_cross_attention",
			Description: "The decoder is complete but never attends to the encoder output.",
			Players:     1,
			Seed:        6,
			Faults:      []Fault{{Kind: FaultOmitCrossEdge}},
			Expect:      puzzle.VerdictMissingCrossStageEdge,
		},
		{
			Name:        "crowd",
			Description: "Eight players solve the puzzle at once.",
			Players:     8,
			Seed:        7,
			Expect:      puzzle.VerdictAllComplete,
		},
	}
}

// ScenarioNames lists the built-in scenario names in order.
func ScenarioNames() []string {
	var names []string
	for _, s := range DefaultScenarios() {
		names = append(names, s.Name)
	}
	return names
}

// FindScenario returns the built-in scenario called name.
func FindScenario(name string) (Scenario, error) {
	all := DefaultScenarios()
	i := slices.IndexFunc(all, func(s Scenario) bool { return s.Name == name })
	if i < 0 {
		return Scenario{}, fmt.Errorf("unknown scenario %q", name)
	}
	return all[i], nil
}
