package simulation

import (
	"context"
	"time"

	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

// Player is anything that can host puzzle sessions: the in-process
// game.Manager or the HTTP client.
type Player interface {
	Create(ctx context.Context) (puzzle.State, error)
	Apply(ctx context.Context, id string, cmd puzzle.Command) (puzzle.Outcome, puzzle.State, error)
	Delete(ctx context.Context, id string) error
}

type FaultKind string

const (
	FaultOmitEdge      FaultKind = "omit_edge"       // skip reference edge (A,B)
	FaultSwapLabels    FaultKind = "swap_labels"     // place labels A and B swapped
	FaultOmitCrossEdge FaultKind = "omit_cross_edge" // never draw encoder -> decoder attention
	FaultDropBlock     FaultKind = "drop_block"      // never place block A
)

// Fault is one deliberate mistake injected into the reference solution.
type Fault struct {
	Kind FaultKind `json:"kind" yaml:"kind"`
	// Stage defaults to encoder. Ignored by omit_cross_edge.
	Stage puzzle.Stage `json:"stage,omitempty" yaml:"stage,omitempty"`
	A     int          `json:"a,omitempty" yaml:"a,omitempty"`
	B     int          `json:"b,omitempty" yaml:"b,omitempty"`
}

type Scenario struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	// Players is how many sessions play the scenario concurrently.
	Players int `json:"players" yaml:"players"`
	// Seed shuffles the order blocks are placed in. Zero means time-based.
	Seed   int64              `json:"seed" yaml:"seed"`
	Faults []Fault            `json:"faults,omitempty" yaml:"faults,omitempty"`
	Expect puzzle.VerdictKind `json:"expect" yaml:"expect"`
	// Keep leaves the sessions in place after the run.
	Keep bool `json:"keep,omitempty" yaml:"keep,omitempty"`
}

// Step is one check performed by a player.
type Step struct {
	Stage   puzzle.Stage       `json:"stage"`
	Verdict puzzle.VerdictKind `json:"verdict"`
	Message string             `json:"message"`
}

type PlayerResult struct {
	SessionID string             `json:"session_id"`
	Timeline  []Step             `json:"timeline"`
	Final     puzzle.VerdictKind `json:"final"`
	Commands  uint64             `json:"commands"`
	Error     string             `json:"error,omitempty"`
}

// SimulationResult captures the outcome of a scenario run for reporting.
type SimulationResult struct {
	ScenarioName  string             `json:"scenario_name"`
	Duration      time.Duration      `json:"duration"`
	Seed          int64              `json:"seed"`
	Expected      puzzle.VerdictKind `json:"expected"`
	TotalCommands uint64             `json:"total_commands"`
	TotalErrors   uint64             `json:"total_errors"`
	Players       []PlayerResult     `json:"players"`
	Success       bool               `json:"success"`
}
