package simulation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/transformer-puzzle/pkg/game"
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

var quietLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func TestDefaultScenarios(t *testing.T) {
	for _, s := range DefaultScenarios() {
		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, s.Validate())

			m := game.NewManager(nil, game.WithLogger(quietLogger))
			res := RunScenario(context.Background(), s, m, quietLogger)

			assert.True(t, res.Success, "players: %+v", res.Players)
			assert.Len(t, res.Players, s.Players)
			assert.Zero(t, res.TotalErrors)
			for _, pr := range res.Players {
				assert.Equal(t, s.Expect, pr.Final)
				assert.NotEmpty(t, pr.Timeline)
			}

			ids, err := m.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, ids, "sessions should be deleted after the run")
		})
	}
}

func TestRunScenario_Timeline(t *testing.T) {
	m := game.NewManager(nil, game.WithLogger(quietLogger))
	s, err := FindScenario("no_cross_attention")
	require.NoError(t, err)
	s.Keep = true

	res := RunScenario(context.Background(), s, m, quietLogger)
	require.Len(t, res.Players, 1)
	pr := res.Players[0]
	assert.Equal(t, []Step{
		{Stage: puzzle.StageEncoder, Verdict: puzzle.VerdictEncoderComplete},
		{Stage: puzzle.StageDecoder, Verdict: puzzle.VerdictMissingCrossStageEdge},
	}, stripMessages(pr.Timeline))

	// 6 + 7 + check, then 10 + 12 + check without the cross edge.
	assert.Equal(t, uint64(37), pr.Commands)
	assert.Equal(t, uint64(37), res.TotalCommands)

	st, err := m.Get(context.Background(), pr.SessionID)
	require.NoError(t, err)
	assert.Equal(t, puzzle.StageDecoder, st.Stage)
	assert.Len(t, st.Canvas.Blocks, 10)
}

func TestRunScenario_StopsAfterFailedEncoder(t *testing.T) {
	m := game.NewManager(nil, game.WithLogger(quietLogger))
	s, err := FindScenario("missing_residual")
	require.NoError(t, err)

	res := RunScenario(context.Background(), s, m, quietLogger)
	require.True(t, res.Success)
	assert.Len(t, res.Players[0].Timeline, 1)
}

func TestRunScenario_Defaults(t *testing.T) {
	m := game.NewManager(nil, game.WithLogger(quietLogger))
	res := RunScenario(context.Background(), Scenario{Name: "bare"}, m, nil)
	assert.Equal(t, puzzle.VerdictAllComplete, res.Expected)
	assert.NotZero(t, res.Seed)
	assert.Len(t, res.Players, 1)
	assert.True(t, res.Success)
}

func TestRunScenario_UnexpectedVerdict(t *testing.T) {
	m := game.NewManager(nil, game.WithLogger(quietLogger))
	s := Scenario{Name: "wrong", Seed: 9, Faults: []Fault{{Kind: FaultDropBlock, A: 0}}}

	res := RunScenario(context.Background(), s, m, quietLogger)
	assert.False(t, res.Success)
	assert.Equal(t, puzzle.VerdictCountMismatch, res.Players[0].Final)
}

type brokenPlayer struct {
	*game.Manager
	failAfter int
	calls     int
}

func (b *brokenPlayer) Apply(ctx context.Context, id string, cmd puzzle.Command) (puzzle.Outcome, puzzle.State, error) {
	b.calls++
	if b.calls > b.failAfter {
		return puzzle.Outcome{}, puzzle.State{}, errors.New("connection reset")
	}
	return b.Manager.Apply(ctx, id, cmd)
}

func TestRunScenario_PlayerError(t *testing.T) {
	p := &brokenPlayer{Manager: game.NewManager(nil, game.WithLogger(quietLogger)), failAfter: 3}
	res := RunScenario(context.Background(), Scenario{Name: "flaky", Seed: 1}, p, quietLogger)

	assert.False(t, res.Success)
	assert.Equal(t, uint64(1), res.TotalErrors)
	assert.Contains(t, res.Players[0].Error, "connection reset")
	assert.Equal(t, uint64(4), res.Players[0].Commands)
}

func TestScenario_Validate(t *testing.T) {
	tests := []struct {
		name string
		s    Scenario
		ok   bool
	}{
		{"empty", Scenario{}, true},
		{"negative players", Scenario{Players: -1}, false},
		{"bad verdict", Scenario{Expect: "solved"}, false},
		{"omit reference edge", Scenario{Faults: []Fault{{Kind: FaultOmitEdge, A: 3, B: 5}}}, true},
		{"omit unknown edge", Scenario{Faults: []Fault{{Kind: FaultOmitEdge, A: 0, B: 5}}}, false},
		{"decoder edge", Scenario{Faults: []Fault{{Kind: FaultOmitEdge, Stage: puzzle.StageDecoder, A: 8, B: 9}}}, true},
		{"swap same", Scenario{Faults: []Fault{{Kind: FaultSwapLabels, A: 2, B: 2}}}, false},
		{"swap out of range", Scenario{Faults: []Fault{{Kind: FaultSwapLabels, A: 2, B: 6}}}, false},
		{"drop out of range", Scenario{Faults: []Fault{{Kind: FaultDropBlock, Stage: puzzle.StageDecoder, A: 10}}}, false},
		{"unknown stage", Scenario{Faults: []Fault{{Kind: FaultDropBlock, Stage: "middle"}}}, false},
		{"unknown kind", Scenario{Faults: []Fault{{Kind: "shuffle"}}}, false},
		{"cross edge", Scenario{Faults: []Fault{{Kind: FaultOmitCrossEdge, Stage: puzzle.StageEncoder}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "residual.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: residual
players: 2
seed: 42
expect: missing_edge
faults:
  - kind: omit_edge
    stage: decoder
    a: 1
    b: 3
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "residual", s.Name)
	assert.Equal(t, 2, s.Players)
	assert.Equal(t, puzzle.VerdictMissingEdge, s.Expect)
	require.Len(t, s.Faults, 1)
	assert.Equal(t, Fault{Kind: FaultOmitEdge, Stage: puzzle.StageDecoder, A: 1, B: 3}, s.Faults[0])

	res := RunScenario(context.Background(), s, game.NewManager(nil, game.WithLogger(quietLogger)), quietLogger)
	assert.True(t, res.Success)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("faults:\n  - kind: melt\n"), 0o644))
	_, err = LoadScenario(bad)
	assert.Error(t, err)

	_, err = LoadScenario(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFindScenario(t *testing.T) {
	s, err := FindScenario("crowd")
	require.NoError(t, err)
	assert.Equal(t, 8, s.Players)

	_, err = FindScenario("nope")
	assert.Error(t, err)
	assert.Equal(t, len(DefaultScenarios()), len(ScenarioNames()))
}

// Placement order never matters: any seed solves the puzzle.
func TestRunScenario_AnySeedSolves(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	m := game.NewManager(nil, game.WithLogger(quietLogger))
	properties.Property("solve succeeds", prop.ForAll(
		func(seed int64) bool {
			res := RunScenario(context.Background(), Scenario{Name: "prop", Seed: seed}, m, quietLogger)
			return res.Success
		},
		gen.Int64Range(1, 1<<40),
	))
	properties.TestingRun(t)
}

func stripMessages(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = Step{Stage: s.Stage, Verdict: s.Verdict}
	}
	return out
}
