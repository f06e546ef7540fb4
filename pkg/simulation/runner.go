package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

// Column positions of the two stacks, and the vertical pitch between blocks.
const (
	encoderColumn = 300
	decoderColumn = 700
	baseline      = 1200
	pitch         = 100
)

// LoadScenario reads a scenario from a YAML (or JSON) file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	return s, s.Validate()
}

// Validate checks fault kinds and indices against the reference layouts.
func (s Scenario) Validate() error {
	if s.Players < 0 {
		return errors.New("players must not be negative")
	}
	if s.Expect != "" && !s.Expect.Valid() {
		return fmt.Errorf("unknown expected verdict %q", s.Expect)
	}
	for i, f := range s.Faults {
		stage := f.stage()
		ref, ok := puzzle.Reference(stage)
		if !ok {
			return fmt.Errorf("fault %d: unknown stage %q", i, f.Stage)
		}
		n := len(ref.Sequence)
		switch f.Kind {
		case FaultOmitEdge:
			if !ref.HasEdge(f.A, f.B) {
				return fmt.Errorf("fault %d: (%d,%d) is not a %s reference edge", i, f.A, f.B, stage)
			}
		case FaultSwapLabels:
			if f.A < 0 || f.A >= n || f.B < 0 || f.B >= n || f.A == f.B {
				return fmt.Errorf("fault %d: cannot swap %d and %d in %s", i, f.A, f.B, stage)
			}
		case FaultDropBlock:
			if f.A < 0 || f.A >= n {
				return fmt.Errorf("fault %d: no block %d in %s", i, f.A, stage)
			}
		case FaultOmitCrossEdge:
		default:
			return fmt.Errorf("fault %d: unknown kind %q", i, f.Kind)
		}
	}
	return nil
}

func (f Fault) stage() puzzle.Stage {
	switch {
	case f.Kind == FaultOmitCrossEdge:
		return puzzle.StageDecoder
	case f.Stage == "":
		return puzzle.StageEncoder
	}
	return f.Stage
}

// RunScenario plays s with s.Players concurrent sessions and compares each
// final verdict with s.Expect.
func RunScenario(ctx context.Context, s Scenario, p Player, logger *slog.Logger) SimulationResult {
	if s.Seed == 0 {
		s.Seed = time.Now().UnixNano()
	}
	if s.Players <= 0 {
		s.Players = 1
	}
	if s.Expect == "" {
		s.Expect = puzzle.VerdictAllComplete
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("simulation_started", "scenario", s.Name, "seed", s.Seed, "players", s.Players)

	start := time.Now()
	res := SimulationResult{
		ScenarioName: s.Name,
		Seed:         s.Seed,
		Expected:     s.Expect,
		Players:      make([]PlayerResult, s.Players),
	}

	var (
		wg       sync.WaitGroup
		commands atomic.Uint64
		failures atomic.Uint64
	)
	for i := 0; i < s.Players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(s.Seed + int64(i)))
			pr := runPlayer(ctx, p, s, rng)
			commands.Add(pr.Commands)
			if pr.Error != "" {
				failures.Add(1)
				logger.Error("simulation_player_failed", "scenario", s.Name, "player", i, "error", pr.Error)
			}
			res.Players[i] = pr
		}(i)
	}
	wg.Wait()

	res.Duration = time.Since(start)
	res.TotalCommands = commands.Load()
	res.TotalErrors = failures.Load()
	res.Success = true
	for _, pr := range res.Players {
		if pr.Error != "" || pr.Final != s.Expect {
			res.Success = false
		}
	}
	logger.Info("simulation_finished", "scenario", s.Name, "success", res.Success, "duration_ms", res.Duration.Milliseconds())
	return res
}

type player struct {
	p   Player
	id  string
	res *PlayerResult
}

func (pl *player) apply(ctx context.Context, cmd puzzle.Command) (puzzle.Outcome, error) {
	pl.res.Commands++
	out, _, err := pl.p.Apply(ctx, pl.id, cmd)
	if err != nil {
		return puzzle.Outcome{}, fmt.Errorf("%s: %w", cmd.Kind, err)
	}
	return out, nil
}

func runPlayer(ctx context.Context, p Player, s Scenario, rng *rand.Rand) PlayerResult {
	var res PlayerResult
	st, err := p.Create(ctx)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.SessionID = st.ID
	pl := &player{p: p, id: st.ID, res: &res}
	if !s.Keep {
		defer func() {
			_ = p.Delete(context.WithoutCancel(ctx), st.ID)
		}()
	}

	encLast, out, err := pl.playStage(ctx, puzzle.StageEncoder, s.Faults, rng, "")
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.record(out)
	if !out.Advanced {
		return res
	}

	_, out, err = pl.playStage(ctx, puzzle.StageDecoder, s.Faults, rng, encLast)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.record(out)
	return res
}

func (r *PlayerResult) record(out puzzle.Outcome) {
	if out.Verdict == nil {
		return
	}
	r.Timeline = append(r.Timeline, Step{Stage: out.Verdict.Stage, Verdict: out.Verdict.Kind, Message: out.Verdict.Message})
	r.Final = out.Verdict.Kind
}

// playStage lays out the reference solution of stage with the faults that
// apply to it, then checks it. Blocks are placed in random order; their
// positions alone decide the reading order. It returns the block placed last,
// which in the encoder stage is the source of the cross-stage arrow.
func (pl *player) playStage(ctx context.Context, stage puzzle.Stage, faults []Fault, rng *rand.Rand, encLast puzzle.BlockID) (puzzle.BlockID, puzzle.Outcome, error) {
	ref, _ := puzzle.Reference(stage)
	labels := slices.Clone(ref.Sequence)
	dropped := make(map[int]bool)
	omitted := make(map[puzzle.Edge]bool)
	omitCross := false
	for _, f := range faults {
		if f.Kind == FaultOmitCrossEdge {
			omitCross = true
			continue
		}
		if f.stage() != stage {
			continue
		}
		switch f.Kind {
		case FaultOmitEdge:
			omitted[puzzle.Edge{Source: f.A, Target: f.B}] = true
		case FaultSwapLabels:
			labels[f.A], labels[f.B] = labels[f.B], labels[f.A]
		case FaultDropBlock:
			dropped[f.A] = true
		}
	}

	x := encoderColumn
	if stage == puzzle.StageDecoder {
		x = decoderColumn
	}
	ids := make([]puzzle.BlockID, len(labels))
	var last puzzle.BlockID
	for _, i := range rng.Perm(len(labels)) {
		if dropped[i] {
			continue
		}
		out, err := pl.apply(ctx, puzzle.PlaceBlock(labels[i], puzzle.Point{X: x, Y: baseline - i*pitch}))
		if err != nil {
			return "", puzzle.Outcome{}, err
		}
		ids[i] = out.Block
		last = out.Block
	}

	for _, e := range ref.Edges {
		if omitted[e] || dropped[e.Source] || dropped[e.Target] {
			continue
		}
		_, err := pl.apply(ctx, puzzle.Connect(
			puzzle.Endpoint{Block: ids[e.Source], Side: puzzle.SideTop},
			puzzle.Endpoint{Block: ids[e.Target], Side: puzzle.SideBottom},
		))
		if err != nil {
			return "", puzzle.Outcome{}, err
		}
	}

	if stage == puzzle.StageDecoder && !omitCross && encLast != "" {
		target := slices.Index(ref.Sequence, puzzle.LabelMultiHeadAttention)
		if target >= 0 && !dropped[target] {
			_, err := pl.apply(ctx, puzzle.Connect(
				puzzle.Endpoint{Block: encLast, Side: puzzle.SideRight},
				puzzle.Endpoint{Block: ids[target], Side: puzzle.SideLeft},
			))
			if err != nil {
				return "", puzzle.Outcome{}, err
			}
		}
	}

	out, err := pl.apply(ctx, puzzle.Check())
	if err != nil {
		return "", puzzle.Outcome{}, err
	}
	return last, out, nil
}
