package puzzle

import (
	"fmt"
	"slices"
)

// Snapshot is the encoder layout saved when the encoder stage passes.
// Blocks keep their placement order, so the last one is the block placed
// last, wherever it sits on the canvas.
type Snapshot struct {
	Blocks []Block `json:"blocks"`
	Arrows []Arrow `json:"arrows"`
}

// Block returns the saved block with the given ID.
func (s Snapshot) Block(id BlockID) (Block, bool) {
	for _, b := range s.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return Block{}, false
}

// Last returns the block placed last in the encoder stage. The decoder's
// Multi-Head Attention must be fed from it.
func (s Snapshot) Last() (Block, bool) {
	if len(s.Blocks) == 0 {
		return Block{}, false
	}
	return s.Blocks[len(s.Blocks)-1], true
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{Blocks: slices.Clone(s.Blocks), Arrows: slices.Clone(s.Arrows)}
}

// State is the serializable form of a session.
type State struct {
	ID        string   `json:"id"`
	Stage     Stage    `json:"stage"`
	Completed bool     `json:"completed"`
	Canvas    Canvas   `json:"canvas"`
	Encoder   Snapshot `json:"encoder"`
	NextBlock int      `json:"next_block"`
	NextArrow int      `json:"next_arrow"`
}

// Session is one player's puzzle. It processes one command at a time and is
// not safe for concurrent use.
type Session struct {
	st State
}

// NewSession starts a puzzle at the encoder stage.
func NewSession(id string) *Session {
	return &Session{st: State{ID: id, Stage: StageEncoder}}
}

// Restore rebuilds a session from a saved state.
func Restore(st State) (*Session, error) {
	if _, err := ParseStage(string(st.Stage)); err != nil {
		return nil, err
	}
	st.Canvas = st.Canvas.Clone()
	st.Encoder = st.Encoder.clone()
	return &Session{st: st}, nil
}

// State returns a deep copy of the session state.
func (s *Session) State() State {
	st := s.st
	st.Canvas = st.Canvas.Clone()
	st.Encoder = st.Encoder.clone()
	return st
}

func (s *Session) ID() string      { return s.st.ID }
func (s *Session) Stage() Stage    { return s.st.Stage }
func (s *Session) Completed() bool { return s.st.Completed }

// Canvas returns a copy of the active canvas.
func (s *Session) Canvas() Canvas { return s.st.Canvas.Clone() }

// Encoder returns a copy of the saved encoder layout. It is empty until the
// encoder stage passes.
func (s *Session) Encoder() Snapshot { return s.st.Encoder.clone() }

// ReadingOrder returns the active blocks in the order the validator reads
// them.
func (s *Session) ReadingOrder() []Block {
	return ReadingOrder(s.st.Canvas.Blocks)
}

// Lookup finds a block on the active canvas or, in the decoder stage, among
// the saved encoder blocks.
func (s *Session) Lookup(id BlockID) (Block, bool) {
	if b, ok := s.st.Canvas.Block(id); ok {
		return b, true
	}
	if s.st.Stage == StageDecoder {
		return s.st.Encoder.Block(id)
	}
	return Block{}, false
}

// BlockAt returns the block under p. Active blocks are drawn above the saved
// encoder.
func (s *Session) BlockAt(p Point) (Block, bool) {
	if b, ok := s.st.Canvas.BlockAt(p); ok {
		return b, true
	}
	if s.st.Stage == StageDecoder {
		return Canvas{Blocks: s.st.Encoder.Blocks}.BlockAt(p)
	}
	return Block{}, false
}

// ConnectionPointAt returns the connection point under p, searching the
// saved encoder blocks as well in the decoder stage.
func (s *Session) ConnectionPointAt(p Point) (Endpoint, bool) {
	if ep, ok := s.st.Canvas.ConnectionPointAt(p); ok {
		return ep, true
	}
	if s.st.Stage == StageDecoder {
		return Canvas{Blocks: s.st.Encoder.Blocks}.ConnectionPointAt(p)
	}
	return Endpoint{}, false
}

// ArrowAt returns the first arrow of the active stage drawn near p.
func (s *Session) ArrowAt(p Point) (Arrow, bool) {
	for _, a := range s.st.Canvas.Arrows {
		if a.Near(p, s.Lookup) {
			return a, true
		}
	}
	return Arrow{}, false
}

// Apply executes cmd. A returned error means the command was refused and
// the session is unchanged. Validation failures are not errors; they come
// back as the Verdict of a check outcome.
func (s *Session) Apply(cmd Command) (Outcome, error) {
	out := Outcome{Kind: cmd.Kind}
	switch cmd.Kind {
	case CommandPlaceBlock:
		id, err := s.place(cmd.Label, cmd.At)
		if err != nil {
			return Outcome{}, err
		}
		out.Block = id
	case CommandMoveBlock:
		if !s.st.Canvas.move(cmd.Block, cmd.At) {
			return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownBlock, cmd.Block)
		}
		out.Block = cmd.Block
	case CommandConnect:
		id, err := s.connect(cmd.From, cmd.To)
		if err != nil {
			return Outcome{}, err
		}
		out.Arrow = id
	case CommandDiscardBlock:
		if !s.st.Canvas.remove(cmd.Block) {
			return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownBlock, cmd.Block)
		}
		out.Block = cmd.Block
	case CommandCheck:
		s.check(&out)
	case CommandClearStage:
		s.st.Canvas.clear()
	case CommandReset:
		s.st.Stage = StageEncoder
		s.st.Completed = false
		s.st.Canvas.clear()
		s.st.Encoder = Snapshot{}
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}
	out.Stage = s.st.Stage
	return out, nil
}

func (s *Session) place(label Label, at Point) (BlockID, error) {
	entry, ok := LookupLabel(label)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	s.st.NextBlock++
	b := Block{
		ID:    BlockID(fmt.Sprintf("blk-%d", s.st.NextBlock)),
		Label: entry.Label,
		Shape: entry.Shape,
		Rect:  Rect{X: at.X, Y: at.Y, W: entry.Size.W, H: entry.Size.H},
	}
	s.st.Canvas.add(b)
	return b.ID, nil
}

func (s *Session) connect(from, to Endpoint) (ArrowID, error) {
	if !from.Side.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSide, from.Side)
	}
	if !to.Side.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSide, to.Side)
	}
	if from == to {
		return "", ErrSelfConnection
	}
	if _, ok := s.Lookup(from.Block); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownBlock, from.Block)
	}
	if _, ok := s.Lookup(to.Block); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownBlock, to.Block)
	}
	s.st.NextArrow++
	a := Arrow{ID: ArrowID(fmt.Sprintf("arr-%d", s.st.NextArrow)), From: from, To: to}
	s.st.Canvas.connect(a)
	return a.ID, nil
}

// check validates the active stage and applies the consequences of a pass.
// A failing check leaves the state exactly as it was.
func (s *Session) check(out *Outcome) {
	v := Validate(s.st.Stage, s.st.Canvas, s.st.Encoder)
	out.Verdict = &v.Verdict

	switch v.Verdict.Kind {
	case VerdictEncoderComplete:
		s.st.Encoder = s.st.Canvas.snapshot()
		s.st.Canvas.clear()
		s.st.Stage = StageDecoder
		out.Advanced = true
	case VerdictAllComplete:
		out.Completed = !s.st.Completed
		s.st.Completed = true
	}
}
