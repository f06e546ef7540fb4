package puzzle

import "errors"

// CommandKind is one of the discrete player actions a session accepts.
type CommandKind string

const (
	CommandPlaceBlock   CommandKind = "place_block"
	CommandMoveBlock    CommandKind = "move_block"
	CommandConnect      CommandKind = "connect"
	CommandDiscardBlock CommandKind = "discard_block"
	CommandCheck        CommandKind = "check"
	CommandClearStage   CommandKind = "clear_stage"
	CommandReset        CommandKind = "reset"
)

// CommandKinds lists every accepted command kind.
var CommandKinds = []CommandKind{
	CommandPlaceBlock,
	CommandMoveBlock,
	CommandConnect,
	CommandDiscardBlock,
	CommandCheck,
	CommandClearStage,
	CommandReset,
}

// Command errors. They describe input the session refuses; the session is
// left untouched.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownLabel   = errors.New("unknown block label")
	ErrUnknownBlock   = errors.New("unknown block")
	ErrUnknownSide    = errors.New("unknown connection side")
	ErrSelfConnection = errors.New("arrow must join two different connection points")
)

// Command is a single player action. Only the fields relevant to Kind are
// read.
type Command struct {
	Kind  CommandKind `json:"kind"`
	Label Label       `json:"label,omitempty"`
	Block BlockID     `json:"block,omitempty"`
	At    Point       `json:"at"`
	From  Endpoint    `json:"from"`
	To    Endpoint    `json:"to"`
}

// PlaceBlock spawns a new block with its top-left corner at at.
func PlaceBlock(label Label, at Point) Command {
	return Command{Kind: CommandPlaceBlock, Label: label, At: at}
}

// MoveBlock drags a block so its top-left corner lands at at.
func MoveBlock(id BlockID, at Point) Command {
	return Command{Kind: CommandMoveBlock, Block: id, At: at}
}

// Connect draws an arrow between two connection points.
func Connect(from, to Endpoint) Command {
	return Command{Kind: CommandConnect, From: from, To: to}
}

// DiscardBlock drops a block into the discard zone.
func DiscardBlock(id BlockID) Command {
	return Command{Kind: CommandDiscardBlock, Block: id}
}

// Check validates the active stage.
func Check() Command { return Command{Kind: CommandCheck} }

// ClearStage empties the active canvas.
func ClearStage() Command { return Command{Kind: CommandClearStage} }

// Reset starts the puzzle over from the encoder stage.
func Reset() Command { return Command{Kind: CommandReset} }

// Outcome reports what a command did.
type Outcome struct {
	Kind  CommandKind `json:"kind"`
	Stage Stage       `json:"stage"`
	// Block is set for place_block, move_block and discard_block.
	Block BlockID `json:"block,omitempty"`
	// Arrow is set for connect.
	Arrow ArrowID `json:"arrow,omitempty"`
	// Verdict is set for check.
	Verdict *Verdict `json:"verdict,omitempty"`
	// Advanced is true when the check moved the session to the next stage.
	Advanced bool `json:"advanced,omitempty"`
	// Completed is true when the check solved the whole puzzle for the first
	// time.
	Completed bool `json:"completed,omitempty"`
}
