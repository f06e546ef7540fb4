package api

import (
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
	"github.com/rmax-ai/transformer-puzzle/pkg/simulation"
)

// PointRequest is a canvas coordinate in a command body.
type PointRequest struct {
	X int `json:"x" validate:"min=0,max=100000"`
	Y int `json:"y" validate:"min=0,max=100000"`
}

// EndpointRequest names a connection point in a connect command.
type EndpointRequest struct {
	Block string `json:"block" validate:"required,max=64"`
	Side  string `json:"side" validate:"required,oneof=top right bottom left"`
}

// CommandRequest matches the POST /v1/sessions/{id}/commands body schema.
// Which fields are required depends on Kind.
type CommandRequest struct {
	Kind  string           `json:"kind" validate:"required,max=32"`
	Label string           `json:"label,omitempty" validate:"omitempty,max=64"`
	Block string           `json:"block,omitempty" validate:"omitempty,max=64"`
	At    *PointRequest    `json:"at,omitempty"`
	From  *EndpointRequest `json:"from,omitempty"`
	To    *EndpointRequest `json:"to,omitempty"`
}

// NewCommandRequest is the wire form of cmd.
func NewCommandRequest(cmd puzzle.Command) CommandRequest {
	req := CommandRequest{
		Kind:  string(cmd.Kind),
		Label: string(cmd.Label),
		Block: string(cmd.Block),
	}
	switch cmd.Kind {
	case puzzle.CommandPlaceBlock, puzzle.CommandMoveBlock:
		req.At = &PointRequest{X: cmd.At.X, Y: cmd.At.Y}
	case puzzle.CommandConnect:
		req.From = &EndpointRequest{Block: string(cmd.From.Block), Side: string(cmd.From.Side)}
		req.To = &EndpointRequest{Block: string(cmd.To.Block), Side: string(cmd.To.Side)}
	}
	return req
}

// Command converts a validated request into a session command.
func (r CommandRequest) Command() puzzle.Command {
	cmd := puzzle.Command{
		Kind:  puzzle.CommandKind(r.Kind),
		Label: puzzle.Label(r.Label),
		Block: puzzle.BlockID(r.Block),
	}
	if r.At != nil {
		cmd.At = puzzle.Point{X: r.At.X, Y: r.At.Y}
	}
	if r.From != nil {
		cmd.From = puzzle.Endpoint{Block: puzzle.BlockID(r.From.Block), Side: puzzle.Side(r.From.Side)}
	}
	if r.To != nil {
		cmd.To = puzzle.Endpoint{Block: puzzle.BlockID(r.To.Block), Side: puzzle.Side(r.To.Side)}
	}
	return cmd
}

// CommandResponse matches the response for POST /v1/sessions/{id}/commands
type CommandResponse struct {
	Outcome puzzle.Outcome `json:"outcome"`
	Session puzzle.State   `json:"session"`
}

// SessionList matches the response for GET /v1/sessions
type SessionList struct {
	Sessions []string `json:"sessions"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

// SimulationRequest matches the POST /v1/simulations body. Either Name picks
// a built-in scenario or Scenario is given inline.
type SimulationRequest struct {
	Name     string               `json:"name,omitempty" validate:"required_without=Scenario,max=64"`
	Scenario *simulation.Scenario `json:"scenario,omitempty" validate:"required_without=Name"`
}
