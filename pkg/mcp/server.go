package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/transformer-puzzle/pkg/client"
	"github.com/rmax-ai/transformer-puzzle/pkg/game"
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

// Sessions is what the MCP surface needs from a session owner. Both
// *client.Client and *game.Manager satisfy it.
type Sessions interface {
	Create(ctx context.Context) (puzzle.State, error)
	Get(ctx context.Context, id string) (puzzle.State, error)
	Apply(ctx context.Context, id string, cmd puzzle.Command) (puzzle.Outcome, puzzle.State, error)
}

// Server adapts the puzzle to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	sessions  Sessions
}

// NewServer creates a new MCP server instance playing through sessions.
func NewServer(sessions Sessions) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"transformer-puzzle",
			"1.0.0",
		),
		sessions: sessions,
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// NewRemoteServer creates an MCP server that plays against the daemon at apiURL.
func NewRemoteServer(apiURL string) *Server {
	return NewServer(client.NewClient(apiURL, client.WithOrigin("mcp")))
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		"tpuzzle://palette",
		"Block Palette",
		mcp.WithResourceDescription("The block labels that can be placed, with their size and shape"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadPalette)

	for _, stage := range []puzzle.Stage{puzzle.StageEncoder, puzzle.StageDecoder} {
		s.mcpServer.AddResource(mcp.NewResource(
			"tpuzzle://reference/"+string(stage),
			"Reference "+string(stage),
			mcp.WithResourceDescription("Block sequence in reading order and the required arrows between positions"),
			mcp.WithMIMEType("application/json"),
		), s.handleReadReference)
	}
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"new_session",
		mcp.WithDescription("Start a new puzzle session at the encoder stage. Returns the session ID."),
	), s.handleNewSession)

	s.mcpServer.AddTool(mcp.NewTool(
		"show_session",
		mcp.WithDescription("Show the blocks and arrows of the active stage in reading order."),
		mcp.WithString("session_id", mcp.Required()),
	), s.handleShowSession)

	s.mcpServer.AddTool(mcp.NewTool(
		"place_block",
		mcp.WithDescription("Spawn a block from the palette with its top-left corner at (x, y). Smaller y reads later."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("label", mcp.Required(), mcp.Description("Palette label, e.g. 'Multi-Head Attention'")),
		mcp.WithNumber("x", mcp.Required()),
		mcp.WithNumber("y", mcp.Required()),
	), s.handlePlaceBlock)

	s.mcpServer.AddTool(mcp.NewTool(
		"move_block",
		mcp.WithDescription("Move a block's top-left corner to (x, y)."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("block_id", mcp.Required()),
		mcp.WithNumber("x", mcp.Required()),
		mcp.WithNumber("y", mcp.Required()),
	), s.handleMoveBlock)

	sides := []string{string(puzzle.SideTop), string(puzzle.SideRight), string(puzzle.SideBottom), string(puzzle.SideLeft)}
	s.mcpServer.AddTool(mcp.NewTool(
		"connect_blocks",
		mcp.WithDescription("Draw an arrow from a connection point of one block to a connection point of another."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("from_block", mcp.Required()),
		mcp.WithString("from_side", mcp.Description("Connection point on the source block (default top)"), mcp.Enum(sides...)),
		mcp.WithString("to_block", mcp.Required()),
		mcp.WithString("to_side", mcp.Description("Connection point on the target block (default bottom)"), mcp.Enum(sides...)),
	), s.handleConnectBlocks)

	s.mcpServer.AddTool(mcp.NewTool(
		"discard_block",
		mcp.WithDescription("Remove a block. Arrows touching it stay but no longer count."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("block_id", mcp.Required()),
	), s.handleDiscardBlock)

	s.mcpServer.AddTool(mcp.NewTool(
		"check_layout",
		mcp.WithDescription("Validate the active stage against the reference architecture."),
		mcp.WithString("session_id", mcp.Required()),
	), s.handleCheckLayout)

	s.mcpServer.AddTool(mcp.NewTool(
		"clear_stage",
		mcp.WithDescription("Remove every block and arrow of the active stage. A saved encoder is kept."),
		mcp.WithString("session_id", mcp.Required()),
	), s.commandHandler(func(mcp.CallToolRequest) puzzle.Command { return puzzle.ClearStage() }))

	s.mcpServer.AddTool(mcp.NewTool(
		"reset_session",
		mcp.WithDescription("Start the session over from an empty encoder stage."),
		mcp.WithString("session_id", mcp.Required()),
	), s.commandHandler(func(mcp.CallToolRequest) puzzle.Command { return puzzle.Reset() }))
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"transformer-tutor",
		mcp.WithPromptDescription("Explains the puzzle rules and how to assemble the Transformer with the tools"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadPalette(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(request.Params.URI, puzzle.Palette())
}

func (s *Server) handleReadReference(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stage, err := puzzle.ParseStage(strings.TrimPrefix(request.Params.URI, "tpuzzle://reference/"))
	if err != nil {
		return nil, err
	}
	ref, _ := puzzle.Reference(stage)
	return jsonResource(request.Params.URI, ref)
}

func (s *Server) handleNewSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.sessions.Create(withOrigin(ctx))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return toolJSON(newSessionView(st))
}

func (s *Server) handleShowSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.sessions.Get(withOrigin(ctx), mcp.ParseString(request, "session_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return toolJSON(newSessionView(st))
}

func (s *Server) handlePlaceBlock(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.commandHandler(func(r mcp.CallToolRequest) puzzle.Command {
		raw := mcp.ParseString(r, "label", "")
		label, ok := puzzle.ParseLabel(raw)
		if !ok {
			label = puzzle.Label(raw)
		}
		return puzzle.PlaceBlock(label, parsePoint(r))
	})(ctx, request)
}

func (s *Server) handleMoveBlock(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.commandHandler(func(r mcp.CallToolRequest) puzzle.Command {
		return puzzle.MoveBlock(puzzle.BlockID(mcp.ParseString(r, "block_id", "")), parsePoint(r))
	})(ctx, request)
}

func (s *Server) handleConnectBlocks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.commandHandler(func(r mcp.CallToolRequest) puzzle.Command {
		return puzzle.Connect(
			puzzle.Endpoint{
				Block: puzzle.BlockID(mcp.ParseString(r, "from_block", "")),
				Side:  puzzle.Side(mcp.ParseString(r, "from_side", string(puzzle.SideTop))),
			},
			puzzle.Endpoint{
				Block: puzzle.BlockID(mcp.ParseString(r, "to_block", "")),
				Side:  puzzle.Side(mcp.ParseString(r, "to_side", string(puzzle.SideBottom))),
			},
		)
	})(ctx, request)
}

func (s *Server) handleDiscardBlock(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.commandHandler(func(r mcp.CallToolRequest) puzzle.Command {
		return puzzle.DiscardBlock(puzzle.BlockID(mcp.ParseString(r, "block_id", "")))
	})(ctx, request)
}

func (s *Server) handleCheckLayout(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "session_id", "")
	out, _, err := s.sessions.Apply(withOrigin(ctx), id, puzzle.Check())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	v := out.Verdict
	if v == nil {
		return mcp.NewToolResultError("check returned no verdict"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Verdict: %s\n%s\n", v.Kind, v.Message)
	switch {
	case out.Completed:
		b.WriteString("The Transformer is complete.\n")
	case out.Advanced:
		b.WriteString("The encoder is saved; the session is now on the decoder stage.\n")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verdict: %w", err)
	}
	b.Write(data)
	return mcp.NewToolResultText(b.String()), nil
}

// commandHandler applies the command built from the request and reports the
// outcome with the resulting stage.
func (s *Server) commandHandler(build func(mcp.CallToolRequest) puzzle.Command) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "session_id", "")
		out, st, err := s.sessions.Apply(withOrigin(ctx), id, build(request))
		if err != nil {
			return mcp.NewToolResultError(rejection(err)), nil
		}
		return toolJSON(struct {
			Outcome puzzle.Outcome `json:"outcome"`
			Session sessionView    `json:"session"`
		}{out, newSessionView(st)})
	}
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "transformer-tutor" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are helping someone assemble the Transformer architecture from "Attention Is All You Need" as a block diagram.

Rules:
- The canvas is read bottom to top: a block with a larger y comes earlier. Ties go to the smaller x.
- Only the order of blocks matters, not exact coordinates. Stack blocks 100 units apart in one column.
- Arrows join connection points (top, right, bottom, left). Draw data flow from the top of the earlier block to the bottom of the later one.
- The encoder is checked first. When it passes it is saved and the canvas clears for the decoder.
- The decoder's Multi-Head Attention must also receive an arrow from the encoder block you placed last.

Read tpuzzle://reference/encoder and tpuzzle://reference/decoder for the sequences and required arrows.
Use check_layout after each stage and explain any failed verdict before fixing it.
`

	return mcp.NewGetPromptResult(
		"transformer-tutor",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}

// sessionView is the compact session summary returned to agents.
type sessionView struct {
	ID        string         `json:"id"`
	Stage     puzzle.Stage   `json:"stage"`
	Completed bool           `json:"completed"`
	Blocks    []puzzle.Block `json:"blocks"`
	Arrows    []puzzle.Arrow `json:"arrows"`
	Encoder   int            `json:"saved_encoder_blocks"`
}

func newSessionView(st puzzle.State) sessionView {
	return sessionView{
		ID:        st.ID,
		Stage:     st.Stage,
		Completed: st.Completed,
		Blocks:    puzzle.ReadingOrder(st.Canvas.Blocks),
		Arrows:    st.Canvas.Arrows,
		Encoder:   len(st.Encoder.Blocks),
	}
}

func parsePoint(r mcp.CallToolRequest) puzzle.Point {
	return puzzle.Point{X: mcp.ParseInt(r, "x", 0), Y: mcp.ParseInt(r, "y", 0)}
}

func withOrigin(ctx context.Context) context.Context {
	return game.WithOrigin(ctx, "mcp", "mcp-agent")
}

// rejection explains a refused command in terms an agent can act on.
func rejection(err error) string {
	switch {
	case errors.Is(err, puzzle.ErrUnknownLabel):
		return fmt.Sprintf("Rejected: unknown label. Read tpuzzle://palette for valid labels. (%v)", err)
	case errors.Is(err, puzzle.ErrUnknownBlock):
		return fmt.Sprintf("Rejected: no such block. Use show_session to list block IDs. (%v)", err)
	case errors.Is(err, puzzle.ErrUnknownSide):
		return fmt.Sprintf("Rejected: side must be top, right, bottom or left. (%v)", err)
	case errors.Is(err, puzzle.ErrSelfConnection):
		return fmt.Sprintf("Rejected: an arrow needs two different connection points. (%v)", err)
	}
	return fmt.Sprintf("API error: %v", err)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func toolJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
