package graph

// NodeType represents where a block node lives.
type NodeType string

const (
	NodeBlock        NodeType = "block"         // block on the active canvas
	NodeEncoderBlock NodeType = "encoder_block" // saved encoder block shown during the decoder stage
)

// EdgeType represents the kind of connection between two nodes.
type EdgeType string

const (
	EdgeArrow        EdgeType = "arrow"         // drawn by the player
	EdgeMissing      EdgeType = "missing"       // reference edge not yet drawn
	EdgeMissingCross EdgeType = "missing_cross" // encoder -> decoder attention edge not yet drawn
)

// Node represents a placed block.
type Node struct {
	ID    string   `json:"id"`
	Type  NodeType `json:"type"`
	Label string   `json:"label"`
	Stage string   `json:"stage"`
	// Index is the block's position in reading order within its stage.
	Index      int               `json:"index"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Edge represents a directed connection between two nodes.
type Edge struct {
	ID       string   `json:"id,omitempty"`
	FromID   string   `json:"from_id"`
	ToID     string   `json:"to_id"`
	Type     EdgeType `json:"type"`
	FromSide string   `json:"from_side,omitempty"`
	ToSide   string   `json:"to_side,omitempty"`
	// Reference is the reference edge "(s,t)" for missing edges.
	Reference string `json:"reference,omitempty"`
}

// Graph is the node/edge view of one session.
type Graph struct {
	SessionID string           `json:"session_id"`
	Stage     string           `json:"stage"`
	Nodes     map[string]*Node `json:"nodes"`
	Edges     []*Edge          `json:"edges"`
}

// NewGraph creates an empty graph.
func NewGraph(sessionID, stage string) *Graph {
	return &Graph{
		SessionID: sessionID,
		Stage:     stage,
		Nodes:     make(map[string]*Node),
		Edges:     make([]*Edge, 0),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(n *Node) {
	g.Nodes[n.ID] = n
}

// AddEdge adds an edge to the graph.
func (g *Graph) AddEdge(e *Edge) {
	g.Edges = append(g.Edges, e)
}

// EdgesOfType returns the edges of type t in insertion order.
func (g *Graph) EdgesOfType(t EdgeType) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
