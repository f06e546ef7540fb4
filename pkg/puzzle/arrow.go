package puzzle

// ArrowID identifies an arrow within a session.
type ArrowID string

// Endpoint is a connection point: a block and one of its sides.
type Endpoint struct {
	Block BlockID `json:"block"`
	Side  Side    `json:"side"`
}

// Arrow is a directed edge drawn between two connection points. Only the
// owning blocks matter structurally.
type Arrow struct {
	ID   ArrowID  `json:"id"`
	From Endpoint `json:"from"`
	To   Endpoint `json:"to"`
}

// Links reports whether the arrow runs from block src to block dst.
func (a Arrow) Links(src, dst BlockID) bool {
	return a.From.Block == src && a.To.Block == dst
}

// Touches reports whether either end of the arrow is attached to id.
func (a Arrow) Touches(id BlockID) bool {
	return a.From.Block == id || a.To.Block == id
}

// Near reports whether p lies within ArrowHitThreshold of the drawn segment.
// The lookup resolves endpoint positions, so arrows whose blocks are gone
// are never near anything.
func (a Arrow) Near(p Point, lookup func(BlockID) (Block, bool)) bool {
	from, ok := lookup(a.From.Block)
	if !ok {
		return false
	}
	to, ok := lookup(a.To.Block)
	if !ok {
		return false
	}
	return distanceToSegment(p, from.Anchor(a.From.Side), to.Anchor(a.To.Side)) <= ArrowHitThreshold
}

// HasEdge reports whether any arrow links src to dst. Duplicates are fine.
func HasEdge(arrows []Arrow, src, dst BlockID) bool {
	for _, a := range arrows {
		if a.Links(src, dst) {
			return true
		}
	}
	return false
}
