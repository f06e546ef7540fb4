package puzzle

// BlockID identifies a block within a session. IDs are never reused.
type BlockID string

// Block is a labeled node placed on the canvas.
type Block struct {
	ID    BlockID   `json:"id"`
	Label Label     `json:"label"`
	Shape ShapeKind `json:"shape"`
	Rect  Rect      `json:"rect"`
}

// Position returns the top-left corner used for reading order.
func (b Block) Position() Point {
	return Point{X: b.Rect.X, Y: b.Rect.Y}
}

// Geometry returns the shape variant of the block.
func (b Block) Geometry() Shape {
	return newShape(b.Shape, b.Rect)
}

// Anchor returns the canvas position of the connection point on side.
func (b Block) Anchor(side Side) Point {
	return b.Geometry().Anchor(side)
}

// Contains reports whether p hits the block.
func (b Block) Contains(p Point) bool {
	return b.Geometry().Contains(p)
}

// ConnectionPointAt returns the side whose connection point is within
// ConnectionPointRadius of p.
func (b Block) ConnectionPointAt(p Point) (Side, bool) {
	for _, side := range Sides {
		if distance(b.Anchor(side), p) <= ConnectionPointRadius {
			return side, true
		}
	}
	return "", false
}

// NearestSide returns the side whose connection point is closest to p.
func (b Block) NearestSide(p Point) Side {
	best := SideTop
	bestDist := distance(b.Anchor(SideTop), p)
	for _, side := range Sides[1:] {
		if d := distance(b.Anchor(side), p); d < bestDist {
			best, bestDist = side, d
		}
	}
	return best
}

// MoveTo places the top-left corner of the block at p.
func (b *Block) MoveTo(p Point) {
	b.Rect.X = p.X
	b.Rect.Y = p.Y
}

// CenterOn moves the block so its center sits at p, the way a dragged block
// follows the pointer.
func (b *Block) CenterOn(p Point) {
	b.Rect.X = p.X - b.Rect.W/2
	b.Rect.Y = p.Y - b.Rect.H/2
}
