package puzzle

import (
	"encoding/json"
	"fmt"
	"math"
)

// Point is a canvas coordinate. Y grows downwards.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (r Rect) Left() int    { return r.X }
func (r Rect) Right() int   { return r.X + r.W }
func (r Rect) Top() int     { return r.Y }
func (r Rect) Bottom() int  { return r.Y + r.H }
func (r Rect) CenterX() int { return r.X + r.W/2 }
func (r Rect) CenterY() int { return r.Y + r.H/2 }

// Center returns the middle of the rectangle.
func (r Rect) Center() Point { return Point{X: r.CenterX(), Y: r.CenterY()} }

// Contains reports whether p lies inside r. The right and bottom edges are
// exclusive.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.Right() && p.Y >= r.Y && p.Y < r.Bottom()
}

// Side identifies one of the four connection points of a block.
type Side string

const (
	SideTop    Side = "top"
	SideRight  Side = "right"
	SideBottom Side = "bottom"
	SideLeft   Side = "left"
)

// Sides lists the connection sides in a fixed order.
var Sides = [4]Side{SideTop, SideRight, SideBottom, SideLeft}

// Valid reports whether s is one of the four sides.
func (s Side) Valid() bool {
	switch s {
	case SideTop, SideRight, SideBottom, SideLeft:
		return true
	}
	return false
}

const (
	// ConnectionPointRadius is the hit radius of a connection point.
	ConnectionPointRadius = 5
	// ArrowHitThreshold is how far from an arrow a point still counts as on it.
	ArrowHitThreshold = 10
)

// ShapeKind is the visual variant of a block.
type ShapeKind int

const (
	ShapeRect ShapeKind = iota
	ShapeYinYang
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeRect:
		return "rect"
	case ShapeYinYang:
		return "yin_yang"
	}
	return fmt.Sprintf("shape(%d)", int(k))
}

func (k ShapeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *ShapeKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "rect", "":
		*k = ShapeRect
	case "yin_yang":
		*k = ShapeYinYang
	default:
		return fmt.Errorf("unknown shape %q", s)
	}
	return nil
}

// Shape is the closed set of block variants. Everything outside the renderer
// only uses the uniform geometry it exposes.
type Shape interface {
	Kind() ShapeKind
	Bounds() Rect
	Anchor(side Side) Point
	Contains(p Point) bool
	shape()
}

// RectShape is a rounded rectangle block.
type RectShape struct {
	Rect Rect
}

// YinYangShape is a circular block inscribed in its bounds.
type YinYangShape struct {
	Rect Rect
}

func (s RectShape) Kind() ShapeKind        { return ShapeRect }
func (s RectShape) Bounds() Rect           { return s.Rect }
func (s RectShape) Anchor(side Side) Point { return anchor(s.Rect, side) }
func (s RectShape) Contains(p Point) bool  { return s.Rect.Contains(p) }
func (RectShape) shape()                   {}

func (s YinYangShape) Kind() ShapeKind        { return ShapeYinYang }
func (s YinYangShape) Bounds() Rect           { return s.Rect }
func (s YinYangShape) Anchor(side Side) Point { return anchor(s.Rect, side) }

// Contains uses the bounding box so the whole tile stays grabbable.
func (s YinYangShape) Contains(p Point) bool { return s.Rect.Contains(p) }
func (YinYangShape) shape()                  {}

// Radius is the drawn circle radius, inset from the bounds.
func (s YinYangShape) Radius() int {
	return min(s.Rect.W, s.Rect.H)/2 - 5
}

func anchor(r Rect, side Side) Point {
	switch side {
	case SideTop:
		return Point{X: r.CenterX(), Y: r.Top()}
	case SideRight:
		return Point{X: r.Right(), Y: r.CenterY()}
	case SideBottom:
		return Point{X: r.CenterX(), Y: r.Bottom()}
	default:
		return Point{X: r.Left(), Y: r.CenterY()}
	}
}

func newShape(kind ShapeKind, r Rect) Shape {
	if kind == ShapeYinYang {
		return YinYangShape{Rect: r}
	}
	return RectShape{Rect: r}
}

func distance(a, b Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// distanceToSegment returns the distance from p to the segment a-b. A
// degenerate segment reports +Inf so nothing is ever "near" it.
func distanceToSegment(p, a, b Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Inf(1)
	}
	t := (float64(p.X-a.X)*dx + float64(p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	px := float64(a.X) + t*dx
	py := float64(a.Y) + t*dy
	return math.Hypot(float64(p.X)-px, float64(p.Y)-py)
}
