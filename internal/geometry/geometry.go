// Package geometry maps a window's display rectangle and normalized zoom
// rectangle onto content space and tile-grid space.
package geometry

import (
	"image"
	"math"
)

// Size is a floating point width/height pair.
type Size struct {
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// Empty reports whether either dimension is not positive.
func (s Size) Empty() bool {
	return s.W <= 0 || s.H <= 0
}

// Rect is a floating point rectangle, y-down.
type Rect struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// Unit is the default zoom rectangle: fully zoomed out.
var Unit = Rect{0, 0, 1, 1}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Size returns the rectangle dimensions.
func (r Rect) Size() Size {
	return Size{r.W, r.H}
}

// Translate returns r moved by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{r.X + dx, r.Y + dy, r.W, r.H}
}

// Scale returns r with both position and size multiplied per axis.
func (r Rect) Scale(sx, sy float64) Rect {
	return Rect{r.X * sx, r.Y * sy, r.W * sx, r.H * sy}
}

// Intersect returns the overlap of r and o, or an empty Rect.
func (r Rect) Intersect(o Rect) Rect {
	x0, y0 := math.Max(r.X, o.X), math.Max(r.Y, o.Y)
	x1, y1 := math.Min(r.X+r.W, o.X+o.W), math.Min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{x0, y0, x1 - x0, y1 - y0}
}

// Intersects reports whether r overlaps the integer tile rectangle t with a
// non-zero area.
func (r Rect) Intersects(t image.Rectangle) bool {
	if r.Empty() || t.Empty() {
		return false
	}
	return r.X < float64(t.Max.X) && float64(t.Min.X) < r.X+r.W &&
		r.Y < float64(t.Max.Y) && float64(t.Min.Y) < r.Y+r.H
}

// FromRectangle converts an integer rectangle.
func FromRectangle(r image.Rectangle) Rect {
	return Rect{float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy())}
}

// FromPoint converts an integer size.
func FromPoint(p image.Point) Size {
	return Size{float64(p.X), float64(p.Y)}
}
