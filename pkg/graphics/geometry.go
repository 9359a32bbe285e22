// Package graphics provides the geometry primitives and the display list
// format the pipeline emits. It has no opinion about how display lists are
// rasterized; a paint backend replays them onto its own canvas.
package graphics

import "math"

// epsilon is the tolerance for floating-point comparisons.
const epsilon = 0.0001

// Offset represents a 2D point or vector in pixel coordinates.
type Offset struct {
	X float64
	Y float64
}

// Add returns the component-wise sum of two offsets.
func (o Offset) Add(other Offset) Offset {
	return Offset{X: o.X + other.X, Y: o.Y + other.Y}
}

// Sub returns the component-wise difference of two offsets.
func (o Offset) Sub(other Offset) Offset {
	return Offset{X: o.X - other.X, Y: o.Y - other.Y}
}

// Size represents width and height dimensions in pixels.
type Size struct {
	Width  float64
	Height float64
}

// IsEmpty reports whether the size has no area.
func (s Size) IsEmpty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Contains reports whether the point lies within a box of this size
// anchored at the origin.
func (s Size) Contains(p Offset) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= s.Width && p.Y <= s.Height
}

// Rect represents a rectangle using left, top, right, bottom coordinates.
type Rect struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// RectFromLTWH constructs a Rect from left, top, width, height values.
func RectFromLTWH(left, top, width, height float64) Rect {
	return Rect{
		Left:   left,
		Top:    top,
		Right:  left + width,
		Bottom: top + height,
	}
}

// Width returns the width of the rectangle.
func (r Rect) Width() float64 {
	return r.Right - r.Left
}

// Height returns the height of the rectangle.
func (r Rect) Height() float64 {
	return r.Bottom - r.Top
}

// Size returns the size of the rectangle.
func (r Rect) Size() Size {
	return Size{Width: r.Width(), Height: r.Height()}
}

// Shift returns the rectangle translated by the offset.
func (r Rect) Shift(o Offset) Rect {
	return Rect{
		Left:   r.Left + o.X,
		Top:    r.Top + o.Y,
		Right:  r.Right + o.X,
		Bottom: r.Bottom + o.Y,
	}
}

// Contains reports whether the point lies within the rectangle.
func (r Rect) Contains(p Offset) bool {
	return p.X >= r.Left && p.X < r.Right && p.Y >= r.Top && p.Y < r.Bottom
}

// NearEqual reports whether two floats are equal within epsilon.
func NearEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// Color is a 32-bit ARGB color value.
type Color uint32

// ARGB constructs a color from individual channel values.
func ARGB(a, r, g, b uint8) Color {
	return Color(uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

// Alpha returns the alpha channel of the color.
func (c Color) Alpha() uint8 {
	return uint8(c >> 24)
}
