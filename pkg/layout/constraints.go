// Package layout defines the layout protocol: box constraints, the render
// capability mounted nodes expose, the dirty worklists that schedule layout
// and paint, and the memoization cache for layout results.
package layout

import (
	"math"

	"github.com/reflow-ui/reflow/pkg/graphics"
)

// Inf is the unbounded constraint value.
var Inf = math.Inf(1)

// Constraints describe the min/max box a node must size itself within.
// Constraints flow down the tree; sizes flow back up.
type Constraints struct {
	MinWidth  float64
	MaxWidth  float64
	MinHeight float64
	MaxHeight float64
}

// Tight returns constraints that force exactly the given size.
func Tight(size graphics.Size) Constraints {
	return Constraints{
		MinWidth:  size.Width,
		MaxWidth:  size.Width,
		MinHeight: size.Height,
		MaxHeight: size.Height,
	}
}

// Loose returns constraints from zero up to the given size.
func Loose(size graphics.Size) Constraints {
	return Constraints{MaxWidth: size.Width, MaxHeight: size.Height}
}

// Unbounded returns constraints with no upper limit.
func Unbounded() Constraints {
	return Constraints{MaxWidth: Inf, MaxHeight: Inf}
}

// IsTight reports whether the constraints admit exactly one size.
func (c Constraints) IsTight() bool {
	return c.MinWidth == c.MaxWidth && c.MinHeight == c.MaxHeight
}

// Constrain clamps the size into the constraint box.
func (c Constraints) Constrain(size graphics.Size) graphics.Size {
	return graphics.Size{
		Width:  clamp(size.Width, c.MinWidth, c.MaxWidth),
		Height: clamp(size.Height, c.MinHeight, c.MaxHeight),
	}
}

// Smallest returns the smallest size satisfying the constraints.
func (c Constraints) Smallest() graphics.Size {
	return graphics.Size{Width: c.MinWidth, Height: c.MinHeight}
}

// Biggest returns the largest bounded size satisfying the constraints.
func (c Constraints) Biggest() graphics.Size {
	return c.Constrain(graphics.Size{Width: c.MaxWidth, Height: c.MaxHeight})
}

// Deflate returns the constraints shrunk by a uniform inset on every edge,
// never dropping below zero.
func (c Constraints) Deflate(inset float64) Constraints {
	deflated := Constraints{
		MinWidth:  math.Max(0, c.MinWidth-2*inset),
		MinHeight: math.Max(0, c.MinHeight-2*inset),
		MaxWidth:  c.MaxWidth,
		MaxHeight: c.MaxHeight,
	}
	if !math.IsInf(c.MaxWidth, 1) {
		deflated.MaxWidth = math.Max(deflated.MinWidth, c.MaxWidth-2*inset)
	}
	if !math.IsInf(c.MaxHeight, 1) {
		deflated.MaxHeight = math.Max(deflated.MinHeight, c.MaxHeight-2*inset)
	}
	return deflated
}

// Normalize rounds the constraint bounds to two decimal places. Cache keys
// are normalized so sub-pixel rounding jitter cannot fragment the layout
// cache into near-duplicate entries.
func (c Constraints) Normalize() Constraints {
	return Constraints{
		MinWidth:  roundHundredth(c.MinWidth),
		MaxWidth:  roundHundredth(c.MaxWidth),
		MinHeight: roundHundredth(c.MinHeight),
		MaxHeight: roundHundredth(c.MaxHeight),
	}
}

func roundHundredth(v float64) float64 {
	if math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
