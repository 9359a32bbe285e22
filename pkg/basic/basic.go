// Package basic provides a small set of ready-made node configurations:
// text, a decorated box and a vertical column. They cover the common
// shapes an embedder needs to assemble a tree without writing renderers,
// and double as reference implementations of the render protocol.
package basic

import (
	"github.com/reflow-ui/reflow/pkg/core"
	"github.com/reflow-ui/reflow/pkg/engine"
	"github.com/reflow-ui/reflow/pkg/graphics"
	"github.com/reflow-ui/reflow/pkg/layout"
)

// Text is a leaf displaying a single line of text sized by the built-in
// face metrics.
type Text struct {
	ID      any
	Content string
	Color   graphics.Color
}

func (t Text) Key() any                { return t.ID }
func (t Text) Arity() core.Arity       { return core.Leaf }
func (t Text) ChildConfigs() []core.Config { return nil }

func (t Text) CreateRenderer() layout.Renderer {
	return &textRenderer{cfg: t}
}

type textRenderer struct {
	cfg     Text
	metrics graphics.TextMetrics
}

func (r *textRenderer) Layout(ctx layout.LayoutContext, constraints layout.Constraints) graphics.Size {
	r.metrics = graphics.MeasureText(r.cfg.Content)
	return constraints.Constrain(graphics.Size{Width: r.metrics.Width, Height: r.metrics.Height})
}

func (r *textRenderer) Paint(ctx layout.PaintContext) {
	origin := graphics.Offset{Y: r.metrics.Baseline}
	ctx.Canvas().DrawText(r.cfg.Content, origin, r.cfg.Color)
}

func (r *textRenderer) HitTest(ctx layout.HitTestContext, point graphics.Offset) bool {
	return engine.HitTestRect(ctx, point)
}

func (r *textRenderer) Update(config any) {
	if cfg, ok := config.(Text); ok {
		r.cfg = cfg
	}
}

// Box wraps at most one child, painting a background color and applying a
// uniform padding inset.
type Box struct {
	ID      any
	Color   graphics.Color
	Padding float64
	Child   core.Config // nil for an empty box
}

func (b Box) Key() any          { return b.ID }
func (b Box) Arity() core.Arity { return core.Optional }

func (b Box) ChildConfigs() []core.Config {
	if b.Child == nil {
		return nil
	}
	return []core.Config{b.Child}
}

func (b Box) CreateRenderer() layout.Renderer {
	return &boxRenderer{cfg: b}
}

type boxRenderer struct {
	cfg Box
}

func (r *boxRenderer) Layout(ctx layout.LayoutContext, constraints layout.Constraints) graphics.Size {
	if ctx.ChildCount() == 0 {
		return constraints.Constrain(graphics.Size{
			Width:  2 * r.cfg.Padding,
			Height: 2 * r.cfg.Padding,
		})
	}
	inner := constraints.Deflate(r.cfg.Padding)
	childSize := ctx.LayoutChild(0, inner)
	ctx.PositionChild(0, graphics.Offset{X: r.cfg.Padding, Y: r.cfg.Padding})
	return constraints.Constrain(graphics.Size{
		Width:  childSize.Width + 2*r.cfg.Padding,
		Height: childSize.Height + 2*r.cfg.Padding,
	})
}

func (r *boxRenderer) Paint(ctx layout.PaintContext) {
	size := ctx.Size()
	if r.cfg.Color.Alpha() > 0 {
		ctx.Canvas().DrawRect(graphics.RectFromLTWH(0, 0, size.Width, size.Height), r.cfg.Color)
	}
	if ctx.ChildCount() > 0 {
		ctx.PaintChild(0)
	}
}

func (r *boxRenderer) HitTest(ctx layout.HitTestContext, point graphics.Offset) bool {
	return engine.HitTestRect(ctx, point)
}

func (r *boxRenderer) Update(config any) {
	if cfg, ok := config.(Box); ok {
		r.cfg = cfg
	}
}

// Column stacks any number of children vertically, each given loose
// constraints and the column's full width.
type Column struct {
	ID      any
	Spacing float64
	Items   []core.Config
}

func (c Column) Key() any                { return c.ID }
func (c Column) Arity() core.Arity       { return core.Variable }
func (c Column) ChildConfigs() []core.Config { return c.Items }

func (c Column) CreateRenderer() layout.Renderer {
	return &columnRenderer{cfg: c}
}

type columnRenderer struct {
	cfg Column
}

func (r *columnRenderer) Layout(ctx layout.LayoutContext, constraints layout.Constraints) graphics.Size {
	loose := layout.Loose(constraints.Biggest())
	var width, y float64
	for i := 0; i < ctx.ChildCount(); i++ {
		if i > 0 {
			y += r.cfg.Spacing
		}
		size := ctx.LayoutChild(i, loose)
		ctx.PositionChild(i, graphics.Offset{Y: y})
		y += size.Height
		if size.Width > width {
			width = size.Width
		}
	}
	return constraints.Constrain(graphics.Size{Width: width, Height: y})
}

func (r *columnRenderer) Paint(ctx layout.PaintContext) {
	for i := 0; i < ctx.ChildCount(); i++ {
		ctx.PaintChild(i)
	}
}

func (r *columnRenderer) HitTest(ctx layout.HitTestContext, point graphics.Offset) bool {
	return engine.HitTestRect(ctx, point)
}

func (r *columnRenderer) Update(config any) {
	if cfg, ok := config.(Column); ok {
		r.cfg = cfg
	}
}
