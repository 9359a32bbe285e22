package layout

import "github.com/reflow-ui/reflow/pkg/graphics"

// Renderer is the render capability a mounted node exposes. The core calls
// these methods during the layout, paint and hit-test phases; it does not
// implement drawing itself.
//
// Renderers never hold references to other nodes. Children are reached only
// through the context handles, which the frame coordinator backs with the
// arena. This keeps ownership of the tree in one place.
type Renderer interface {
	// Layout computes the node's size under the given constraints. Child
	// layout goes through ctx so the coordinator can consult the cache and
	// clear dirty flags along the walk.
	Layout(ctx LayoutContext, constraints Constraints) graphics.Size

	// Paint records the node's visual output. Children are painted via
	// ctx.PaintChild at the offsets assigned during layout.
	Paint(ctx PaintContext)

	// HitTest reports whether the point, in the node's local coordinates,
	// hits this node or one of its children.
	HitTest(ctx HitTestContext, point graphics.Offset) bool
}

// LayoutContext gives a renderer access to its children during layout.
type LayoutContext interface {
	// ChildCount returns the number of mounted children.
	ChildCount() int
	// LayoutChild lays out the child at index and returns its size.
	LayoutChild(index int, constraints Constraints) graphics.Size
	// PositionChild assigns the child's offset in this node's coordinates.
	PositionChild(index int, offset graphics.Offset)
}

// PaintContext gives a renderer a canvas and access to its children
// during paint.
type PaintContext interface {
	// Canvas returns the recording canvas for this node.
	Canvas() graphics.Canvas
	// Size returns the size computed for this node during layout.
	Size() graphics.Size
	// ChildCount returns the number of mounted children.
	ChildCount() int
	// PaintChild paints the child at index at its layout offset.
	PaintChild(index int)
}

// HitTestContext gives a renderer access to its children during hit testing.
type HitTestContext interface {
	// ChildCount returns the number of mounted children.
	ChildCount() int
	// HitTestChild forwards the hit test to the child at index, translating
	// the point into the child's coordinates.
	HitTestChild(index int, point graphics.Offset) bool
	// Size returns the size computed for this node during layout.
	Size() graphics.Size
}

// ConfigSink is implemented by renderers that cache values from their
// configuration. Update is called when reconciliation replaces the node's
// config in place.
type ConfigSink interface {
	Update(config any)
}

// Disposer is implemented by renderers that hold resources needing
// explicit release at unmount.
type Disposer interface {
	Dispose()
}
