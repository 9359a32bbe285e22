package core

import (
	"github.com/reflow-ui/reflow/pkg/arena"
	"github.com/reflow-ui/reflow/pkg/errors"
	"github.com/reflow-ui/reflow/pkg/graphics"
	"github.com/reflow-ui/reflow/pkg/layout"
)

// Node is the mutable unit of the tree. While mounted it lives in the
// tree's arena; Unmount detaches it, returning the value with its
// configuration intact so the node can be reconstructed later.
//
// Tree position and the live renderer exist exactly in the mounted-family
// states; the guarded accessors fail fast otherwise instead of returning
// defaults.
type Node struct {
	id       arena.ID
	state    State
	config   Config
	renderer layout.Renderer

	// Tree position; meaningful only while state.InTree().
	parent   arena.ID
	children []arena.ID
	depth    int

	// Dirty bits, monotonic within a frame until the coordinator clears
	// them.
	needsBuild  bool
	needsLayout bool
	needsPaint  bool

	// Layout results.
	size           graphics.Size
	offset         graphics.Offset
	constraints    layout.Constraints
	hasConstraints bool
}

// ID returns the node's arena handle, or the nil id if detached.
func (n *Node) ID() arena.ID {
	return n.id
}

// State returns the node's lifecycle state.
func (n *Node) State() State {
	return n.state
}

// Config returns the node's configuration. It is retained in every state,
// including Unmounted; that is what makes hot reconstruction possible.
func (n *Node) Config() Config {
	return n.config
}

// Arity returns the node type's child-count contract.
func (n *Node) Arity() Arity {
	return n.config.Arity()
}

// Renderer returns the live render instance. It exists only while the
// node is in the tree.
func (n *Node) Renderer() (layout.Renderer, error) {
	if !n.state.InTree() {
		return nil, n.stateError("core.Node.Renderer", "renderer requires a mounted node")
	}
	return n.renderer, nil
}

// Parent returns the parent's id, or the nil id for the root.
func (n *Node) Parent() (arena.ID, error) {
	if !n.state.InTree() {
		return arena.NilID, n.stateError("core.Node.Parent", "tree position requires a mounted node")
	}
	return n.parent, nil
}

// Children returns the ordered child ids. The returned slice is the
// node's own; callers must not mutate it.
func (n *Node) Children() ([]arena.ID, error) {
	if !n.state.InTree() {
		return nil, n.stateError("core.Node.Children", "tree position requires a mounted node")
	}
	return n.children, nil
}

// Depth returns the node's depth; the root has depth 0.
func (n *Node) Depth() (int, error) {
	if !n.state.InTree() {
		return 0, n.stateError("core.Node.Depth", "tree position requires a mounted node")
	}
	return n.depth, nil
}

// Size returns the size computed by the most recent layout pass.
func (n *Node) Size() (graphics.Size, error) {
	if !n.state.InTree() {
		return graphics.Size{}, n.stateError("core.Node.Size", "layout geometry requires a mounted node")
	}
	return n.size, nil
}

// Offset returns the node's position in its parent's coordinates.
func (n *Node) Offset() (graphics.Offset, error) {
	if !n.state.InTree() {
		return graphics.Offset{}, n.stateError("core.Node.Offset", "layout geometry requires a mounted node")
	}
	return n.offset, nil
}

// Constraints returns the constraints from the most recent layout pass.
// The second result is false before the node's first layout.
func (n *Node) Constraints() (layout.Constraints, bool) {
	if !n.state.InTree() {
		return layout.Constraints{}, false
	}
	return n.constraints, n.hasConstraints
}

// NeedsRebuild reports whether the node awaits a rebuild.
func (n *Node) NeedsRebuild() bool {
	return n.needsBuild
}

// NeedsLayout reports whether the node awaits layout.
func (n *Node) NeedsLayout() bool {
	return n.needsLayout
}

// NeedsPaint reports whether the node awaits paint.
func (n *Node) NeedsPaint() bool {
	return n.needsPaint
}

func (n *Node) stateError(op, detail string) *errors.TreeError {
	return &errors.TreeError{
		Op:       op,
		Kind:     errors.KindState,
		NodeID:   uint64(n.id),
		NodeType: configTypeName(n.config),
		Detail:   detail + " (state " + n.state.String() + ")",
	}
}
