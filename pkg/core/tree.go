package core

import (
	"fmt"

	"github.com/reflow-ui/reflow/pkg/arena"
	"github.com/reflow-ui/reflow/pkg/errors"
	"github.com/reflow-ui/reflow/pkg/graphics"
	"github.com/reflow-ui/reflow/pkg/layout"
)

// Tree owns the node arena and performs all structural mutation. The
// frame coordinator is the only caller of the mutating methods during a
// frame; concurrent producers submit dirty marks through the engine's
// queues instead.
type Tree struct {
	nodes arena.Arena[Node]
	root  arena.ID
	owner *BuildOwner

	// onLayoutMarked fires for every node whose layout result becomes
	// invalid: the needsLayout bit was newly set, or the node left the
	// tree. The engine hooks layout-cache invalidation here.
	onLayoutMarked func(arena.ID)
}

// NewTree creates an empty tree scheduling into the given build owner.
func NewTree(owner *BuildOwner) *Tree {
	if owner == nil {
		owner = NewBuildOwner()
	}
	return &Tree{owner: owner}
}

// Root returns the root node's id, or the nil id for an empty tree.
func (t *Tree) Root() arena.ID {
	return t.root
}

// Owner returns the build owner the tree schedules rebuilds into.
func (t *Tree) Owner() *BuildOwner {
	return t.owner
}

// Len returns the number of mounted nodes.
func (t *Tree) Len() int {
	return t.nodes.Len()
}

// SetLayoutInvalidation registers a callback fired whenever a node's
// layout result becomes invalid: its needsLayout bit is newly set, or
// the node is unmounted.
func (t *Tree) SetLayoutInvalidation(fn func(arena.ID)) {
	t.onLayoutMarked = fn
}

// Node resolves an id to its node. Stale ids fail with a distinct error;
// they never alias another node.
func (t *Tree) Node(id arena.ID) (*Node, error) {
	return t.nodes.Get(id)
}

// Contains reports whether id resolves to a live node.
func (t *Tree) Contains(id arena.ID) bool {
	return t.nodes.Contains(id)
}

// WalkDepthFirst visits the subtree rooted at id parent-first. Visiting
// stops when visit returns false.
func (t *Tree) WalkDepthFirst(id arena.ID, visit func(*Node) bool) error {
	n, err := t.nodes.Get(id)
	if err != nil {
		return err
	}
	if !visit(n) {
		return nil
	}
	children := append([]arena.ID(nil), n.children...)
	for _, child := range children {
		if err := t.WalkDepthFirst(child, visit); err != nil {
			return err
		}
	}
	return nil
}

// Mount validates and mounts a configuration subtree. A nil parent id
// mounts the root; otherwise the new node is appended to the parent's
// children. The whole subtree is validated against the arity contract
// before any node is created, so a violation aborts with no partially
// mounted children.
func (t *Tree) Mount(cfg Config, parent arena.ID) (arena.ID, error) {
	if cfg == nil {
		return arena.NilID, &errors.TreeError{
			Op:     "core.Tree.Mount",
			Kind:   errors.KindBuild,
			Detail: "nil configuration",
		}
	}
	if err := validateConfigTree(cfg); err != nil {
		return arena.NilID, err
	}

	parentDepth := -1
	if parent.IsNil() {
		if !t.root.IsNil() {
			return arena.NilID, &errors.TreeError{
				Op:     "core.Tree.Mount",
				Kind:   errors.KindState,
				Detail: "root already mounted",
			}
		}
	} else {
		p, err := t.nodes.Get(parent)
		if err != nil {
			return arena.NilID, err
		}
		if !p.Arity().Admits(len(p.children) + 1) {
			return arena.NilID, arityError("core.Tree.Mount", p, len(p.children)+1)
		}
		parentDepth = p.depth
	}

	id, err := t.mountSubtree(cfg, parent, parentDepth+1)
	if err != nil {
		return arena.NilID, err
	}
	if parent.IsNil() {
		t.root = id
		// The fresh root carries its dirty bits already set; enter it into
		// the worklists directly.
		n, err := t.nodes.Get(id)
		if err != nil {
			return arena.NilID, err
		}
		t.owner.Pipeline().ScheduleLayout(id, n.depth)
		t.owner.Pipeline().SchedulePaint(id, n.depth)
	} else {
		p, err := t.nodes.Get(parent)
		if err != nil {
			return arena.NilID, err
		}
		p.children = append(p.children, id)
		if err := t.MarkNeedsLayout(parent); err != nil {
			return arena.NilID, err
		}
		if err := t.MarkNeedsPaint(parent); err != nil {
			return arena.NilID, err
		}
	}
	return id, nil
}

// mountSubtree creates the node for cfg and recursively mounts its
// declared children. The configuration was validated beforehand, so arity
// cannot fail here.
func (t *Tree) mountSubtree(cfg Config, parent arena.ID, depth int) (arena.ID, error) {
	id := t.nodes.Insert(Node{})
	n, err := t.nodes.Get(id)
	if err != nil {
		return arena.NilID, err
	}
	n.id = id
	n.config = cfg
	n.state = StateMounted
	n.renderer = cfg.CreateRenderer()
	n.parent = parent
	n.depth = depth
	n.needsLayout = true
	n.needsPaint = true

	// Builder nodes compute children during rebuild; they mount childless
	// and dirty-by-construction so the current build phase absorbs them.
	if _, isBuilder := cfg.(Builder); isBuilder {
		n.state = StateDirty
		n.needsBuild = true
		t.owner.ScheduleBuild(id, depth)
		return id, nil
	}

	for _, childCfg := range cfg.ChildConfigs() {
		childID, err := t.mountSubtree(childCfg, id, depth+1)
		if err != nil {
			t.teardown(id)
			return arena.NilID, err
		}
		// Re-resolve: child inserts may have moved the arena's backing
		// storage.
		n, err = t.nodes.Get(id)
		if err != nil {
			return arena.NilID, err
		}
		n.children = append(n.children, childID)
	}
	return id, nil
}

// Unmount removes the subtree rooted at id from the tree. The detached
// node is returned Unmounted with its configuration intact; its live
// renderer and tree position are dropped and every removed slot's
// generation is bumped.
func (t *Tree) Unmount(id arena.ID) (*Node, error) {
	n, err := t.nodes.Get(id)
	if err != nil {
		return nil, err
	}
	parent := n.parent

	if id == t.root {
		t.root = arena.NilID
	} else if !parent.IsNil() {
		p, err := t.nodes.Get(parent)
		if err != nil {
			return nil, err
		}
		p.children = removeID(p.children, id)
		if err := t.MarkNeedsLayout(parent); err != nil {
			return nil, err
		}
		if err := t.MarkNeedsPaint(parent); err != nil {
			return nil, err
		}
	}

	detached, err := t.unmountSubtree(id)
	if err != nil {
		return nil, err
	}
	return detached, nil
}

// unmountSubtree removes id and its descendants post-order, returning the
// detached node value for id.
func (t *Tree) unmountSubtree(id arena.ID) (*Node, error) {
	n, err := t.nodes.Get(id)
	if err != nil {
		return nil, err
	}
	children := append([]arena.ID(nil), n.children...)
	for _, child := range children {
		if _, err := t.unmountSubtree(child); err != nil {
			return nil, err
		}
	}

	value, err := t.nodes.Remove(id)
	if err != nil {
		return nil, err
	}
	// Memoized layout results keyed by the removed id are dead weight;
	// drop them now rather than waiting for eviction.
	if t.onLayoutMarked != nil {
		t.onLayoutMarked(id)
	}
	if disposer, ok := value.renderer.(layout.Disposer); ok {
		disposer.Dispose()
	}
	value.state = StateUnmounted
	value.renderer = nil
	value.parent = arena.NilID
	value.children = nil
	value.depth = 0
	value.id = arena.NilID
	value.needsBuild = false
	value.needsLayout = false
	value.needsPaint = false
	return &value, nil
}

// teardown discards a partially mounted subtree during an aborted mount.
func (t *Tree) teardown(id arena.ID) {
	if _, err := t.unmountSubtree(id); err != nil {
		if treeErr, ok := err.(*errors.TreeError); ok {
			errors.Report(treeErr)
		}
	}
}

// MarkDirty transitions a mounted node to Dirty and schedules it for
// rebuild. Marking an already-dirty node is a no-op, so two marks before a
// rebuild still produce exactly one rebuild.
func (t *Tree) MarkDirty(id arena.ID) error {
	n, err := t.nodes.Get(id)
	if err != nil {
		return err
	}
	switch n.state {
	case StateDirty:
		return nil
	case StateMounted:
		n.state = StateDirty
		n.needsBuild = true
		t.owner.ScheduleBuild(id, n.depth)
		return nil
	default:
		return n.stateError("core.Tree.MarkDirty", "mark_dirty requires Mounted or Dirty")
	}
}

// MarkNeedsLayout sets the node's layout bit and walks toward the nearest
// relayout boundary. A node whose last constraints were tight (or the
// root) bounds the walk: its ancestors' layout cannot be affected by the
// change, so only the boundary is scheduled.
func (t *Tree) MarkNeedsLayout(id arena.ID) error {
	n, err := t.nodes.Get(id)
	if err != nil {
		return err
	}
	if n.needsLayout {
		return nil
	}
	n.needsLayout = true
	if t.onLayoutMarked != nil {
		t.onLayoutMarked(id)
	}

	isBoundary := id == t.root || (n.hasConstraints && n.constraints.IsTight())
	if isBoundary || n.parent.IsNil() {
		t.owner.Pipeline().ScheduleLayout(id, n.depth)
		return nil
	}
	return t.MarkNeedsLayout(n.parent)
}

// MarkNeedsPaint sets the node's paint bit. Ancestors re-emit their
// display output to pick up the child's new recording, so the mark
// propagates to the root, stopping at the first already-marked ancestor.
func (t *Tree) MarkNeedsPaint(id arena.ID) error {
	n, err := t.nodes.Get(id)
	if err != nil {
		return err
	}
	if n.needsPaint {
		return nil
	}
	n.needsPaint = true
	t.owner.Pipeline().SchedulePaint(id, n.depth)
	if n.parent.IsNil() {
		return nil
	}
	return t.MarkNeedsPaint(n.parent)
}

// ApplyConfig replaces a node's configuration in place. The new config
// must share the node's type identity and key; replacing a node with a
// different shape goes through the parent's reconciliation instead.
func (t *Tree) ApplyConfig(id arena.ID, cfg Config) error {
	n, err := t.nodes.Get(id)
	if err != nil {
		return err
	}
	if !SameShape(n.config, cfg) {
		return &errors.TreeError{
			Op:       "core.Tree.ApplyConfig",
			Kind:     errors.KindBuild,
			NodeID:   uint64(id),
			NodeType: configTypeName(n.config),
			Detail:   fmt.Sprintf("config type %s does not match; replace via the parent", configTypeName(cfg)),
		}
	}
	if err := validateConfigTree(cfg); err != nil {
		return err
	}

	old := n.config
	n.config = cfg
	if sink, ok := n.renderer.(layout.ConfigSink); ok {
		sink.Update(cfg)
	}
	if configEqual(old, cfg) {
		return nil
	}
	if err := t.MarkNeedsLayout(id); err != nil {
		return err
	}
	if err := t.MarkNeedsPaint(id); err != nil {
		return err
	}
	return t.MarkDirty(id)
}

// Reassemble marks the subtree rooted at id for hot reconstruction.
func (t *Tree) Reassemble(id arena.ID) error {
	return t.WalkDepthFirst(id, func(n *Node) bool {
		n.state = StateReassembling
		return true
	})
}

// FinishReassemble rebuilds live renderers fresh from retained
// configuration. A parent's renderer is reconstructed before its children
// are visited, so children can query a fresh parent; states return to
// Mounted children-first.
func (t *Tree) FinishReassemble(id arena.ID) error {
	n, err := t.nodes.Get(id)
	if err != nil {
		return err
	}
	if n.state != StateReassembling {
		return n.stateError("core.Tree.FinishReassemble", "finish_reassemble requires Reassembling")
	}

	if disposer, ok := n.renderer.(layout.Disposer); ok {
		disposer.Dispose()
	}
	n.renderer = n.config.CreateRenderer()

	children := append([]arena.ID(nil), n.children...)
	for _, child := range children {
		if err := t.FinishReassemble(child); err != nil {
			return err
		}
	}

	n, err = t.nodes.Get(id)
	if err != nil {
		return err
	}
	// Reconstruction supersedes any rebuild that was pending before the
	// reassemble began.
	n.state = StateMounted
	n.needsBuild = false
	n.hasConstraints = false
	if _, isBuilder := n.config.(Builder); isBuilder {
		n.state = StateDirty
		n.needsBuild = true
		t.owner.ScheduleBuild(id, n.depth)
	}
	if err := t.MarkNeedsLayout(id); err != nil {
		return err
	}
	return t.MarkNeedsPaint(id)
}

// ReassembleAll cascades hot reconstruction across every mounted node and
// returns the tree to Mounted.
func (t *Tree) ReassembleAll() error {
	if t.root.IsNil() {
		return nil
	}
	if err := t.Reassemble(t.root); err != nil {
		return err
	}
	return t.FinishReassemble(t.root)
}

// SetLayoutResult records a layout pass's output for a node. It belongs
// to the frame coordinator; renderers never call it.
func (t *Tree) SetLayoutResult(id arena.ID, constraints layout.Constraints, size graphics.Size) error {
	n, err := t.nodes.Get(id)
	if err != nil {
		return err
	}
	sizeChanged := n.size != size
	n.constraints = constraints
	n.hasConstraints = true
	n.needsLayout = false
	n.size = size
	if sizeChanged {
		// Re-recording at the new size is unavoidable; content is clipped
		// and positioned against it.
		n.needsPaint = true
		t.owner.Pipeline().SchedulePaint(id, n.depth)
	}
	return nil
}

// SetChildOffset positions a child in its parent's coordinates during the
// parent's layout.
func (t *Tree) SetChildOffset(id arena.ID, offset graphics.Offset) error {
	n, err := t.nodes.Get(id)
	if err != nil {
		return err
	}
	n.offset = offset
	return nil
}

// ClearNeedsPaint marks a node as painted.
func (t *Tree) ClearNeedsPaint(id arena.ID) error {
	n, err := t.nodes.Get(id)
	if err != nil {
		return err
	}
	n.needsPaint = false
	return nil
}

// ValidateConfig checks a configuration subtree against the arity
// contract without touching any tree. Embedders validate input with it
// before committing to a structural change.
func ValidateConfig(cfg Config) error {
	if cfg == nil {
		return &errors.TreeError{
			Op:     "core.ValidateConfig",
			Kind:   errors.KindBuild,
			Detail: "nil configuration",
		}
	}
	return validateConfigTree(cfg)
}

// validateConfigTree checks the arity contract across an entire
// configuration subtree before any mutation happens, so mounting can never
// fail halfway through.
func validateConfigTree(cfg Config) error {
	children := cfg.ChildConfigs()
	if _, isBuilder := cfg.(Builder); !isBuilder || len(children) > 0 {
		if !cfg.Arity().Admits(len(children)) {
			return &errors.TreeError{
				Op:       "core.validateConfigTree",
				Kind:     errors.KindArity,
				NodeType: configTypeName(cfg),
				Detail: fmt.Sprintf("type declares arity %s but has %d children",
					cfg.Arity(), len(children)),
			}
		}
	}
	for _, child := range children {
		if child == nil {
			return &errors.TreeError{
				Op:       "core.validateConfigTree",
				Kind:     errors.KindBuild,
				NodeType: configTypeName(cfg),
				Detail:   "nil child configuration",
			}
		}
		if err := validateConfigTree(child); err != nil {
			return err
		}
	}
	return nil
}

func arityError(op string, n *Node, count int) *errors.TreeError {
	return &errors.TreeError{
		Op:       op,
		Kind:     errors.KindArity,
		NodeID:   uint64(n.id),
		NodeType: configTypeName(n.config),
		Detail:   fmt.Sprintf("child count %d outside declared arity %s", count, n.Arity()),
	}
}

func removeID(ids []arena.ID, id arena.ID) []arena.ID {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
