package core

import (
	"testing"

	"github.com/reflow-ui/reflow/pkg/arena"
	"github.com/reflow-ui/reflow/pkg/errors"
	"github.com/reflow-ui/reflow/pkg/graphics"
	"github.com/reflow-ui/reflow/pkg/layout"
)

// stubRenderer counts phase calls and records config updates.
type stubRenderer struct {
	layouts  int
	paints   int
	updates  int
	disposed bool
}

func (r *stubRenderer) Layout(ctx layout.LayoutContext, c layout.Constraints) graphics.Size {
	r.layouts++
	for i := 0; i < ctx.ChildCount(); i++ {
		ctx.LayoutChild(i, c)
		ctx.PositionChild(i, graphics.Offset{})
	}
	return c.Constrain(graphics.Size{Width: 10, Height: 10})
}

func (r *stubRenderer) Paint(ctx layout.PaintContext) {
	r.paints++
	for i := 0; i < ctx.ChildCount(); i++ {
		ctx.PaintChild(i)
	}
}

func (r *stubRenderer) HitTest(ctx layout.HitTestContext, p graphics.Offset) bool {
	return false
}

func (r *stubRenderer) Update(config any) { r.updates++ }
func (r *stubRenderer) Dispose()          { r.disposed = true }

type leafConfig struct {
	Text string
	Id   any
}

func (c leafConfig) Key() any                        { return c.Id }
func (c leafConfig) Arity() Arity                    { return Leaf }
func (c leafConfig) ChildConfigs() []Config          { return nil }
func (c leafConfig) CreateRenderer() layout.Renderer { return &stubRenderer{} }

// badgeConfig is a second leaf type, used where type identity matters.
type badgeConfig struct {
	Label string
}

func (c badgeConfig) Key() any                        { return nil }
func (c badgeConfig) Arity() Arity                    { return Leaf }
func (c badgeConfig) ChildConfigs() []Config          { return nil }
func (c badgeConfig) CreateRenderer() layout.Renderer { return &stubRenderer{} }

type rowConfig struct {
	Items []Config
}

func (c rowConfig) Key() any                        { return nil }
func (c rowConfig) Arity() Arity                    { return Variable }
func (c rowConfig) ChildConfigs() []Config          { return c.Items }
func (c rowConfig) CreateRenderer() layout.Renderer { return &stubRenderer{} }

type wrapConfig struct {
	Items []Config
}

func (c wrapConfig) Key() any                        { return nil }
func (c wrapConfig) Arity() Arity                    { return Single }
func (c wrapConfig) ChildConfigs() []Config          { return c.Items }
func (c wrapConfig) CreateRenderer() layout.Renderer { return &stubRenderer{} }

// dynConfig computes its children at rebuild time through the shared
// source, so tests can change the produced list between frames.
type dynConfig struct {
	Source *childSource
}

type childSource struct {
	children []Config
	panics   bool
}

func (c dynConfig) Key() any                        { return nil }
func (c dynConfig) Arity() Arity                    { return Variable }
func (c dynConfig) ChildConfigs() []Config          { return nil }
func (c dynConfig) CreateRenderer() layout.Renderer { return &stubRenderer{} }

func (c dynConfig) BuildChildren(ctx BuildContext) []Config {
	if c.Source.panics {
		panic("boom")
	}
	return c.Source.children
}

func flush(t *testing.T, tr *Tree) {
	t.Helper()
	err := tr.Owner().Flush(func(id arena.ID) error {
		_, rebuildErr := tr.Rebuild(id)
		return rebuildErr
	})
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func mustNode(t *testing.T, tr *Tree, id arena.ID) *Node {
	t.Helper()
	n, err := tr.Node(id)
	if err != nil {
		t.Fatalf("node %v: %v", id, err)
	}
	return n
}

func TestMountBuildsSubtree(t *testing.T) {
	tr := NewTree(nil)
	root, err := tr.Mount(rowConfig{Items: []Config{
		leafConfig{Text: "a"},
		leafConfig{Text: "b"},
	}}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if tr.Root() != root {
		t.Fatalf("root = %v, want %v", tr.Root(), root)
	}
	if tr.Len() != 3 {
		t.Fatalf("len = %d, want 3", tr.Len())
	}

	n := mustNode(t, tr, root)
	if n.State() != StateMounted {
		t.Fatalf("root state = %v", n.State())
	}
	children, err := n.Children()
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}
	for _, child := range children {
		cn := mustNode(t, tr, child)
		if cn.State() != StateMounted {
			t.Fatalf("child state = %v", cn.State())
		}
		depth, err := cn.Depth()
		if err != nil || depth != 1 {
			t.Fatalf("child depth = %d, %v", depth, err)
		}
	}
}

func TestMountArityViolationLeavesNoPartialTree(t *testing.T) {
	tr := NewTree(nil)
	_, err := tr.Mount(wrapConfig{Items: []Config{
		leafConfig{Text: "a"},
		leafConfig{Text: "b"},
	}}, arena.NilID)
	if !errors.IsKind(err, errors.KindArity) {
		t.Fatalf("err = %v, want arity violation", err)
	}
	if tr.Len() != 0 {
		t.Fatalf("len = %d after aborted mount, want 0", tr.Len())
	}
	if !tr.Root().IsNil() {
		t.Fatalf("root = %v after aborted mount", tr.Root())
	}
}

func TestMountNestedArityViolation(t *testing.T) {
	tr := NewTree(nil)
	_, err := tr.Mount(rowConfig{Items: []Config{
		wrapConfig{}, // Single with zero children
	}}, arena.NilID)
	if !errors.IsKind(err, errors.KindArity) {
		t.Fatalf("err = %v, want arity violation", err)
	}
	if tr.Len() != 0 {
		t.Fatalf("len = %d, want 0", tr.Len())
	}
}

func TestUnmountReturnsDetachedNode(t *testing.T) {
	tr := NewTree(nil)
	root, err := tr.Mount(rowConfig{Items: []Config{
		leafConfig{Text: "a"},
	}}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	children, _ := mustNode(t, tr, root).Children()
	childID := children[0]
	rendererBefore, _ := mustNode(t, tr, childID).Renderer()

	detached, err := tr.Unmount(childID)
	if err != nil {
		t.Fatalf("unmount: %v", err)
	}
	if detached.State() != StateUnmounted {
		t.Fatalf("detached state = %v", detached.State())
	}
	cfg, ok := detached.Config().(leafConfig)
	if !ok || cfg.Text != "a" {
		t.Fatalf("detached config = %#v, want preserved leaf", detached.Config())
	}
	if _, err := detached.Renderer(); !errors.IsKind(err, errors.KindState) {
		t.Fatalf("detached renderer err = %v, want state error", err)
	}
	if !rendererBefore.(*stubRenderer).disposed {
		t.Fatal("renderer not disposed at unmount")
	}

	// The old id must fail distinctly, not alias a future node.
	if _, err := tr.Node(childID); !errors.IsKind(err, errors.KindStale) {
		t.Fatalf("stale lookup err = %v", err)
	}
	if rest, _ := mustNode(t, tr, root).Children(); len(rest) != 0 {
		t.Fatalf("parent children = %d, want 0", len(rest))
	}
}

func TestMarkDirtyIdempotent(t *testing.T) {
	tr := NewTree(nil)
	root, err := tr.Mount(leafConfig{Text: "a"}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := tr.MarkDirty(root); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := tr.MarkDirty(root); err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if got := tr.Owner().DirtyCount(); got != 1 {
		t.Fatalf("dirty count = %d, want 1", got)
	}
	if mustNode(t, tr, root).State() != StateDirty {
		t.Fatalf("state = %v, want Dirty", mustNode(t, tr, root).State())
	}

	flush(t, tr)
	if mustNode(t, tr, root).State() != StateMounted {
		t.Fatalf("state after flush = %v", mustNode(t, tr, root).State())
	}
}

func TestRebuildUpdatesMatchingChildInPlace(t *testing.T) {
	src := &childSource{children: []Config{
		leafConfig{Text: "a"},
		leafConfig{Text: "b"},
		leafConfig{Text: "c"},
	}}
	tr := NewTree(nil)
	root, err := tr.Mount(dynConfig{Source: src}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	flush(t, tr)

	before, _ := mustNode(t, tr, root).Children()
	if len(before) != 3 {
		t.Fatalf("children = %d, want 3", len(before))
	}

	src.children = []Config{
		leafConfig{Text: "a"},
		leafConfig{Text: "b2"},
		leafConfig{Text: "c"},
	}
	if err := tr.MarkDirty(root); err != nil {
		t.Fatalf("mark: %v", err)
	}
	flush(t, tr)

	after, _ := mustNode(t, tr, root).Children()
	for i := range before {
		if after[i] != before[i] {
			t.Fatalf("child %d id changed: %v -> %v", i, before[i], after[i])
		}
	}
	mid := mustNode(t, tr, after[1])
	if mid.Config().(leafConfig).Text != "b2" {
		t.Fatalf("middle config = %#v", mid.Config())
	}
	r, _ := mid.Renderer()
	if r.(*stubRenderer).updates != 1 {
		t.Fatalf("updates = %d, want 1", r.(*stubRenderer).updates)
	}
}

func TestRebuildReplacesOnTypeMismatch(t *testing.T) {
	src := &childSource{children: []Config{
		leafConfig{Text: "a"},
		leafConfig{Text: "b"},
	}}
	tr := NewTree(nil)
	root, err := tr.Mount(dynConfig{Source: src}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	flush(t, tr)
	before, _ := mustNode(t, tr, root).Children()

	src.children = []Config{
		leafConfig{Text: "a"},
		badgeConfig{Label: "b"},
	}
	if err := tr.MarkDirty(root); err != nil {
		t.Fatalf("mark: %v", err)
	}
	flush(t, tr)

	after, _ := mustNode(t, tr, root).Children()
	if after[0] != before[0] {
		t.Fatalf("stable child replaced: %v -> %v", before[0], after[0])
	}
	if after[1] == before[1] {
		t.Fatal("mismatched child not replaced")
	}
	if _, err := tr.Node(before[1]); !errors.IsKind(err, errors.KindStale) {
		t.Fatalf("old child lookup err = %v, want stale", err)
	}
}

func TestRebuildShrinksTrailingChildren(t *testing.T) {
	src := &childSource{children: []Config{
		leafConfig{Text: "a"},
		leafConfig{Text: "b"},
		leafConfig{Text: "c"},
	}}
	tr := NewTree(nil)
	root, err := tr.Mount(dynConfig{Source: src}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	flush(t, tr)
	before, _ := mustNode(t, tr, root).Children()

	src.children = src.children[:1]
	if err := tr.MarkDirty(root); err != nil {
		t.Fatalf("mark: %v", err)
	}
	flush(t, tr)

	after, _ := mustNode(t, tr, root).Children()
	if len(after) != 1 || after[0] != before[0] {
		t.Fatalf("after = %v, want [%v]", after, before[0])
	}
	if tr.Len() != 2 {
		t.Fatalf("len = %d, want 2", tr.Len())
	}
}

func TestKeyedReorderKeepsIdentity(t *testing.T) {
	src := &childSource{children: []Config{
		leafConfig{Text: "a", Id: "k1"},
		leafConfig{Text: "b", Id: "k2"},
		leafConfig{Text: "c", Id: "k3"},
	}}
	tr := NewTree(nil)
	root, err := tr.Mount(dynConfig{Source: src}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	flush(t, tr)
	before, _ := mustNode(t, tr, root).Children()
	byKey := map[string]arena.ID{}
	for _, id := range before {
		cfg := mustNode(t, tr, id).Config().(leafConfig)
		byKey[cfg.Id.(string)] = id
	}

	src.children = []Config{
		leafConfig{Text: "c", Id: "k3"},
		leafConfig{Text: "a", Id: "k1"},
		leafConfig{Text: "b", Id: "k2"},
	}
	if err := tr.MarkDirty(root); err != nil {
		t.Fatalf("mark: %v", err)
	}
	flush(t, tr)

	after, _ := mustNode(t, tr, root).Children()
	want := []arena.ID{byKey["k3"], byKey["k1"], byKey["k2"]}
	for i := range want {
		if after[i] != want[i] {
			t.Fatalf("child %d = %v, want %v", i, after[i], want[i])
		}
	}
	if tr.Len() != 4 {
		t.Fatalf("len = %d, want 4", tr.Len())
	}
}

func TestDuplicateKeysFirstOccurrenceWins(t *testing.T) {
	src := &childSource{children: []Config{
		leafConfig{Text: "a", Id: "dup"},
		leafConfig{Text: "b", Id: "dup"},
	}}
	tr := NewTree(nil)
	root, err := tr.Mount(dynConfig{Source: src}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	flush(t, tr)
	before, _ := mustNode(t, tr, root).Children()

	src.children = []Config{
		leafConfig{Text: "b2", Id: "dup"},
		leafConfig{Text: "a2", Id: "dup"},
	}
	if err := tr.MarkDirty(root); err != nil {
		t.Fatalf("mark: %v", err)
	}
	flush(t, tr)

	after, _ := mustNode(t, tr, root).Children()
	if len(after) != 2 {
		t.Fatalf("children = %d, want 2", len(after))
	}
	// First new occurrence claims the first old occurrence by key; the
	// demoted duplicate falls back to position.
	if after[0] != before[0] {
		t.Fatalf("keyed child = %v, want %v", after[0], before[0])
	}
	if after[1] != before[1] {
		t.Fatalf("demoted child = %v, want %v", after[1], before[1])
	}
}

func TestRebuildArityViolationKeepsOldChildren(t *testing.T) {
	src := &childSource{children: []Config{
		wrapConfig{Items: []Config{leafConfig{Text: "a"}}},
	}}
	tr := NewTree(nil)
	root, err := tr.Mount(dynConfig{Source: src}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	flush(t, tr)
	before, _ := mustNode(t, tr, root).Children()

	// The produced wrapper now violates its own contract.
	src.children = []Config{
		wrapConfig{Items: []Config{leafConfig{Text: "a"}, leafConfig{Text: "b"}}},
	}
	if err := tr.MarkDirty(root); err != nil {
		t.Fatalf("mark: %v", err)
	}
	flushErr := tr.Owner().Flush(func(id arena.ID) error {
		_, rebuildErr := tr.Rebuild(id)
		return rebuildErr
	})
	if !errors.IsKind(flushErr, errors.KindArity) {
		t.Fatalf("flush err = %v, want arity violation", flushErr)
	}

	after, _ := mustNode(t, tr, root).Children()
	if len(after) != len(before) || after[0] != before[0] {
		t.Fatalf("children mutated by aborted rebuild: %v -> %v", before, after)
	}
}

func TestBuilderPanicKeepsOldChildren(t *testing.T) {
	src := &childSource{children: []Config{leafConfig{Text: "a"}}}
	tr := NewTree(nil)
	root, err := tr.Mount(dynConfig{Source: src}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	flush(t, tr)
	before, _ := mustNode(t, tr, root).Children()

	src.panics = true
	if err := tr.MarkDirty(root); err != nil {
		t.Fatalf("mark: %v", err)
	}
	flush(t, tr)

	n := mustNode(t, tr, root)
	if n.State() != StateMounted {
		t.Fatalf("state = %v, want Mounted after recovered panic", n.State())
	}
	after, _ := n.Children()
	if len(after) != 1 || after[0] != before[0] {
		t.Fatalf("children = %v, want %v", after, before)
	}
}

func TestBuildSettlesAcrossPasses(t *testing.T) {
	inner := &childSource{children: []Config{leafConfig{Text: "x"}}}
	outer := &childSource{children: []Config{dynConfig{Source: inner}}}
	tr := NewTree(nil)
	root, err := tr.Mount(dynConfig{Source: outer}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	flush(t, tr)

	children, _ := mustNode(t, tr, root).Children()
	if len(children) != 1 {
		t.Fatalf("outer children = %d", len(children))
	}
	grand, _ := mustNode(t, tr, children[0]).Children()
	if len(grand) != 1 {
		t.Fatalf("inner children = %d, want 1 after fixpoint", len(grand))
	}
	if mustNode(t, tr, grand[0]).Config().(leafConfig).Text != "x" {
		t.Fatal("inner leaf not built")
	}
}

func TestApplyConfig(t *testing.T) {
	tr := NewTree(nil)
	root, err := tr.Mount(leafConfig{Text: "a"}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}

	if err := tr.ApplyConfig(root, leafConfig{Text: "b"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	n := mustNode(t, tr, root)
	if n.Config().(leafConfig).Text != "b" {
		t.Fatalf("config = %#v", n.Config())
	}
	if n.State() != StateDirty {
		t.Fatalf("state = %v, want Dirty after changed config", n.State())
	}
	r, _ := n.Renderer()
	if r.(*stubRenderer).updates != 1 {
		t.Fatalf("updates = %d, want 1", r.(*stubRenderer).updates)
	}

	if err := tr.ApplyConfig(root, badgeConfig{Label: "x"}); !errors.IsKind(err, errors.KindBuild) {
		t.Fatalf("type mismatch err = %v", err)
	}
}

func TestReassembleRoundTrip(t *testing.T) {
	tr := NewTree(nil)
	root, err := tr.Mount(rowConfig{Items: []Config{leafConfig{Text: "a"}}}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	children, _ := mustNode(t, tr, root).Children()
	oldRenderer, _ := mustNode(t, tr, children[0]).Renderer()

	if err := tr.Reassemble(root); err != nil {
		t.Fatalf("reassemble: %v", err)
	}
	if got := mustNode(t, tr, children[0]).State(); got != StateReassembling {
		t.Fatalf("state = %v, want Reassembling", got)
	}
	// Dirty marking is rejected mid-reassembly.
	if err := tr.MarkDirty(children[0]); !errors.IsKind(err, errors.KindState) {
		t.Fatalf("mark during reassemble err = %v", err)
	}

	if err := tr.FinishReassemble(root); err != nil {
		t.Fatalf("finish: %v", err)
	}
	child := mustNode(t, tr, children[0])
	if child.State() != StateMounted {
		t.Fatalf("state = %v, want Mounted", child.State())
	}
	newRenderer, _ := child.Renderer()
	if newRenderer == oldRenderer {
		t.Fatal("renderer not reconstructed")
	}
	if !oldRenderer.(*stubRenderer).disposed {
		t.Fatal("old renderer not disposed")
	}
	if child.Config().(leafConfig).Text != "a" {
		t.Fatal("config lost across reassemble")
	}
}

func TestMarkNeedsLayoutWalksToBoundary(t *testing.T) {
	tr := NewTree(nil)
	root, err := tr.Mount(rowConfig{Items: []Config{
		rowConfig{Items: []Config{leafConfig{Text: "a"}}},
	}}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	children, _ := mustNode(t, tr, root).Children()
	grand, _ := mustNode(t, tr, children[0]).Children()

	// Fresh mounts are already marked; settle them first.
	mustNode(t, tr, root).needsLayout = false
	mustNode(t, tr, children[0]).needsLayout = false
	mustNode(t, tr, grand[0]).needsLayout = false
	tr.Owner().Pipeline().FlushLayout()

	var invalidated []arena.ID
	tr.SetLayoutInvalidation(func(id arena.ID) {
		invalidated = append(invalidated, id)
	})

	if err := tr.MarkNeedsLayout(grand[0]); err != nil {
		t.Fatalf("mark: %v", err)
	}
	for _, id := range []arena.ID{grand[0], children[0], root} {
		if !mustNode(t, tr, id).NeedsLayout() {
			t.Fatalf("node %v not marked along the walk", id)
		}
	}
	// Without tight constraints the walk reaches the root; only the
	// boundary lands in the worklist.
	if got := tr.Owner().Pipeline().DirtyLayoutCount(); got != 1 {
		t.Fatalf("scheduled boundaries = %d, want 1", got)
	}
	if len(invalidated) != 3 {
		t.Fatalf("invalidations = %d, want 3", len(invalidated))
	}
}

func TestMarkNeedsLayoutStopsAtTightBoundary(t *testing.T) {
	tr := NewTree(nil)
	root, err := tr.Mount(rowConfig{Items: []Config{
		rowConfig{Items: []Config{leafConfig{Text: "a"}}},
	}}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	children, _ := mustNode(t, tr, root).Children()
	grand, _ := mustNode(t, tr, children[0]).Children()

	mustNode(t, tr, root).needsLayout = false
	mustNode(t, tr, children[0]).needsLayout = false
	mustNode(t, tr, grand[0]).needsLayout = false
	tr.Owner().Pipeline().FlushLayout()

	// Tight constraints make the middle node a relayout boundary.
	tight := layout.Tight(graphics.Size{Width: 100, Height: 50})
	if err := tr.SetLayoutResult(children[0], tight, graphics.Size{Width: 100, Height: 50}); err != nil {
		t.Fatalf("set layout: %v", err)
	}
	tr.Owner().Pipeline().FlushPaint()

	if err := tr.MarkNeedsLayout(grand[0]); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if mustNode(t, tr, root).NeedsLayout() {
		t.Fatal("walk crossed a tight boundary")
	}
	if !mustNode(t, tr, children[0]).NeedsLayout() {
		t.Fatal("boundary itself not marked")
	}
	if got := tr.Owner().Pipeline().DirtyLayoutCount(); got != 1 {
		t.Fatalf("scheduled boundaries = %d, want 1", got)
	}
}

func TestMarkNeedsPaintPropagatesToRoot(t *testing.T) {
	tr := NewTree(nil)
	root, err := tr.Mount(rowConfig{Items: []Config{leafConfig{Text: "a"}}}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	children, _ := mustNode(t, tr, root).Children()

	mustNode(t, tr, root).needsPaint = false
	mustNode(t, tr, children[0]).needsPaint = false
	tr.Owner().Pipeline().FlushPaint()

	if err := tr.MarkNeedsPaint(children[0]); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !mustNode(t, tr, root).NeedsPaint() {
		t.Fatal("ancestor not marked for paint")
	}
}

func TestNonComparableKeysMatchPositionally(t *testing.T) {
	src := &childSource{children: []Config{
		leafConfig{Text: "a", Id: []string{"k1"}},
		leafConfig{Text: "b", Id: []string{"k2"}},
	}}
	tr := NewTree(nil)
	root, err := tr.Mount(dynConfig{Source: src}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	flush(t, tr)
	before, _ := mustNode(t, tr, root).Children()

	// Slice keys cannot index the match maps; the rebuild must still
	// complete, reusing each child by position.
	src.children = []Config{
		leafConfig{Text: "a2", Id: []string{"k1"}},
		leafConfig{Text: "b2", Id: []string{"k2"}},
	}
	if err := tr.MarkDirty(root); err != nil {
		t.Fatalf("mark: %v", err)
	}
	flush(t, tr)

	after, _ := mustNode(t, tr, root).Children()
	if len(after) != 2 {
		t.Fatalf("children = %d, want 2", len(after))
	}
	for i := range after {
		if after[i] != before[i] {
			t.Fatalf("child %d = %v, want %v", i, after[i], before[i])
		}
	}
	if got := mustNode(t, tr, after[0]).Config().(leafConfig).Text; got != "a2" {
		t.Fatalf("child 0 text = %q, want %q", got, "a2")
	}

	// A changed slice key is a mismatch at the same position; the node is
	// replaced, not reused.
	src.children = []Config{
		leafConfig{Text: "a2", Id: []string{"other"}},
		leafConfig{Text: "b2", Id: []string{"k2"}},
	}
	if err := tr.MarkDirty(root); err != nil {
		t.Fatalf("mark: %v", err)
	}
	flush(t, tr)

	final, _ := mustNode(t, tr, root).Children()
	if final[0] == after[0] {
		t.Fatal("child with changed key not replaced")
	}
	if final[1] != after[1] {
		t.Fatalf("child 1 = %v, want %v", final[1], after[1])
	}
}

func TestUnmountInvalidatesLayoutEntries(t *testing.T) {
	tr := NewTree(nil)
	root, err := tr.Mount(rowConfig{Items: []Config{
		leafConfig{Text: "a"},
		leafConfig{Text: "b"},
	}}, arena.NilID)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	children, _ := mustNode(t, tr, root).Children()

	var invalidated []arena.ID
	tr.SetLayoutInvalidation(func(id arena.ID) {
		invalidated = append(invalidated, id)
	})

	if _, err := tr.Unmount(children[0]); err != nil {
		t.Fatalf("unmount: %v", err)
	}
	found := false
	for _, id := range invalidated {
		if id == children[0] {
			found = true
		}
	}
	if !found {
		t.Fatalf("unmounted node %v not invalidated; got %v", children[0], invalidated)
	}

	// Unmounting the root covers the whole subtree.
	invalidated = nil
	if _, err := tr.Unmount(root); err != nil {
		t.Fatalf("unmount root: %v", err)
	}
	want := map[arena.ID]bool{root: false, children[1]: false}
	for _, id := range invalidated {
		if _, ok := want[id]; ok {
			want[id] = true
		}
	}
	for id, seen := range want {
		if !seen {
			t.Fatalf("node %v not invalidated on subtree unmount", id)
		}
	}
}
