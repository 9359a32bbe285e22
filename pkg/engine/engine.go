package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/reflow-ui/reflow/pkg/arena"
	"github.com/reflow-ui/reflow/pkg/core"
	"github.com/reflow-ui/reflow/pkg/errors"
	"github.com/reflow-ui/reflow/pkg/graphics"
	"github.com/reflow-ui/reflow/pkg/layout"
)

// markKind classifies a queued external mutation.
type markKind uint8

const (
	markRebuild markKind = iota
	markLayout
	markPaint
	markConfig
)

// pendingMark is one externally submitted dirty mark. External producers
// never touch the tree directly; their marks are queued here and drained
// at the start of the next frame, so a frame's worklists are fixed once
// its phases begin.
type pendingMark struct {
	kind   markKind
	id     arena.ID
	config core.Config
}

// Engine drives the frame pipeline over one tree: drain external marks,
// rebuild, layout, paint. All tree access is serialized on e.mu; between
// frames the debug server takes the same lock for snapshots.
type Engine struct {
	mu       sync.Mutex
	opts     Options
	viewport graphics.Size

	owner *core.BuildOwner
	tree  *core.Tree
	cache *layout.Cache

	// layers caches each node's recorded display list; clean subtrees are
	// embedded by reference instead of re-recorded.
	layers    map[arena.ID]*graphics.DisplayList
	lastFrame *graphics.DisplayList
	frameSeq  uint64
	lastMs    float64

	pendingMu sync.Mutex
	pending   []pendingMark

	frameRequested   atomic.Bool
	onFrameRequested atomic.Value // func()

	trace   *FrameTrace
	metrics *engineMetrics
	tracer  trace.Tracer

	// Per-frame counters, reset at frame start.
	frameRebuilds int
	frameLayouts  int
	framePaints   int
}

// New creates an engine with an empty tree.
func New(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	owner := core.NewBuildOwner()
	e := &Engine{
		opts:     opts,
		viewport: opts.Viewport(),
		owner:    owner,
		tree:     core.NewTree(owner),
		cache:    layout.NewCache(opts.CacheCapacity),
		layers:   make(map[arena.ID]*graphics.DisplayList),
		trace:    NewFrameTrace(opts.TraceSamples, opts.TraceThreshold()),
		metrics:  newEngineMetrics(),
		tracer:   otel.Tracer("reflow/engine"),
	}
	// A node whose layout input changed must not serve stale sizes.
	e.tree.SetLayoutInvalidation(e.cache.Invalidate)
	owner.OnNeedsFrame = e.RequestFrame
	return e, nil
}

// Tree exposes the engine's tree for inspection. Callers outside a frame
// must hold no assumptions about concurrent frames; the debug server
// serializes on the engine lock via the snapshot helpers instead.
func (e *Engine) Tree() *core.Tree {
	return e.tree
}

// Trace returns the frame trace ring.
func (e *Engine) Trace() *FrameTrace {
	return e.trace
}

// SetRoot mounts cfg as the root, replacing any existing root. A root of
// the same shape updates in place and keeps its subtree. An invalid
// configuration aborts before any teardown; the mounted tree survives.
func (e *Engine) SetRoot(cfg core.Config) (arena.ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := core.ValidateConfig(cfg); err != nil {
		return arena.NilID, err
	}
	root := e.tree.Root()
	if !root.IsNil() {
		n, err := e.tree.Node(root)
		if err != nil {
			return arena.NilID, err
		}
		if core.SameShape(n.Config(), cfg) {
			if err := e.tree.ApplyConfig(root, cfg); err != nil {
				return arena.NilID, err
			}
			e.RequestFrame()
			return root, nil
		}
		// Different shape; tear down and remount. The replacement was
		// validated above, so the mount cannot fail and leave the tree
		// empty.
		if _, err := e.tree.Unmount(root); err != nil {
			return arena.NilID, err
		}
	}
	id, err := e.tree.Mount(cfg, arena.NilID)
	if err != nil {
		return arena.NilID, err
	}
	e.RequestFrame()
	return id, nil
}

// SetViewport resizes the root's tight constraints.
func (e *Engine) SetViewport(size graphics.Size) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.viewport == size {
		return nil
	}
	e.viewport = size
	root := e.tree.Root()
	if root.IsNil() {
		return nil
	}
	if err := e.tree.MarkNeedsLayout(root); err != nil {
		return err
	}
	e.RequestFrame()
	return nil
}

// MarkDirty queues a rebuild mark for the node. Safe from any goroutine;
// the mark takes effect at the start of the next frame.
func (e *Engine) MarkDirty(id arena.ID) {
	e.enqueue(pendingMark{kind: markRebuild, id: id})
}

// MarkNeedsLayout queues a layout mark for the node.
func (e *Engine) MarkNeedsLayout(id arena.ID) {
	e.enqueue(pendingMark{kind: markLayout, id: id})
}

// MarkNeedsPaint queues a paint mark for the node.
func (e *Engine) MarkNeedsPaint(id arena.ID) {
	e.enqueue(pendingMark{kind: markPaint, id: id})
}

// ApplyConfig queues an in-place config replacement for the node.
func (e *Engine) ApplyConfig(id arena.ID, cfg core.Config) {
	e.enqueue(pendingMark{kind: markConfig, id: id, config: cfg})
}

func (e *Engine) enqueue(mark pendingMark) {
	e.pendingMu.Lock()
	e.pending = append(e.pending, mark)
	e.pendingMu.Unlock()
	e.RequestFrame()
}

// RequestFrame asks the embedder for a frame. Duplicate requests before
// the frame runs coalesce.
func (e *Engine) RequestFrame() {
	if e.frameRequested.CompareAndSwap(false, true) {
		if fn, ok := e.onFrameRequested.Load().(func()); ok && fn != nil {
			fn()
		}
	}
}

// OnFrameRequested registers the embedder's schedule callback.
func (e *Engine) OnFrameRequested(fn func()) {
	e.onFrameRequested.Store(fn)
}

// NeedsFrame reports whether any work is pending.
func (e *Engine) NeedsFrame() bool {
	if e.frameRequested.Load() {
		return true
	}
	e.pendingMu.Lock()
	queued := len(e.pending) > 0
	e.pendingMu.Unlock()
	if queued {
		return true
	}
	return e.owner.NeedsWork() || e.owner.Pipeline().NeedsLayout() || e.owner.Pipeline().NeedsPaint()
}

// LastFrame returns the most recently composed display list.
func (e *Engine) LastFrame() *graphics.DisplayList {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastFrame
}

// Reassemble runs hot reconstruction across the whole tree and schedules
// a frame.
func (e *Engine) Reassemble() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.tree.ReassembleAll(); err != nil {
		return err
	}
	e.RequestFrame()
	return nil
}

// RenderFrame runs one frame: drain queued marks, rebuild to a fixpoint,
// layout from the scheduled boundaries, then compose the display list.
// Dirty marks raised while a later phase runs are carried to the next
// frame; within one frame each phase's worklist is fixed when it starts.
func (e *Engine) RenderFrame(ctx context.Context) (*graphics.DisplayList, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.frameRequested.Store(false)
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "reflow.frame")
	defer span.End()

	e.frameRebuilds = 0
	e.frameLayouts = 0
	e.framePaints = 0
	hitsBefore, missesBefore := e.cache.Hits(), e.cache.Misses()

	e.drainPending()

	buildStart := time.Now()
	if err := e.flushBuild(ctx); err != nil {
		e.metrics.frameErrors.Inc()
		return nil, err
	}
	buildDur := time.Since(buildStart)

	layoutStart := time.Now()
	if err := e.flushLayout(ctx); err != nil {
		e.metrics.frameErrors.Inc()
		return nil, err
	}
	layoutDur := time.Since(layoutStart)

	paintStart := time.Now()
	frame, err := e.flushPaint(ctx)
	if err != nil {
		e.metrics.frameErrors.Inc()
		return nil, err
	}
	paintDur := time.Since(paintStart)

	e.lastFrame = frame
	e.frameSeq++
	e.pruneLayers()

	total := time.Since(start)
	e.lastMs = durationToMillis(total)
	e.metrics.frames.Inc()
	e.metrics.phaseDuration.WithLabelValues("build").Observe(buildDur.Seconds())
	e.metrics.phaseDuration.WithLabelValues("layout").Observe(layoutDur.Seconds())
	e.metrics.phaseDuration.WithLabelValues("paint").Observe(paintDur.Seconds())
	e.metrics.liveNodes.Set(float64(e.tree.Len()))

	e.trace.Add(FrameSample{
		Seq:       e.frameSeq,
		Timestamp: start.UnixMilli(),
		FrameMs:   e.lastMs,
		Phases: FramePhaseTimings{
			BuildMs:  durationToMillis(buildDur),
			LayoutMs: durationToMillis(layoutDur),
			PaintMs:  durationToMillis(paintDur),
		},
		Counts: FrameCounts{
			Rebuilds:    e.frameRebuilds,
			Layouts:     e.frameLayouts,
			Paints:      e.framePaints,
			NodeCount:   e.tree.Len(),
			CacheHits:   int(e.cache.Hits() - hitsBefore),
			CacheMisses: int(e.cache.Misses() - missesBefore),
		},
	}, total)

	// Work deferred from this frame's later phases runs next frame.
	if e.owner.NeedsWork() || e.owner.Pipeline().NeedsLayout() || e.owner.Pipeline().NeedsPaint() {
		e.RequestFrame()
	}
	return frame, nil
}

// drainPending applies queued external marks. Marks against unmounted
// nodes are dropped; the producer raced an unmount and the stale id is
// the intended signal.
func (e *Engine) drainPending() {
	e.pendingMu.Lock()
	batch := e.pending
	e.pending = nil
	e.pendingMu.Unlock()

	for _, mark := range batch {
		var err error
		switch mark.kind {
		case markRebuild:
			err = e.tree.MarkDirty(mark.id)
		case markLayout:
			err = e.tree.MarkNeedsLayout(mark.id)
		case markPaint:
			err = e.tree.MarkNeedsPaint(mark.id)
		case markConfig:
			err = e.tree.ApplyConfig(mark.id, mark.config)
		}
		if err != nil && !errors.IsKind(err, errors.KindStale) {
			if treeErr, ok := err.(*errors.TreeError); ok {
				errors.Report(treeErr)
			}
		}
	}
}

func (e *Engine) flushBuild(ctx context.Context) error {
	_, span := e.tracer.Start(ctx, "reflow.frame.build")
	defer span.End()
	return e.owner.Flush(func(id arena.ID) error {
		e.frameRebuilds++
		e.metrics.rebuilds.Inc()
		_, err := e.tree.Rebuild(id)
		return err
	})
}

func (e *Engine) flushLayout(ctx context.Context) error {
	_, span := e.tracer.Start(ctx, "reflow.frame.layout")
	defer span.End()

	items := e.owner.Pipeline().FlushLayout()
	for _, item := range items {
		n, err := e.tree.Node(item.ID)
		if err != nil {
			// Unmounted after scheduling.
			continue
		}
		if !n.NeedsLayout() {
			continue
		}
		constraints, ok := n.Constraints()
		if item.ID == e.tree.Root() {
			constraints = layout.Tight(e.viewport)
		} else if !ok {
			// A boundary without recorded constraints has never been laid
			// out; its first layout arrives from the parent.
			continue
		}
		if _, err := e.layoutNode(item.ID, constraints); err != nil {
			return err
		}
	}
	return nil
}

// layoutNode computes a node's size under constraints, consulting the
// cache for clean nodes. Dirty nodes always recompute.
func (e *Engine) layoutNode(id arena.ID, constraints layout.Constraints) (graphics.Size, error) {
	n, err := e.tree.Node(id)
	if err != nil {
		return graphics.Size{}, err
	}
	if !n.NeedsLayout() {
		if size, ok := e.cache.Lookup(id, constraints); ok {
			e.metrics.cacheHits.Inc()
			if err := e.tree.SetLayoutResult(id, constraints, size); err != nil {
				return graphics.Size{}, err
			}
			return size, nil
		}
		e.metrics.cacheMisses.Inc()
	}

	renderer, err := n.Renderer()
	if err != nil {
		return graphics.Size{}, err
	}
	children, err := n.Children()
	if err != nil {
		return graphics.Size{}, err
	}
	lctx := &layoutContext{
		engine:   e,
		children: append([]arena.ID(nil), children...),
	}
	e.frameLayouts++
	e.metrics.layouts.Inc()
	size := renderer.Layout(lctx, constraints)
	if lctx.err != nil {
		return graphics.Size{}, lctx.err
	}
	e.cache.Store(id, constraints, size)
	if err := e.tree.SetLayoutResult(id, constraints, size); err != nil {
		return graphics.Size{}, err
	}
	return size, nil
}

// layoutContext backs layout.LayoutContext with the arena. Child errors
// are latched and surfaced after the renderer returns; renderers stay
// error-free.
type layoutContext struct {
	engine   *Engine
	children []arena.ID
	err      error
}

func (c *layoutContext) ChildCount() int {
	return len(c.children)
}

func (c *layoutContext) LayoutChild(index int, constraints layout.Constraints) graphics.Size {
	if c.err != nil || index < 0 || index >= len(c.children) {
		return graphics.Size{}
	}
	size, err := c.engine.layoutNode(c.children[index], constraints)
	if err != nil {
		c.err = err
	}
	return size
}

func (c *layoutContext) PositionChild(index int, offset graphics.Offset) {
	if c.err != nil || index < 0 || index >= len(c.children) {
		return
	}
	if err := c.engine.tree.SetChildOffset(c.children[index], offset); err != nil {
		c.err = err
	}
}

func (e *Engine) flushPaint(ctx context.Context) (*graphics.DisplayList, error) {
	_, span := e.tracer.Start(ctx, "reflow.frame.paint")
	defer span.End()

	// The worklist only carries scheduling state; composition follows the
	// needsPaint flags from the root.
	e.owner.Pipeline().FlushPaint()

	root := e.tree.Root()
	if root.IsNil() {
		rec := new(graphics.Recorder)
		rec.Begin(e.viewport)
		return rec.End(), nil
	}
	return e.paintNode(root)
}

// paintNode returns the node's display list, re-recording only when the
// node is marked. Clean nodes replay their cached layer.
func (e *Engine) paintNode(id arena.ID) (*graphics.DisplayList, error) {
	n, err := e.tree.Node(id)
	if err != nil {
		return nil, err
	}
	if !n.NeedsPaint() {
		if cached := e.layers[id]; cached != nil {
			return cached, nil
		}
	}

	renderer, err := n.Renderer()
	if err != nil {
		return nil, err
	}
	size, err := n.Size()
	if err != nil {
		return nil, err
	}
	children, err := n.Children()
	if err != nil {
		return nil, err
	}

	rec := new(graphics.Recorder)
	pctx := &paintContext{
		engine:   e,
		recorder: rec,
		canvas:   rec.Begin(size),
		size:     size,
		children: append([]arena.ID(nil), children...),
	}
	e.framePaints++
	e.metrics.paints.Inc()
	e.safePaint(renderer, pctx)
	if pctx.err != nil {
		return nil, pctx.err
	}

	list := rec.End()
	e.layers[id] = list
	if err := e.tree.ClearNeedsPaint(id); err != nil {
		return nil, err
	}
	return list, nil
}

// safePaint runs a renderer's Paint, recovering from panics so one bad
// renderer cannot take down the frame loop.
func (e *Engine) safePaint(renderer layout.Renderer, pctx *paintContext) {
	defer func() {
		if r := recover(); r != nil {
			errors.ReportPanic(&errors.PanicError{
				Op:         "engine.paint",
				Value:      r,
				StackTrace: errors.CaptureStack(),
			})
		}
	}()
	renderer.Paint(pctx)
}

// paintContext backs layout.PaintContext with the arena and a recorder.
type paintContext struct {
	engine   *Engine
	recorder *graphics.Recorder
	canvas   graphics.Canvas
	size     graphics.Size
	children []arena.ID
	err      error
}

func (c *paintContext) Canvas() graphics.Canvas {
	return c.canvas
}

func (c *paintContext) Size() graphics.Size {
	return c.size
}

func (c *paintContext) ChildCount() int {
	return len(c.children)
}

func (c *paintContext) PaintChild(index int) {
	if c.err != nil || index < 0 || index >= len(c.children) {
		return
	}
	childID := c.children[index]
	child, err := c.engine.tree.Node(childID)
	if err != nil {
		c.err = err
		return
	}
	offset, err := child.Offset()
	if err != nil {
		c.err = err
		return
	}
	list, err := c.engine.paintNode(childID)
	if err != nil {
		c.err = err
		return
	}
	c.recorder.AppendList(list, offset)
}

// pruneLayers drops cached layers for nodes that left the tree.
func (e *Engine) pruneLayers() {
	for id := range e.layers {
		if !e.tree.Contains(id) {
			delete(e.layers, id)
		}
	}
}

// RuntimeStats is the debug server's stats response shape.
type RuntimeStats struct {
	Frames        uint64  `json:"frames"`
	Nodes         int     `json:"nodes"`
	CacheEntries  int     `json:"cacheEntries"`
	CacheHits     uint64  `json:"cacheHits"`
	CacheMisses   uint64  `json:"cacheMisses"`
	PendingBuilds int     `json:"pendingBuilds"`
	LastFrameMs   float64 `json:"lastFrameMs"`
}

// Stats returns a point-in-time view of the engine's counters.
func (e *Engine) Stats() RuntimeStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return RuntimeStats{
		Frames:        e.frameSeq,
		Nodes:         e.tree.Len(),
		CacheEntries:  e.cache.Len(),
		CacheHits:     e.cache.Hits(),
		CacheMisses:   e.cache.Misses(),
		PendingBuilds: e.owner.DirtyCount(),
		LastFrameMs:   e.lastMs,
	}
}
