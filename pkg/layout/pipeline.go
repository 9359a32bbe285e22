package layout

import (
	"slices"

	"github.com/reflow-ui/reflow/pkg/arena"
)

// WorkItem identifies a scheduled node together with its tree depth at
// scheduling time. Worklists are drained parents-first, so depth rides
// along with the id.
type WorkItem struct {
	ID    arena.ID
	Depth int
}

// PipelineOwner tracks nodes that need layout or paint.
//
// Layout scheduling works with relayout boundaries: when a node needs
// layout, the tree walks up to the nearest boundary, marking each node
// along the way, and schedules the boundary here. During the layout phase
// the coordinator starts at each scheduled boundary and propagates down
// through the marked nodes.
//
// PipelineOwner is not safe for concurrent use; external callers submit
// dirty marks through the engine's queue, and only the frame coordinator
// touches the worklists.
type PipelineOwner struct {
	dirtyLayout    []WorkItem
	dirtyLayoutSet map[arena.ID]bool
	dirtyPaint     []WorkItem
	dirtyPaintSet  map[arena.ID]bool
	needsLayout    bool
	needsPaint     bool
}

// NewPipelineOwner creates an empty pipeline owner.
func NewPipelineOwner() *PipelineOwner {
	return &PipelineOwner{
		dirtyLayoutSet: make(map[arena.ID]bool),
		dirtyPaintSet:  make(map[arena.ID]bool),
	}
}

// ScheduleLayout marks a relayout boundary as needing layout. Only
// boundaries are scheduled here; intermediate nodes carry a dirty flag but
// are reached from their boundary during the flush.
func (p *PipelineOwner) ScheduleLayout(id arena.ID, depth int) {
	if p.dirtyLayoutSet == nil {
		p.dirtyLayoutSet = make(map[arena.ID]bool)
	}
	if p.dirtyLayoutSet[id] {
		return
	}
	p.dirtyLayoutSet[id] = true
	p.dirtyLayout = append(p.dirtyLayout, WorkItem{ID: id, Depth: depth})
	p.needsLayout = true
	p.needsPaint = true
}

// SchedulePaint marks a node as needing paint.
func (p *PipelineOwner) SchedulePaint(id arena.ID, depth int) {
	if p.dirtyPaintSet == nil {
		p.dirtyPaintSet = make(map[arena.ID]bool)
	}
	if p.dirtyPaintSet[id] {
		return
	}
	p.dirtyPaintSet[id] = true
	p.dirtyPaint = append(p.dirtyPaint, WorkItem{ID: id, Depth: depth})
	p.needsPaint = true
}

// NeedsLayout reports whether any node is scheduled for layout.
func (p *PipelineOwner) NeedsLayout() bool {
	return p.needsLayout
}

// NeedsPaint reports whether any node is scheduled for paint.
func (p *PipelineOwner) NeedsPaint() bool {
	return p.needsPaint
}

// DirtyLayoutCount returns the number of scheduled layout boundaries.
func (p *PipelineOwner) DirtyLayoutCount() int {
	return len(p.dirtyLayout)
}

// DirtyPaintCount returns the number of scheduled paint nodes.
func (p *PipelineOwner) DirtyPaintCount() int {
	return len(p.dirtyPaint)
}

// FlushLayout takes the scheduled layout boundaries sorted parents-first
// and resets the layout worklist.
func (p *PipelineOwner) FlushLayout() []WorkItem {
	if !p.needsLayout {
		return nil
	}
	items := p.dirtyLayout
	p.dirtyLayout = nil
	p.dirtyLayoutSet = nil
	p.needsLayout = false

	slices.SortStableFunc(items, func(a, b WorkItem) int {
		return a.Depth - b.Depth
	})
	return items
}

// FlushPaint takes the scheduled paint nodes sorted parents-first and
// resets the paint worklist.
func (p *PipelineOwner) FlushPaint() []WorkItem {
	if !p.needsPaint {
		return nil
	}
	items := p.dirtyPaint
	p.dirtyPaint = nil
	p.dirtyPaintSet = nil
	p.needsPaint = false

	slices.SortStableFunc(items, func(a, b WorkItem) int {
		return a.Depth - b.Depth
	})
	return items
}
