package core

import (
	"fmt"
	"slices"
	"sync"

	"github.com/reflow-ui/reflow/pkg/arena"
	"github.com/reflow-ui/reflow/pkg/errors"
	"github.com/reflow-ui/reflow/pkg/layout"
)

// maxBuildPasses bounds the build fixpoint. A frame whose rebuilds keep
// dirtying new nodes past this many drains has a feedback loop in its
// configuration and is aborted rather than spun forever.
const maxBuildPasses = 64

// BuildOwner collects nodes scheduled for rebuild and drains them in depth
// order during the frame's build phase. Scheduling is safe from any
// goroutine; draining belongs to the frame coordinator alone.
type BuildOwner struct {
	mu       sync.Mutex
	dirty    []layout.WorkItem
	dirtySet map[arena.ID]bool

	pipeline *layout.PipelineOwner

	// OnNeedsFrame fires when work arrives on an idle owner, letting the
	// embedder schedule a frame.
	OnNeedsFrame func()
}

// NewBuildOwner creates an empty build owner with its own pipeline.
func NewBuildOwner() *BuildOwner {
	return &BuildOwner{
		dirtySet: make(map[arena.ID]bool),
		pipeline: layout.NewPipelineOwner(),
	}
}

// Pipeline returns the layout/paint pipeline fed by this owner's tree.
func (o *BuildOwner) Pipeline() *layout.PipelineOwner {
	return o.pipeline
}

// ScheduleBuild queues a node for rebuild. Duplicate schedules before the
// drain coalesce into one entry.
func (o *BuildOwner) ScheduleBuild(id arena.ID, depth int) {
	o.mu.Lock()
	if o.dirtySet[id] {
		o.mu.Unlock()
		return
	}
	wasIdle := len(o.dirty) == 0
	o.dirtySet[id] = true
	o.dirty = append(o.dirty, layout.WorkItem{ID: id, Depth: depth})
	notify := wasIdle && o.OnNeedsFrame != nil
	o.mu.Unlock()

	if notify {
		o.OnNeedsFrame()
	}
}

// NeedsWork reports whether any rebuilds are pending.
func (o *BuildOwner) NeedsWork() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.dirty) > 0
}

// DirtyCount returns the number of pending rebuilds.
func (o *BuildOwner) DirtyCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.dirty)
}

// Flush drains the dirty list to a fixpoint, invoking rebuild for each
// node parents-first. Rebuilds may schedule further work; each drain picks
// it up in the next pass. The fixpoint is bounded, and overflowing the
// bound fails the frame.
func (o *BuildOwner) Flush(rebuild func(arena.ID) error) error {
	for pass := 0; ; pass++ {
		o.mu.Lock()
		if len(o.dirty) == 0 {
			o.mu.Unlock()
			return nil
		}
		if pass >= maxBuildPasses {
			pending := len(o.dirty)
			o.mu.Unlock()
			return &errors.TreeError{
				Op:     "core.BuildOwner.Flush",
				Kind:   errors.KindBuild,
				Detail: fmt.Sprintf("build did not settle after %d passes (%d nodes still dirty)", maxBuildPasses, pending),
			}
		}
		batch := o.dirty
		o.dirty = nil
		o.dirtySet = make(map[arena.ID]bool)
		o.mu.Unlock()

		// Parents before children: a parent's rebuild may replace the
		// child entirely, making the child's own entry moot.
		slices.SortStableFunc(batch, func(a, b layout.WorkItem) int {
			return a.Depth - b.Depth
		})
		for _, item := range batch {
			if err := rebuild(item.ID); err != nil {
				return err
			}
		}
	}
}
