package engine

import (
	"github.com/reflow-ui/reflow/pkg/arena"
	"github.com/reflow-ui/reflow/pkg/graphics"
	"github.com/reflow-ui/reflow/pkg/layout"
)

// HitTest walks the tree from the root and returns the ids of every node
// hit by the point, deepest first. The point is in root coordinates.
func (e *Engine) HitTest(point graphics.Offset) ([]arena.ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	root := e.tree.Root()
	if root.IsNil() {
		return nil, nil
	}
	var path []arena.ID
	if _, err := e.hitNode(root, point, &path); err != nil {
		return nil, err
	}
	return path, nil
}

func (e *Engine) hitNode(id arena.ID, point graphics.Offset, path *[]arena.ID) (bool, error) {
	n, err := e.tree.Node(id)
	if err != nil {
		return false, err
	}
	renderer, err := n.Renderer()
	if err != nil {
		return false, err
	}
	size, err := n.Size()
	if err != nil {
		return false, err
	}
	children, err := n.Children()
	if err != nil {
		return false, err
	}

	hctx := &hitTestContext{
		engine:   e,
		size:     size,
		children: append([]arena.ID(nil), children...),
		path:     path,
	}
	hit := renderer.HitTest(hctx, point)
	if hctx.err != nil {
		return false, hctx.err
	}
	if hit {
		*path = append(*path, id)
	}
	return hit, nil
}

// hitTestContext backs layout.HitTestContext with the arena.
type hitTestContext struct {
	engine   *Engine
	size     graphics.Size
	children []arena.ID
	path     *[]arena.ID
	err      error
}

func (c *hitTestContext) ChildCount() int {
	return len(c.children)
}

func (c *hitTestContext) Size() graphics.Size {
	return c.size
}

func (c *hitTestContext) HitTestChild(index int, point graphics.Offset) bool {
	if c.err != nil || index < 0 || index >= len(c.children) {
		return false
	}
	childID := c.children[index]
	child, err := c.engine.tree.Node(childID)
	if err != nil {
		c.err = err
		return false
	}
	offset, err := child.Offset()
	if err != nil {
		c.err = err
		return false
	}
	hit, err := c.engine.hitNode(childID, point.Sub(offset), c.path)
	if err != nil {
		c.err = err
		return false
	}
	return hit
}

// HitTestRect is a ready-made hit test for rectangular renderers: the
// point hits when any child claims it or it falls inside the node's own
// bounds.
func HitTestRect(ctx layout.HitTestContext, point graphics.Offset) bool {
	for i := ctx.ChildCount() - 1; i >= 0; i-- {
		if ctx.HitTestChild(i, point) {
			return true
		}
	}
	size := ctx.Size()
	return point.X >= 0 && point.Y >= 0 && point.X < size.Width && point.Y < size.Height
}
