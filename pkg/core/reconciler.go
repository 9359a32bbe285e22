package core

import (
	"fmt"
	"reflect"

	"github.com/reflow-ui/reflow/pkg/arena"
	"github.com/reflow-ui/reflow/pkg/errors"
	"github.com/reflow-ui/reflow/pkg/layout"
)

// DiffOpKind classifies one reconciliation decision.
type DiffOpKind uint8

const (
	// OpKeep reuses a node whose config is unchanged by value.
	OpKeep DiffOpKind = iota
	// OpUpdate reuses a node, swapping in a changed config of the same shape.
	OpUpdate
	// OpReplace unmounts an old node and mounts a new one in its position.
	OpReplace
	// OpInsert mounts a new node with no old counterpart.
	OpInsert
	// OpRemove unmounts a trailing old node with no new counterpart.
	OpRemove
)

func (k DiffOpKind) String() string {
	switch k {
	case OpKeep:
		return "keep"
	case OpUpdate:
		return "update"
	case OpReplace:
		return "replace"
	case OpInsert:
		return "insert"
	case OpRemove:
		return "remove"
	default:
		return "invalid"
	}
}

// DiffOp records one reconciliation decision, for frame traces and tests.
type DiffOp struct {
	Kind  DiffOpKind
	Index int      // position in the new child list; -1 for removals
	ID    arena.ID // surviving or newly mounted node; nil for removals
	OldID arena.ID // replaced or removed node; nil for keeps and inserts
}

// buildContext carries the identity of the node being rebuilt through
// child production.
type buildContext struct {
	id    arena.ID
	depth int
}

func (c *buildContext) NodeID() arena.ID { return c.id }
func (c *buildContext) Depth() int       { return c.depth }

// Rebuild reruns child production for a dirty node and reconciles the
// output against the existing children. It returns the decisions made, in
// new-list order with removals appended.
//
// A node unmounted between scheduling and the drain is skipped silently;
// its id no longer resolves.
func (t *Tree) Rebuild(id arena.ID) ([]DiffOp, error) {
	n, err := t.nodes.Get(id)
	if err != nil {
		if errors.IsKind(err, errors.KindStale) {
			return nil, nil
		}
		return nil, err
	}
	if !n.needsBuild || n.state != StateDirty {
		return nil, nil
	}

	newCfgs, ok := t.produceChildren(id, n)
	if !ok {
		// The panic was reported; keep the old children and settle the
		// node so the frame completes.
		n, err = t.nodes.Get(id)
		if err != nil {
			return nil, err
		}
		n.needsBuild = false
		n.state = StateMounted
		return nil, nil
	}

	if !n.Arity().Admits(len(newCfgs)) {
		n.needsBuild = false
		n.state = StateMounted
		return nil, arityError("core.Tree.Rebuild", n, len(newCfgs))
	}

	old := append([]arena.ID(nil), n.children...)
	newIDs, ops, err := t.reconcileChildren(id, old, newCfgs)
	if err != nil {
		return nil, err
	}

	n, err = t.nodes.Get(id)
	if err != nil {
		return nil, err
	}
	n.children = newIDs
	n.needsBuild = false
	n.state = StateMounted

	for _, op := range ops {
		if op.Kind != OpKeep {
			if err := t.MarkNeedsLayout(id); err != nil {
				return nil, err
			}
			if err := t.MarkNeedsPaint(id); err != nil {
				return nil, err
			}
			break
		}
	}
	return ops, nil
}

// produceChildren runs the node's child production, recovering from panics
// in Builder code. A recovered panic is reported and ok is false.
func (t *Tree) produceChildren(id arena.ID, n *Node) (cfgs []Config, ok bool) {
	builder, isBuilder := n.config.(Builder)
	if !isBuilder {
		return n.config.ChildConfigs(), true
	}

	defer func() {
		if r := recover(); r != nil {
			errors.ReportBuildError(&errors.BuildError{
				NodeID:     uint64(id),
				NodeType:   configTypeName(n.config),
				Recovered:  r,
				StackTrace: errors.CaptureStack(),
			})
			cfgs, ok = nil, false
		}
	}()
	ctx := &buildContext{id: id, depth: n.depth}
	return builder.BuildChildren(ctx), true
}

// reconcileChildren diffs a parent's existing children against a freshly
// produced config list. Keyed entries match by key first; the rest match
// positionally by type identity. Matches update in place, mismatches
// replace, and leftover old children unmount.
//
// The new configs are validated against the arity contract before any
// mutation, so a violation aborts with the old children untouched.
func (t *Tree) reconcileChildren(parentID arena.ID, old []arena.ID, newCfgs []Config) ([]arena.ID, []DiffOp, error) {
	parent, err := t.nodes.Get(parentID)
	if err != nil {
		return nil, nil, err
	}
	if !parent.Arity().Admits(len(newCfgs)) {
		return nil, nil, arityError("core.Tree.reconcileChildren", parent, len(newCfgs))
	}
	parentDepth := parent.depth
	for _, cfg := range newCfgs {
		if cfg == nil {
			return nil, nil, &errors.TreeError{
				Op:       "core.Tree.reconcileChildren",
				Kind:     errors.KindBuild,
				NodeID:   uint64(parentID),
				NodeType: configTypeName(parent.config),
				Detail:   "nil child configuration",
			}
		}
		if err := validateConfigTree(cfg); err != nil {
			return nil, nil, err
		}
	}

	// Index old children by key. On duplicates the first occurrence wins
	// and the rest stay positional. Non-comparable keys cannot index the
	// maps at all; they are demoted the same way.
	oldByKey := make(map[any]int)
	for i, oldID := range old {
		n, err := t.nodes.Get(oldID)
		if err != nil {
			return nil, nil, err
		}
		key := n.config.Key()
		if key == nil {
			continue
		}
		if !comparableKey(key) {
			t.reportUnusableKey(parentID, key)
			continue
		}
		if _, dup := oldByKey[key]; dup {
			t.reportDuplicateKey(parentID, key)
			continue
		}
		oldByKey[key] = i
	}
	newKeyFirst := make(map[any]int)
	for i, cfg := range newCfgs {
		key := cfg.Key()
		if key == nil {
			continue
		}
		if !comparableKey(key) {
			t.reportUnusableKey(parentID, key)
			continue
		}
		if _, dup := newKeyFirst[key]; dup {
			t.reportDuplicateKey(parentID, key)
			continue
		}
		newKeyFirst[key] = i
	}

	claimed := make([]bool, len(old))
	match := make([]int, len(newCfgs))
	for i := range match {
		match[i] = -1
	}

	// Key matches claim their old node regardless of position.
	for i, cfg := range newCfgs {
		key := cfg.Key()
		if !comparableKey(key) || newKeyFirst[key] != i {
			continue
		}
		oi, found := oldByKey[key]
		if !found || claimed[oi] {
			continue
		}
		oldN, err := t.nodes.Get(old[oi])
		if err != nil {
			return nil, nil, err
		}
		if SameShape(oldN.config, cfg) {
			match[i] = oi
			claimed[oi] = true
		}
	}

	// Positional matches for everything still unclaimed. Demoted duplicate
	// keys fall through to here.
	for i, cfg := range newCfgs {
		if match[i] >= 0 {
			continue
		}
		if key := cfg.Key(); comparableKey(key) && newKeyFirst[key] == i {
			// A first-occurrence key with no counterpart mounts fresh.
			continue
		}
		if i >= len(old) || claimed[i] {
			continue
		}
		oldN, err := t.nodes.Get(old[i])
		if err != nil {
			return nil, nil, err
		}
		oldKey := oldN.config.Key()
		if SameShape(oldN.config, cfg) && (oldKey == nil || reflect.DeepEqual(oldKey, cfg.Key())) {
			match[i] = i
			claimed[i] = true
		}
	}

	result := make([]arena.ID, 0, len(newCfgs))
	ops := make([]DiffOp, 0, len(newCfgs))
	for i, cfg := range newCfgs {
		if oi := match[i]; oi >= 0 {
			id := old[oi]
			op, err := t.updateInPlace(id, cfg)
			if err != nil {
				return nil, nil, err
			}
			op.Index = i
			result = append(result, id)
			ops = append(ops, op)
			continue
		}

		var oldID arena.ID
		if i < len(old) && !claimed[i] {
			oldID = old[i]
			claimed[i] = true
			if _, err := t.unmountSubtree(oldID); err != nil {
				return nil, nil, err
			}
		}
		newID, err := t.mountSubtree(cfg, parentID, parentDepth+1)
		if err != nil {
			return nil, nil, err
		}
		kind := OpInsert
		if !oldID.IsNil() {
			kind = OpReplace
		}
		result = append(result, newID)
		ops = append(ops, DiffOp{Kind: kind, Index: i, ID: newID, OldID: oldID})
	}

	for i, oldID := range old {
		if claimed[i] {
			continue
		}
		if _, err := t.unmountSubtree(oldID); err != nil {
			return nil, nil, err
		}
		ops = append(ops, DiffOp{Kind: OpRemove, Index: -1, OldID: oldID})
	}
	return result, ops, nil
}

// updateInPlace swaps a matched node's config and recurses into its
// children. Builder-managed children are recomputed by the node's own
// rebuild instead.
func (t *Tree) updateInPlace(id arena.ID, cfg Config) (DiffOp, error) {
	n, err := t.nodes.Get(id)
	if err != nil {
		return DiffOp{}, err
	}
	oldCfg := n.config
	changed := !configEqual(oldCfg, cfg)
	n.config = cfg
	if sink, isSink := n.renderer.(layout.ConfigSink); isSink {
		sink.Update(cfg)
	}

	if _, isBuilder := cfg.(Builder); isBuilder {
		if changed {
			if err := t.MarkDirty(id); err != nil {
				return DiffOp{}, err
			}
		}
	} else {
		grandOld := append([]arena.ID(nil), n.children...)
		grandIDs, _, err := t.reconcileChildren(id, grandOld, cfg.ChildConfigs())
		if err != nil {
			return DiffOp{}, err
		}
		n, err = t.nodes.Get(id)
		if err != nil {
			return DiffOp{}, err
		}
		n.children = grandIDs
	}

	if changed {
		if err := t.MarkNeedsLayout(id); err != nil {
			return DiffOp{}, err
		}
		if err := t.MarkNeedsPaint(id); err != nil {
			return DiffOp{}, err
		}
		return DiffOp{Kind: OpUpdate, ID: id}, nil
	}
	return DiffOp{Kind: OpKeep, ID: id}, nil
}

func (t *Tree) reportDuplicateKey(parentID arena.ID, key any) {
	errors.Report(&errors.TreeError{
		Op:     "core.Tree.reconcileChildren",
		Kind:   errors.KindBuild,
		NodeID: uint64(parentID),
		Detail: fmt.Sprintf("duplicate identity key %v; first occurrence wins, later siblings match positionally", key),
	})
}

func (t *Tree) reportUnusableKey(parentID arena.ID, key any) {
	errors.Report(&errors.TreeError{
		Op:     "core.Tree.reconcileChildren",
		Kind:   errors.KindBuild,
		NodeID: uint64(parentID),
		Detail: fmt.Sprintf("identity key of non-comparable type %T; sibling matches positionally", key),
	})
}
