package core

import (
	"reflect"

	"github.com/reflow-ui/reflow/pkg/arena"
	"github.com/reflow-ui/reflow/pkg/layout"
)

// Config is an immutable, value-comparable description of one node's
// desired shape. Two configs are of the same shape when their dynamic types
// match; that is the sole reuse criterion during reconciliation, unless an
// explicit identity key overrides it.
//
// Implementations should be plain value types. The reconciler compares
// configs with reflect.DeepEqual to decide whether an in-place update
// dirties layout and paint.
type Config interface {
	// Key returns an optional explicit identity key, or nil. Keys allow a
	// child to keep its node across reordering.
	Key() any
	// Arity declares the child-count contract for this node type.
	Arity() Arity
	// ChildConfigs returns the ordered child configurations.
	ChildConfigs() []Config
	// CreateRenderer constructs the runtime render instance for a newly
	// mounted node.
	CreateRenderer() layout.Renderer
}

// Builder is implemented by configurations whose children are computed at
// rebuild time rather than declared statically. When a node whose config
// implements Builder is rebuilt, BuildChildren replaces ChildConfigs as the
// source of the new child list.
type Builder interface {
	BuildChildren(ctx BuildContext) []Config
}

// BuildContext is the explicit context value threaded through child
// production. It identifies the node being rebuilt; it is never stored
// globally.
type BuildContext interface {
	// NodeID returns the id of the node being rebuilt.
	NodeID() arena.ID
	// Depth returns the node's depth in the tree.
	Depth() int
}

// SameShape reports whether two configs share a type identity. Shape is
// the sole reuse criterion during reconciliation; embedders use it to
// decide between an in-place update and a replace.
func SameShape(a, b Config) bool {
	if a == nil || b == nil {
		return false
	}
	return reflect.TypeOf(a) == reflect.TypeOf(b)
}

// comparableKey reports whether an identity key can index the match maps.
// Keys of non-comparable types (slices, maps, functions) cannot take part
// in key matching and are demoted to positional matching.
func comparableKey(key any) bool {
	return key != nil && reflect.TypeOf(key).Comparable()
}

// configEqual reports whether two configs are equal by value. Used to
// decide whether an in-place update needs fresh layout and paint.
func configEqual(a, b Config) bool {
	return reflect.DeepEqual(a, b)
}

// configTypeName returns the config's type name for diagnostics.
func configTypeName(c Config) string {
	if c == nil {
		return "<nil>"
	}
	return reflect.TypeOf(c).String()
}
