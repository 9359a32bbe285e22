// Package errors provides structured error handling for the reflow framework.
package errors

import (
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindStale indicates an arena lookup with an outdated generation.
	KindStale
	// KindArity indicates a child count outside a node type's declared bounds.
	KindArity
	// KindState indicates an operation invoked in an illegal lifecycle state.
	KindState
	// KindBuild indicates a failure while rebuilding a node's children.
	KindBuild
	// KindPanic indicates a recovered panic.
	KindPanic
	// KindInit indicates an initialization or configuration error.
	KindInit
)

func (k ErrorKind) String() string {
	switch k {
	case KindStale:
		return "stale"
	case KindArity:
		return "arity"
	case KindState:
		return "state"
	case KindBuild:
		return "build"
	case KindPanic:
		return "panic"
	case KindInit:
		return "init"
	default:
		return "unknown"
	}
}

// TreeError represents a structured error raised by the tree core. Invariant
// failures carry the node id and type so diagnostics can identify the exact
// contract that was violated.
type TreeError struct {
	// Op is the operation that failed (e.g., "core.Tree.Mount").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// NodeID is the arena handle of the offending node, if known.
	NodeID uint64
	// NodeType is the configuration type name of the offending node.
	NodeType string
	// Detail describes the violated contract in one line.
	Detail string
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *TreeError) Error() string {
	switch {
	case e.NodeID != 0 && e.NodeType != "":
		return fmt.Sprintf("%s [%s] node=%d type=%s: %s", e.Op, e.Kind, e.NodeID, e.NodeType, e.detail())
	case e.NodeID != 0:
		return fmt.Sprintf("%s [%s] node=%d: %s", e.Op, e.Kind, e.NodeID, e.detail())
	default:
		return fmt.Sprintf("%s [%s]: %s", e.Op, e.Kind, e.detail())
	}
}

func (e *TreeError) detail() string {
	if e.Detail != "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unspecified"
}

func (e *TreeError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *TreeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	tree, ok := err.(*TreeError)
	return ok && tree.Kind == kind
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "engine.paint").
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// BuildError represents a failure during a node rebuild. It is reported
// through the handler and, unlike TreeError, does not abort the frame:
// the offending subtree keeps its previous children.
type BuildError struct {
	// NodeID is the arena handle of the node whose rebuild failed.
	NodeID uint64
	// NodeType is the configuration type name of the node.
	NodeType string
	// Recovered is the panic value (nil for regular errors).
	Recovered any
	// Err is the underlying error (nil for panics).
	Err error
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *BuildError) Error() string {
	if e.Recovered != nil {
		return fmt.Sprintf("panic rebuilding node %d (%s): %v", e.NodeID, e.NodeType, e.Recovered)
	}
	if e.Err != nil {
		return fmt.Sprintf("error rebuilding node %d (%s): %v", e.NodeID, e.NodeType, e.Err)
	}
	return fmt.Sprintf("unknown error rebuilding node %d (%s)", e.NodeID, e.NodeType)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// ErrorHandler receives errors reported by the framework.
type ErrorHandler interface {
	// HandleError is called when a structured error occurs.
	HandleError(err *TreeError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
	// HandleBuildError is called when a node rebuild fails.
	HandleBuildError(err *BuildError)
}
