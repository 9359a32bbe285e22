// Package core implements the reconciliation and lifecycle heart of the
// framework: the node tree, the per-node lifecycle state machine, the arity
// contract, and the child-list reconciler.
//
// A Tree converts immutable Config values into mounted nodes stored in a
// generational arena. External collaborators mark nodes dirty; the frame
// coordinator drains the BuildOwner's worklist, rebuilding dirty nodes by
// diffing their existing children against freshly produced child
// configurations. Structural mutation (mount, unmount, reorder) happens only
// on the coordinator's goroutine; concurrent callers submit work through
// queues, never by touching the tree directly.
package core
