package core

// State is the lifecycle state of a node. Nodes are constructed Unmounted,
// enter the tree via mount, cycle between Mounted and Dirty across rebuilds,
// pass through Reassembling during hot reconstruction, and leave the tree
// via unmount. Unmounted is both entry and exit; there is no terminal state.
type State uint8

const (
	// StateUnmounted means the node is not in the tree. It retains its
	// configuration but has no live renderer and no tree position.
	StateUnmounted State = iota
	// StateMounted means the node is in the tree with a clean build.
	StateMounted
	// StateDirty means the node is mounted and scheduled for rebuild.
	StateDirty
	// StateReassembling means the node is mounted and undergoing hot
	// reconstruction of its renderer from retained configuration.
	StateReassembling
)

func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "Unmounted"
	case StateMounted:
		return "Mounted"
	case StateDirty:
		return "Dirty"
	case StateReassembling:
		return "Reassembling"
	default:
		return "Invalid"
	}
}

// InTree reports whether the state is one of the mounted-family states.
// Tree position and the live renderer exist exactly in these states.
func (s State) InTree() bool {
	return s == StateMounted || s == StateDirty || s == StateReassembling
}
