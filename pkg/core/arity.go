package core

import "fmt"

// Unbounded marks an arity with no upper child limit.
const Unbounded = -1

// Arity declares how many children a node type may own. The contract is
// fixed per configuration type and is enforced at mount and again at every
// reconciliation commit. A violation aborts the operation; silently
// truncating or padding children would hide authoring bugs.
type Arity struct {
	Min int
	Max int // Unbounded for no upper limit
}

// The common arity classes.
var (
	// Leaf admits no children (text, image, spacer).
	Leaf = Arity{Min: 0, Max: 0}
	// Optional admits zero or one child (box, padding).
	Optional = Arity{Min: 0, Max: 1}
	// Single requires exactly one child (wrappers).
	Single = Arity{Min: 1, Max: 1}
	// Variable admits any number of children (rows, columns, lists).
	Variable = Arity{Min: 0, Max: Unbounded}
)

// Exact returns an arity requiring exactly n children.
func Exact(n int) Arity {
	return Arity{Min: n, Max: n}
}

// AtLeast returns an arity requiring n or more children.
func AtLeast(n int) Arity {
	return Arity{Min: n, Max: Unbounded}
}

// Range returns an arity admitting between min and max children inclusive.
func Range(min, max int) Arity {
	return Arity{Min: min, Max: max}
}

// Admits reports whether a child count satisfies the contract.
func (a Arity) Admits(count int) bool {
	if count < 0 || count < a.Min {
		return false
	}
	return a.Max == Unbounded || count <= a.Max
}

func (a Arity) String() string {
	switch {
	case a == Leaf:
		return "Leaf"
	case a == Optional:
		return "Optional"
	case a == Single:
		return "Single"
	case a == Variable:
		return "Variable"
	case a.Max == Unbounded:
		return fmt.Sprintf("AtLeast(%d)", a.Min)
	case a.Min == a.Max:
		return fmt.Sprintf("Exact(%d)", a.Min)
	default:
		return fmt.Sprintf("Range(%d,%d)", a.Min, a.Max)
	}
}
