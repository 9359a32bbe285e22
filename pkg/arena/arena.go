// Package arena provides stable-id storage for tree nodes with slot reuse
// and staleness detection.
//
// An ID remains valid until its node is removed; removal bumps the slot's
// generation counter so a retained ID can never alias a later occupant of
// the same slot. Lookups with an outdated generation fail with a distinct
// stale error instead of returning the wrong node.
package arena

import (
	"container/heap"
	"fmt"

	"github.com/reflow-ui/reflow/pkg/errors"
)

// ID is a stable handle into an Arena. The low 32 bits hold the slot index
// plus one (so the zero ID is never a valid handle) and the high 32 bits
// hold the slot generation recorded at insertion.
type ID uint64

// NilID is the null handle. It never resolves to a node.
const NilID ID = 0

func makeID(index int, generation uint32) ID {
	return ID(uint64(generation)<<32 | uint64(uint32(index)+1))
}

// IsNil reports whether the handle is the null sentinel.
func (id ID) IsNil() bool {
	return id == NilID
}

// Index returns the slot index encoded in the handle.
func (id ID) Index() int {
	return int(uint32(id)) - 1
}

// Generation returns the generation encoded in the handle.
func (id ID) Generation() uint32 {
	return uint32(id >> 32)
}

func (id ID) String() string {
	if id.IsNil() {
		return "ID(nil)"
	}
	return fmt.Sprintf("ID(%d@%d)", id.Index(), id.Generation())
}

// slot holds one arena entry. The generation survives removal so stale
// handles can be told apart from the slot's next occupant.
type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Arena is a generational slot store. The zero value is ready to use.
// Arena is not safe for concurrent mutation; the frame coordinator is the
// single structural owner during a frame.
type Arena[T any] struct {
	slots []slot[T]
	free  freeHeap
	count int
}

// Insert stores a value and returns its handle. The lowest free slot is
// reused first so indices stay dense; finding it costs O(log f) on the
// free count, O(1) when the arena has no holes.
func (a *Arena[T]) Insert(value T) ID {
	if a.free.Len() > 0 {
		index := heap.Pop(&a.free).(int)
		s := &a.slots[index]
		s.value = value
		s.occupied = true
		a.count++
		return makeID(index, s.generation)
	}
	a.slots = append(a.slots, slot[T]{value: value, occupied: true})
	a.count++
	return makeID(len(a.slots)-1, 0)
}

// Remove deletes the entry for id and returns its value. The slot's
// generation is bumped exactly once, invalidating every copy of id.
func (a *Arena[T]) Remove(id ID) (T, error) {
	var zero T
	s, err := a.resolve(id, "arena.Remove")
	if err != nil {
		return zero, err
	}
	value := s.value
	s.value = zero
	s.occupied = false
	s.generation++
	heap.Push(&a.free, id.Index())
	a.count--
	return value, nil
}

// Get returns a pointer to the entry for id. The pointer is valid until
// the next Insert or Remove.
func (a *Arena[T]) Get(id ID) (*T, error) {
	s, err := a.resolve(id, "arena.Get")
	if err != nil {
		return nil, err
	}
	return &s.value, nil
}

// Contains reports whether id currently resolves to a live entry.
func (a *Arena[T]) Contains(id ID) bool {
	_, err := a.resolve(id, "arena.Contains")
	return err == nil
}

// Len returns the number of live entries.
func (a *Arena[T]) Len() int {
	return a.count
}

// Each calls fn for every live entry in slot order. Iteration stops if fn
// returns false. The arena must not be mutated during iteration.
func (a *Arena[T]) Each(fn func(ID, *T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.occupied {
			continue
		}
		if !fn(makeID(i, s.generation), &s.value) {
			return
		}
	}
}

// resolve maps a handle to its slot, distinguishing stale handles (slot
// reused or freed) from never-valid ones.
func (a *Arena[T]) resolve(id ID, op string) (*slot[T], error) {
	if id.IsNil() {
		return nil, &errors.TreeError{
			Op:     op,
			Kind:   errors.KindStale,
			Detail: "nil id",
		}
	}
	index := id.Index()
	if index < 0 || index >= len(a.slots) {
		return nil, &errors.TreeError{
			Op:     op,
			Kind:   errors.KindStale,
			NodeID: uint64(id),
			Detail: fmt.Sprintf("index %d out of range", index),
		}
	}
	s := &a.slots[index]
	if !s.occupied || s.generation != id.Generation() {
		return nil, &errors.TreeError{
			Op:     op,
			Kind:   errors.KindStale,
			NodeID: uint64(id),
			Detail: fmt.Sprintf("generation %d does not match slot generation %d", id.Generation(), s.generation),
		}
	}
	return s, nil
}

// freeHeap is a min-heap of free slot indices.
type freeHeap []int

func (h freeHeap) Len() int           { return len(h) }
func (h freeHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h freeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *freeHeap) Push(x any)        { *h = append(*h, x.(int)) }

func (h *freeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
