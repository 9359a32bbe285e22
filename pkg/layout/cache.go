package layout

import (
	"github.com/reflow-ui/reflow/pkg/arena"
	"github.com/reflow-ui/reflow/pkg/graphics"
)

// DefaultCacheCapacity bounds the cache when no capacity is configured.
const DefaultCacheCapacity = 1024

// evictionSample is how many entries an eviction inspects. Sampling a few
// random entries and dropping the least-used one approximates LFU without
// a global frequency ordering.
const evictionSample = 5

// cacheEntry is one memoized layout result.
type cacheEntry struct {
	size graphics.Size
	freq uint32
}

// Cache memoizes layout results keyed by (node id, normalized constraints).
//
// The cache is a pure performance optimization: removing it changes
// recomputation counts, never observable sizes. Staleness is governed
// solely by dirty invalidation: a node whose layout input changed is
// invalidated explicitly; entries have no TTL.
type Cache struct {
	entries  map[arena.ID]map[Constraints]*cacheEntry
	count    int
	capacity int
	hits     uint64
	misses   uint64
}

// NewCache creates a cache bounded to capacity entries. A non-positive
// capacity selects DefaultCacheCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		entries:  make(map[arena.ID]map[Constraints]*cacheEntry),
		capacity: capacity,
	}
}

// Lookup returns the memoized size for (id, constraints) if present.
func (c *Cache) Lookup(id arena.ID, constraints Constraints) (graphics.Size, bool) {
	byConstraints := c.entries[id]
	if byConstraints == nil {
		c.misses++
		return graphics.Size{}, false
	}
	entry, ok := byConstraints[constraints.Normalize()]
	if !ok {
		c.misses++
		return graphics.Size{}, false
	}
	entry.freq++
	c.hits++
	return entry.size, true
}

// Store memoizes a layout result, evicting if the cache is at capacity.
func (c *Cache) Store(id arena.ID, constraints Constraints, size graphics.Size) {
	key := constraints.Normalize()
	byConstraints := c.entries[id]
	if byConstraints == nil {
		byConstraints = make(map[Constraints]*cacheEntry)
		c.entries[id] = byConstraints
	}
	if existing, ok := byConstraints[key]; ok {
		existing.size = size
		return
	}
	if c.count >= c.capacity {
		c.evictOne()
	}
	byConstraints[key] = &cacheEntry{size: size, freq: 1}
	c.count++
}

// Invalidate drops every entry for the node. Ancestors are not touched;
// they recompute naturally when they re-query the child's size.
func (c *Cache) Invalidate(id arena.ID) {
	byConstraints, ok := c.entries[id]
	if !ok {
		return
	}
	c.count -= len(byConstraints)
	delete(c.entries, id)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.count
}

// Hits returns the number of successful lookups since creation.
func (c *Cache) Hits() uint64 {
	return c.hits
}

// Misses returns the number of failed lookups since creation.
func (c *Cache) Misses() uint64 {
	return c.misses
}

// evictOne removes the least-frequently-used entry among a small random
// sample. Go's randomized map iteration provides the sampling. Surviving
// sampled entries have their frequency halved so long-lived entries cannot
// become unevictable.
func (c *Cache) evictOne() {
	var (
		victimID   arena.ID
		victimKey  Constraints
		victimFreq uint32
		sampled    int
		found      bool
	)
	for id, byConstraints := range c.entries {
		for key, entry := range byConstraints {
			if !found || entry.freq < victimFreq {
				victimID, victimKey, victimFreq = id, key, entry.freq
				found = true
			} else {
				entry.freq /= 2
			}
			sampled++
			if sampled >= evictionSample {
				break
			}
		}
		if sampled >= evictionSample {
			break
		}
	}
	if !found {
		return
	}
	byConstraints := c.entries[victimID]
	delete(byConstraints, victimKey)
	if len(byConstraints) == 0 {
		delete(c.entries, victimID)
	}
	c.count--
}
