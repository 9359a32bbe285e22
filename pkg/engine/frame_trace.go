package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTraceSamples   = 240
	defaultTraceThreshold = 16667 * time.Microsecond
)

// FramePhaseTimings captures time spent in each frame phase (ms).
type FramePhaseTimings struct {
	BuildMs  float64 `json:"buildMs"`
	LayoutMs float64 `json:"layoutMs"`
	PaintMs  float64 `json:"paintMs"`
}

// FrameCounts captures per-frame workload indicators.
type FrameCounts struct {
	Rebuilds    int `json:"rebuilds"`
	Layouts     int `json:"layouts"`
	Paints      int `json:"paints"`
	NodeCount   int `json:"nodeCount"`
	CacheHits   int `json:"cacheHits"`
	CacheMisses int `json:"cacheMisses"`
}

// FrameSample is a single frame trace sample.
type FrameSample struct {
	Seq       uint64            `json:"seq"`
	Timestamp int64             `json:"ts"`
	FrameMs   float64           `json:"frameMs"`
	Phases    FramePhaseTimings `json:"phases"`
	Counts    FrameCounts       `json:"counts"`
}

// FrameTimeline is the debug server response shape.
type FrameTimeline struct {
	Samples       []FrameSample `json:"samples"`
	DroppedFrames int           `json:"droppedFrames"`
	ThresholdMs   float64       `json:"thresholdMs"`
}

// FrameTrace stores recent frame samples in a ring buffer and fans them
// out to live subscribers.
type FrameTrace struct {
	mu        sync.RWMutex
	samples   []FrameSample
	index     int
	count     int
	dropped   int
	threshold time.Duration

	subscribers map[uuid.UUID]chan FrameSample
}

// NewFrameTrace creates a trace ring of the given capacity.
func NewFrameTrace(capacity int, threshold time.Duration) *FrameTrace {
	if capacity <= 0 {
		capacity = defaultTraceSamples
	}
	if threshold <= 0 {
		threshold = defaultTraceThreshold
	}
	return &FrameTrace{
		samples:     make([]FrameSample, capacity),
		threshold:   threshold,
		subscribers: make(map[uuid.UUID]chan FrameSample),
	}
}

// Add records a frame sample, updates the dropped count and notifies
// subscribers. Slow subscribers lose samples rather than stalling frames.
func (t *FrameTrace) Add(sample FrameSample, frameDuration time.Duration) {
	t.mu.Lock()
	t.samples[t.index] = sample
	t.index = (t.index + 1) % len(t.samples)
	if t.count < len(t.samples) {
		t.count++
	}
	if frameDuration > t.threshold {
		t.dropped++
	}
	for _, ch := range t.subscribers {
		select {
		case ch <- sample:
		default:
		}
	}
	t.mu.Unlock()
}

// Snapshot returns a chronological copy of samples and stats.
func (t *FrameTrace) Snapshot() FrameTimeline {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.count == 0 {
		return FrameTimeline{ThresholdMs: durationToMillis(t.threshold)}
	}

	result := make([]FrameSample, t.count)
	if t.count < len(t.samples) {
		copy(result, t.samples[:t.count])
	} else {
		copy(result, t.samples[t.index:])
		copy(result[len(t.samples)-t.index:], t.samples[:t.index])
	}
	return FrameTimeline{
		Samples:       result,
		DroppedFrames: t.dropped,
		ThresholdMs:   durationToMillis(t.threshold),
	}
}

// Subscribe registers a live sample stream. The returned id releases the
// stream via Unsubscribe.
func (t *FrameTrace) Subscribe() (uuid.UUID, <-chan FrameSample) {
	id := uuid.New()
	ch := make(chan FrameSample, 16)
	t.mu.Lock()
	t.subscribers[id] = ch
	t.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a live stream and closes its channel.
func (t *FrameTrace) Unsubscribe(id uuid.UUID) {
	t.mu.Lock()
	ch, ok := t.subscribers[id]
	if ok {
		delete(t.subscribers, id)
	}
	t.mu.Unlock()
	if ok {
		close(ch)
	}
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
