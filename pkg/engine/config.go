package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reflow-ui/reflow/pkg/graphics"
	"github.com/reflow-ui/reflow/pkg/layout"
)

// Options configures an Engine. The zero value is not usable; start from
// DefaultOptions or a loaded file.
type Options struct {
	// ViewportWidth and ViewportHeight are the root's tight constraints in
	// logical pixels.
	ViewportWidth  float64 `yaml:"viewportWidth"`
	ViewportHeight float64 `yaml:"viewportHeight"`

	// CacheCapacity bounds the layout cache entry count.
	CacheCapacity int `yaml:"cacheCapacity"`

	// TraceSamples is the frame trace ring capacity.
	TraceSamples int `yaml:"traceSamples"`

	// TraceThresholdMs marks frames slower than this as dropped in the
	// trace.
	TraceThresholdMs float64 `yaml:"traceThresholdMs"`

	// DebugAddr is the listen address for the debug server; empty disables
	// it.
	DebugAddr string `yaml:"debugAddr"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ViewportWidth:  800,
		ViewportHeight: 600,
		CacheCapacity:  layout.DefaultCacheCapacity,
		TraceSamples:   defaultTraceSamples,

		TraceThresholdMs: durationToMillis(defaultTraceThreshold),
		// DebugAddr stays empty; the debug server is opt-in.
	}
}

// LoadOptions reads options from a YAML file, filling unset fields from
// the defaults.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("load options: %w", err)
	}
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("parse options %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks the options for values the engine cannot run with.
func (o Options) Validate() error {
	if o.ViewportWidth <= 0 || o.ViewportHeight <= 0 {
		return fmt.Errorf("options: viewport %gx%g must be positive", o.ViewportWidth, o.ViewportHeight)
	}
	if o.CacheCapacity < 0 {
		return fmt.Errorf("options: cacheCapacity %d must not be negative", o.CacheCapacity)
	}
	if o.TraceSamples < 0 {
		return fmt.Errorf("options: traceSamples %d must not be negative", o.TraceSamples)
	}
	if o.TraceThresholdMs < 0 {
		return fmt.Errorf("options: traceThresholdMs %g must not be negative", o.TraceThresholdMs)
	}
	return nil
}

// Viewport returns the viewport as a size.
func (o Options) Viewport() graphics.Size {
	return graphics.Size{Width: o.ViewportWidth, Height: o.ViewportHeight}
}

// TraceThreshold returns the dropped-frame threshold as a duration.
func (o Options) TraceThreshold() time.Duration {
	return time.Duration(o.TraceThresholdMs * float64(time.Millisecond))
}
