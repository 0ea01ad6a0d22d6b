// Package signals fetches raw availability counts for configured services.
// One collector variant exists per service type; variants are registered in a
// lookup keyed by the type tag.
package signals

import (
	"context"
	"fmt"
	"time"

	"slareport/internal/descriptor"
)

// Window is the raw signal for one service over one time range. It is
// produced fresh per evaluation and never cached across cycles.
type Window struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Total  int64     `json:"total"`
	Failed int64     `json:"failed"`
}

// Undetermined reports whether the window carries enough data to judge
// compliance. A window with no observed units is neither 100% nor 0%
// compliant.
func (w Window) Undetermined() bool {
	return w.Total == 0
}

// Collector fetches the signal window for a single service. Implementations
// must be safe for concurrent use; distinct services within a cycle are
// fetched in parallel.
type Collector interface {
	FetchWindow(ctx context.Context, projectID string, service descriptor.Service, start, end time.Time) (Window, error)
}

// UpstreamError marks a transient collector failure. The caller may retry
// with backoff inside the per-service budget.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream unavailable: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// InvalidReferenceError marks a permanent collector failure: the monitored
// resource no longer exists or cannot be read. Not retryable; the service is
// reported UNDETERMINED.
type InvalidReferenceError struct {
	Resource string
	Err      error
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid service reference %q: %v", e.Resource, e.Err)
}

func (e *InvalidReferenceError) Unwrap() error { return e.Err }

// Registry maps service type tags to collector variants. Adding a monitored
// resource type means registering a variant here.
type Registry struct {
	collectors map[descriptor.ServiceType]Collector
}

func NewRegistry() *Registry {
	return &Registry{collectors: map[descriptor.ServiceType]Collector{}}
}

func (r *Registry) Register(t descriptor.ServiceType, c Collector) {
	r.collectors[t] = c
}

func (r *Registry) Collector(t descriptor.ServiceType) (Collector, error) {
	c, ok := r.collectors[t]
	if !ok {
		return nil, fmt.Errorf("no collector registered for service type %q", t)
	}
	return c, nil
}

func (r *Registry) Types() int {
	return len(r.collectors)
}
