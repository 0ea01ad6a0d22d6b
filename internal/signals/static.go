package signals

import (
	"context"
	"time"

	"slareport/internal/descriptor"
)

// StaticCollector returns a fixed signal for every service. It backs the
// "static" adapter mode used for local development and smoke tests, where no
// Cloud Monitoring credentials are available.
type StaticCollector struct {
	Total  int64
	Failed int64
}

func (c *StaticCollector) FetchWindow(_ context.Context, _ string, _ descriptor.Service, start, end time.Time) (Window, error) {
	failed := c.Failed
	if failed > c.Total {
		failed = c.Total
	}
	return Window{Start: start, End: end, Total: c.Total, Failed: failed}, nil
}

// NewStaticRegistry registers the same fixed collector for every known type.
func NewStaticRegistry(total, failed int64) *Registry {
	collector := &StaticCollector{Total: total, Failed: failed}
	registry := NewRegistry()
	registry.Register(descriptor.TypeCloudRunRevision, collector)
	registry.Register(descriptor.TypeStorageBucket, collector)
	registry.Register(descriptor.TypeBigQueryProject, collector)
	return registry
}
