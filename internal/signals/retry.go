package signals

import (
	"context"
	"errors"
	"time"

	"slareport/internal/descriptor"
)

// RetryPolicy retries transient collector failures with exponential backoff.
// Retries stay inside the per-service budget; whole-cycle retry belongs to
// the external scheduler.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond}
}

// Fetch runs the collector until it succeeds, fails permanently, exhausts
// attempts, or the context expires.
func (p RetryPolicy) Fetch(ctx context.Context, collector Collector, projectID string, service descriptor.Service, start, end time.Time) (Window, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		window, err := collector.FetchWindow(ctx, projectID, service, start, end)
		if err == nil {
			return window, nil
		}
		var invalid *InvalidReferenceError
		if errors.As(err, &invalid) {
			return Window{}, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Window{}, &UpstreamError{Err: ctx.Err()}
		case <-timer.C:
		}
		delay *= 2
	}
	return Window{}, lastErr
}
