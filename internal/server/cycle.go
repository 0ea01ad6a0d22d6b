package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"slareport/internal/descriptor"
	"slareport/internal/evaluate"
	"slareport/internal/report"
	"slareport/internal/signals"
)

// Phase names the steps of one trigger invocation, logged for triage.
type Phase string

const (
	PhaseReceived   Phase = "RECEIVED"
	PhaseValidating Phase = "VALIDATING"
	PhaseEvaluating Phase = "EVALUATING"
	PhaseBuilding   Phase = "BUILDING"
	PhaseResponding Phase = "RESPONDING"
	PhaseFailed     Phase = "FAILED"
)

const pendingReason = "still pending at cycle deadline"

// cycleRunner fans an evaluation cycle out across the configured services.
// Every run allocates its own result set; concurrent cycles share nothing
// mutable.
type cycleRunner struct {
	registry      *signals.Registry
	retry         signals.RetryPolicy
	window        time.Duration
	deadline      time.Duration
	maxConcurrent int64
	log           *zap.Logger
	now           func() time.Time
}

type cycleOutcome struct {
	results     []evaluate.Result
	window      report.Window
	deadlineHit bool
}

// usable reports whether at least one service produced a determined verdict.
func (o cycleOutcome) usable() bool {
	for _, result := range o.results {
		if result.Verdict != evaluate.VerdictUndetermined {
			return true
		}
	}
	return false
}

type fetchJob struct {
	idx       int
	projectID string
	service   descriptor.Service
}

// run evaluates every configured service and returns when all finished or
// the cycle deadline fired, whichever comes first. Services still pending at
// the deadline stay UNDETERMINED; completed results are kept.
func (c *cycleRunner) run(parent context.Context, set descriptor.Set) cycleOutcome {
	ctx, cancel := context.WithTimeout(parent, c.deadline)
	defer cancel()

	end := c.now().UTC()
	start := end.Add(-c.window)

	var jobs []fetchJob
	results := make([]evaluate.Result, 0, set.Len())
	for _, project := range set.Projects {
		for _, service := range project.Services {
			jobs = append(jobs, fetchJob{idx: len(results), projectID: project.ID, service: service})
			results = append(results, evaluate.Undetermined(project.ID, service, pendingReason))
		}
	}

	var mu sync.Mutex
	sem := semaphore.NewWeighted(c.maxConcurrent)
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, job := range jobs {
			wg.Add(1)
			go func(job fetchJob) {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)
				result := c.evaluateOne(ctx, job, start, end)
				mu.Lock()
				results[job.idx] = result
				mu.Unlock()
			}(job)
		}
		wg.Wait()
		close(done)
	}()

	deadlineHit := false
	select {
	case <-done:
	case <-ctx.Done():
		deadlineHit = true
	}

	// Stragglers may still be writing their slots; snapshot under the lock
	// so the outcome is fixed from here on.
	mu.Lock()
	snapshot := make([]evaluate.Result, len(results))
	copy(snapshot, results)
	mu.Unlock()

	return cycleOutcome{
		results: snapshot,
		window: report.Window{
			Start:           start,
			End:             end,
			DurationSeconds: int64(end.Sub(start).Seconds()),
		},
		deadlineHit: deadlineHit,
	}
}

// evaluateOne isolates one service's fetch and evaluation. Failures are
// downgraded to UNDETERMINED so they never abort the rest of the cycle.
func (c *cycleRunner) evaluateOne(ctx context.Context, job fetchJob, start, end time.Time) evaluate.Result {
	fields := []zap.Field{
		zap.String("project", job.projectID),
		zap.String("service", job.service.Name),
		zap.String("type", string(job.service.Type)),
	}

	collector, err := c.registry.Collector(job.service.Type)
	if err != nil {
		c.log.Error("no collector for service type", append(fields, zap.Error(err))...)
		return evaluate.Undetermined(job.projectID, job.service, "no collector for service type")
	}

	window, err := c.retry.Fetch(ctx, collector, job.projectID, job.service, start, end)
	if err != nil {
		var invalid *signals.InvalidReferenceError
		if errors.As(err, &invalid) {
			collectorFailures.WithLabelValues("invalid_reference").Inc()
			c.log.Warn("monitored resource reference is invalid", append(fields, zap.Error(err))...)
			return evaluate.Undetermined(job.projectID, job.service, "monitored resource no longer exists")
		}
		collectorFailures.WithLabelValues("transient").Inc()
		c.log.Warn("upstream metrics unavailable after retries", append(fields, zap.Error(err))...)
		return evaluate.Undetermined(job.projectID, job.service, "upstream metrics unavailable")
	}

	return evaluate.Evaluate(job.projectID, job.service, window)
}
