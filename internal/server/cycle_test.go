package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"slareport/internal/descriptor"
	"slareport/internal/evaluate"
	"slareport/internal/signals"
)

// dispatchCollector routes each service to a scripted behavior by name.
type dispatchCollector struct {
	byName map[string]func(ctx context.Context) (signals.Window, error)
}

func (d *dispatchCollector) FetchWindow(ctx context.Context, _ string, service descriptor.Service, start, end time.Time) (signals.Window, error) {
	fn, ok := d.byName[service.Name]
	if !ok {
		return signals.Window{Start: start, End: end, Total: 1000, Failed: 0}, nil
	}
	window, err := fn(ctx)
	if err != nil {
		return signals.Window{}, err
	}
	window.Start, window.End = start, end
	return window, nil
}

func ok(total, failed int64) func(context.Context) (signals.Window, error) {
	return func(context.Context) (signals.Window, error) {
		return signals.Window{Total: total, Failed: failed}, nil
	}
}

func alwaysUnavailable(context.Context) (signals.Window, error) {
	return signals.Window{}, &signals.UpstreamError{Err: errors.New("unavailable")}
}

func invalidReference(context.Context) (signals.Window, error) {
	return signals.Window{}, &signals.InvalidReferenceError{Resource: "gone", Err: errors.New("not found")}
}

func blockUntilCancelled(ctx context.Context) (signals.Window, error) {
	<-ctx.Done()
	return signals.Window{}, &signals.UpstreamError{Err: ctx.Err()}
}

func registryFor(d *dispatchCollector) *signals.Registry {
	registry := signals.NewRegistry()
	registry.Register(descriptor.TypeCloudRunRevision, d)
	registry.Register(descriptor.TypeStorageBucket, d)
	registry.Register(descriptor.TypeBigQueryProject, d)
	return registry
}

func threeServiceSet() descriptor.Set {
	return descriptor.Set{Projects: []descriptor.Project{{
		ID: "p1",
		Services: []descriptor.Service{
			{Name: "hello", Type: descriptor.TypeCloudRunRevision, Threshold: 99.95},
			{Name: "assets", Type: descriptor.TypeStorageBucket, Threshold: 99.9},
			{Name: "warehouse", Type: descriptor.TypeBigQueryProject, Threshold: 99},
		},
	}}}
}

func testRunner(registry *signals.Registry, deadline time.Duration) *cycleRunner {
	return &cycleRunner{
		registry:      registry,
		retry:         signals.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		window:        time.Hour,
		deadline:      deadline,
		maxConcurrent: 4,
		log:           zap.NewNop(),
		now:           func() time.Time { return time.Date(2026, 8, 23, 6, 0, 0, 0, time.UTC) },
	}
}

func TestRunAllServicesSucceed(t *testing.T) {
	dispatch := &dispatchCollector{byName: map[string]func(context.Context) (signals.Window, error){
		"hello":     ok(10000, 3),
		"assets":    ok(5000, 0),
		"warehouse": ok(200, 1),
	}}
	runner := testRunner(registryFor(dispatch), 5*time.Second)

	outcome := runner.run(context.Background(), threeServiceSet())
	if outcome.deadlineHit {
		t.Fatalf("unexpected deadline")
	}
	if len(outcome.results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(outcome.results))
	}
	// Results stay in configured order regardless of completion order.
	for i, want := range []string{"hello", "assets", "warehouse"} {
		if outcome.results[i].Service != want {
			t.Fatalf("result %d: expected %q, got %q", i, want, outcome.results[i].Service)
		}
	}
	if outcome.results[0].Verdict != evaluate.VerdictCompliant {
		t.Fatalf("expected hello COMPLIANT, got %q", outcome.results[0].Verdict)
	}
	if outcome.window.DurationSeconds != 3600 {
		t.Fatalf("expected 1h window, got %ds", outcome.window.DurationSeconds)
	}
}

func TestRunPersistentTransientFailureIsIsolated(t *testing.T) {
	dispatch := &dispatchCollector{byName: map[string]func(context.Context) (signals.Window, error){
		"hello":     ok(10000, 3),
		"assets":    alwaysUnavailable,
		"warehouse": ok(200, 1),
	}}
	runner := testRunner(registryFor(dispatch), 5*time.Second)

	outcome := runner.run(context.Background(), threeServiceSet())
	if len(outcome.results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(outcome.results))
	}
	if outcome.results[1].Verdict != evaluate.VerdictUndetermined {
		t.Fatalf("expected assets UNDETERMINED, got %q", outcome.results[1].Verdict)
	}
	if outcome.results[1].Reason != "upstream metrics unavailable" {
		t.Fatalf("unexpected reason %q", outcome.results[1].Reason)
	}
	if outcome.results[0].Verdict != evaluate.VerdictCompliant || outcome.results[2].Verdict != evaluate.VerdictCompliant {
		t.Fatalf("expected other services unaffected")
	}
	if !outcome.usable() {
		t.Fatalf("expected usable outcome")
	}
}

func TestRunInvalidReferenceReason(t *testing.T) {
	dispatch := &dispatchCollector{byName: map[string]func(context.Context) (signals.Window, error){
		"hello": invalidReference,
	}}
	runner := testRunner(registryFor(dispatch), 5*time.Second)

	outcome := runner.run(context.Background(), threeServiceSet())
	if outcome.results[0].Verdict != evaluate.VerdictUndetermined {
		t.Fatalf("expected UNDETERMINED, got %q", outcome.results[0].Verdict)
	}
	if outcome.results[0].Reason != "monitored resource no longer exists" {
		t.Fatalf("unexpected reason %q", outcome.results[0].Reason)
	}
}

func TestRunDeadlineKeepsCompletedResults(t *testing.T) {
	dispatch := &dispatchCollector{byName: map[string]func(context.Context) (signals.Window, error){
		"hello":     ok(10000, 3),
		"assets":    blockUntilCancelled,
		"warehouse": blockUntilCancelled,
	}}
	runner := testRunner(registryFor(dispatch), 150*time.Millisecond)

	outcome := runner.run(context.Background(), threeServiceSet())
	if !outcome.deadlineHit {
		t.Fatalf("expected deadline to fire")
	}
	if outcome.results[0].Verdict != evaluate.VerdictCompliant {
		t.Fatalf("expected completed result kept, got %q", outcome.results[0].Verdict)
	}
	for _, i := range []int{1, 2} {
		if outcome.results[i].Verdict != evaluate.VerdictUndetermined {
			t.Fatalf("expected pending service %d UNDETERMINED, got %q", i, outcome.results[i].Verdict)
		}
	}
	if !outcome.usable() {
		t.Fatalf("expected outcome with one real verdict to be usable")
	}
}

func TestRunDeadlineWithNothingUsable(t *testing.T) {
	dispatch := &dispatchCollector{byName: map[string]func(context.Context) (signals.Window, error){
		"hello":     blockUntilCancelled,
		"assets":    blockUntilCancelled,
		"warehouse": blockUntilCancelled,
	}}
	runner := testRunner(registryFor(dispatch), 100*time.Millisecond)

	outcome := runner.run(context.Background(), threeServiceSet())
	if !outcome.deadlineHit {
		t.Fatalf("expected deadline to fire")
	}
	if outcome.usable() {
		t.Fatalf("expected nothing usable")
	}
}

func TestRunIsolatedAcrossConcurrentCycles(t *testing.T) {
	dispatch := &dispatchCollector{byName: map[string]func(context.Context) (signals.Window, error){
		"hello":     ok(10000, 3),
		"assets":    ok(5000, 0),
		"warehouse": ok(200, 1),
	}}
	runner := testRunner(registryFor(dispatch), 5*time.Second)
	set := threeServiceSet()

	type run struct{ outcome cycleOutcome }
	first := make(chan run)
	second := make(chan run)
	go func() { first <- run{runner.run(context.Background(), set)} }()
	go func() { second <- run{runner.run(context.Background(), set)} }()

	a, b := <-first, <-second
	if len(a.outcome.results) != 3 || len(b.outcome.results) != 3 {
		t.Fatalf("expected both cycles to finish with 3 results")
	}
	if &a.outcome.results[0] == &b.outcome.results[0] {
		t.Fatalf("cycles must not share result storage")
	}
}
