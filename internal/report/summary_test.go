package report

import (
	"strings"
	"testing"
	"time"

	"slareport/internal/descriptor"
	"slareport/internal/signals"
)

func TestSummarizeMarksUndetermined(t *testing.T) {
	set := testSet()
	results := evalAll(set, map[string]signals.Window{
		"hello":  {Total: 10000, Failed: 3},
		"assets": {Total: 5000, Failed: 20}, // 99.6%, breaches 99.9
	})

	r := NewBuilder().Build(set, results, testWindow(), time.Unix(1755921600, 0).UTC())
	summary := r.Summary
	if !strings.Contains(summary, "Breaches:") {
		t.Fatalf("expected breaches section:\n%s", summary)
	}
	if !strings.Contains(summary, "UNDETERMINED (upstream unavailable)") {
		t.Fatalf("expected undetermined entry with reason:\n%s", summary)
	}
	if !strings.Contains(summary, "Project p1: BREACHED") {
		t.Fatalf("expected project verdict line:\n%s", summary)
	}
}

func TestSummarizeCompliantHasNoBreachSection(t *testing.T) {
	set := descriptor.Set{Projects: []descriptor.Project{{
		ID:       "p1",
		Services: []descriptor.Service{{Name: "hello", Type: descriptor.TypeCloudRunRevision, Threshold: 99.95}},
	}}}
	results := evalAll(set, map[string]signals.Window{"hello": {Total: 10000, Failed: 0}})

	r := NewBuilder().Build(set, results, testWindow(), time.Unix(1755921600, 0).UTC())
	if strings.Contains(r.Summary, "Breaches:") {
		t.Fatalf("unexpected breaches section:\n%s", r.Summary)
	}
	if !strings.Contains(r.Summary, "hello: COMPLIANT at 100.0000%") {
		t.Fatalf("expected compliant line:\n%s", r.Summary)
	}
}
