// Package report assembles evaluation results into an immutable compliance
// report.
package report

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"slareport/internal/descriptor"
	"slareport/internal/evaluate"
)

const SchemaVersion = "1.0"

// Status is the report-level classification. Unlike a per-project verdict,
// missing data shows up as DEGRADED rather than UNDETERMINED.
type Status string

const (
	StatusCompliant Status = "COMPLIANT"
	StatusDegraded  Status = "DEGRADED"
	StatusBreached  Status = "BREACHED"
)

type Window struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds int64     `json:"durationSeconds"`
}

type ProjectReport struct {
	ID      string            `json:"id"`
	Status  evaluate.Verdict  `json:"status"`
	Results []evaluate.Result `json:"results"`
}

// Report is created once per cycle and never mutated afterwards, so
// historical reports can be compared byte for byte.
type Report struct {
	SchemaVersion string          `json:"schemaVersion"`
	ID            string          `json:"id"`
	GeneratedAt   time.Time       `json:"generatedAt"`
	Window        Window          `json:"window"`
	Status        Status          `json:"status"`
	Projects      []ProjectReport `json:"projects"`
	Summary       string          `json:"summary"`
}

// Builder assigns report ids. The counter is monotonic across the process
// lifetime, so two reports generated within the same second still get
// distinct ids when the scheduler retries quickly.
type Builder struct {
	counter atomic.Uint64
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build aggregates results into a report. Given identical inputs and
// timestamp the content is identical except for the id's counter component.
// Results are grouped under their project in configured order; every
// configured service appears exactly once.
func (b *Builder) Build(set descriptor.Set, results []evaluate.Result, window Window, generatedAt time.Time) Report {
	byProject := map[string][]evaluate.Result{}
	for _, result := range results {
		byProject[result.ProjectID] = append(byProject[result.ProjectID], result)
	}

	status := StatusCompliant
	sawUndetermined := false
	projects := make([]ProjectReport, 0, len(set.Projects))
	for _, project := range set.Projects {
		grouped := byProject[project.ID]
		ordered := make([]evaluate.Result, 0, len(project.Services))
		for _, service := range project.Services {
			for _, result := range grouped {
				if result.Service == service.Name {
					ordered = append(ordered, result)
					break
				}
			}
		}
		for _, result := range ordered {
			switch result.Verdict {
			case evaluate.VerdictBreached:
				status = StatusBreached
			case evaluate.VerdictUndetermined:
				sawUndetermined = true
			}
		}
		projects = append(projects, ProjectReport{
			ID:      project.ID,
			Status:  evaluate.ProjectVerdict(ordered),
			Results: ordered,
		})
	}
	if status == StatusCompliant && sawUndetermined {
		status = StatusDegraded
	}

	r := Report{
		SchemaVersion: SchemaVersion,
		ID:            fmt.Sprintf("%d-%d", generatedAt.Unix(), b.counter.Add(1)),
		GeneratedAt:   generatedAt,
		Window:        window,
		Status:        status,
		Projects:      projects,
	}
	r.Summary = Summarize(r)
	return r
}

// Breaches returns the breached results ranked by magnitude, largest
// shortfall first.
func Breaches(r Report) []evaluate.Result {
	var breaches []evaluate.Result
	for _, project := range r.Projects {
		for _, result := range project.Results {
			if result.Verdict == evaluate.VerdictBreached {
				breaches = append(breaches, result)
			}
		}
	}
	sort.Slice(breaches, func(i, j int) bool {
		mi, mj := *breaches[i].Margin, *breaches[j].Margin
		if mi == mj {
			if breaches[i].ProjectID == breaches[j].ProjectID {
				return breaches[i].Service < breaches[j].Service
			}
			return breaches[i].ProjectID < breaches[j].ProjectID
		}
		return mi < mj
	})
	return breaches
}
