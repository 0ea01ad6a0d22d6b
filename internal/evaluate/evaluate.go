// Package evaluate reduces a signal window to a compliance verdict.
package evaluate

import (
	"math"

	"slareport/internal/descriptor"
	"slareport/internal/signals"
)

type Verdict string

const (
	VerdictCompliant    Verdict = "COMPLIANT"
	VerdictBreached     Verdict = "BREACHED"
	VerdictUndetermined Verdict = "UNDETERMINED"
)

// Result is one service's outcome for one cycle. It is created once and not
// mutated afterwards; Percentage and Margin are nil when undetermined.
type Result struct {
	ProjectID  string                 `json:"project"`
	Service    string                 `json:"service"`
	Type       descriptor.ServiceType `json:"type"`
	Threshold  float64                `json:"threshold"`
	Verdict    Verdict                `json:"verdict"`
	Percentage *float64               `json:"percentage,omitempty"`
	Margin     *float64               `json:"margin,omitempty"`
	Window     *signals.Window        `json:"window,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
}

const precisionScale = 1e4

// roundFixed rounds half-to-even at 4 decimal places, so repeated boundary
// values do not drift systematically in either direction.
func roundFixed(value float64) float64 {
	return math.RoundToEven(value*precisionScale) / precisionScale
}

// basisPoints converts a percentage to an integer at the fixed precision.
// Verdicts compare integers so float representation cannot flip a boundary.
func basisPoints(value float64) int64 {
	return int64(math.RoundToEven(value * precisionScale))
}

// Evaluate is a pure function: identical inputs yield identical results.
// A percentage exactly equal to the threshold is compliant; the threshold is
// an inclusive floor.
func Evaluate(projectID string, service descriptor.Service, window signals.Window) Result {
	result := Result{
		ProjectID: projectID,
		Service:   service.Name,
		Type:      service.Type,
		Threshold: service.Threshold,
		Window:    &window,
	}
	if window.Undetermined() {
		result.Verdict = VerdictUndetermined
		result.Reason = "no observed units in window"
		return result
	}

	failed := window.Failed
	if failed > window.Total {
		failed = window.Total
	}
	percentage := roundFixed((1 - float64(failed)/float64(window.Total)) * 100)
	margin := percentage - service.Threshold

	result.Percentage = &percentage
	result.Margin = &margin
	if basisPoints(percentage) >= basisPoints(service.Threshold) {
		result.Verdict = VerdictCompliant
	} else {
		result.Verdict = VerdictBreached
	}
	return result
}

// Undetermined builds the result for a service whose signal could not be
// fetched. The service still appears exactly once in the report.
func Undetermined(projectID string, service descriptor.Service, reason string) Result {
	return Result{
		ProjectID: projectID,
		Service:   service.Name,
		Type:      service.Type,
		Threshold: service.Threshold,
		Verdict:   VerdictUndetermined,
		Reason:    reason,
	}
}
