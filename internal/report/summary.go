package report

import (
	"fmt"
	"strings"
	"time"

	"slareport/internal/evaluate"
)

// Summarize renders the human-readable companion to the machine report.
// Breaches come first, ranked by shortfall.
func Summarize(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Compliance report %s: %s\n", r.ID, r.Status)
	fmt.Fprintf(&b, "Window: %s to %s (%s)\n",
		r.Window.Start.Format(time.RFC3339),
		r.Window.End.Format(time.RFC3339),
		(time.Duration(r.Window.DurationSeconds) * time.Second).String())

	breaches := Breaches(r)
	if len(breaches) > 0 {
		fmt.Fprintf(&b, "\nBreaches:\n")
		for _, result := range breaches {
			fmt.Fprintf(&b, "- %s/%s: %.4f%% against %.4f%% (margin %.4f)\n",
				result.ProjectID, result.Service, *result.Percentage, result.Threshold, *result.Margin)
		}
	}

	for _, project := range r.Projects {
		fmt.Fprintf(&b, "\nProject %s: %s\n", project.ID, project.Status)
		for _, result := range project.Results {
			switch result.Verdict {
			case evaluate.VerdictUndetermined:
				fmt.Fprintf(&b, "- %s: UNDETERMINED (%s)\n", result.Service, result.Reason)
			default:
				fmt.Fprintf(&b, "- %s: %s at %.4f%% (threshold %.4f%%)\n",
					result.Service, result.Verdict, *result.Percentage, result.Threshold)
			}
		}
	}
	return b.String()
}
