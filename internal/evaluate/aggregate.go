package evaluate

// Worst merges two verdicts, treating a breach as worse than missing data
// and missing data as worse than compliance.
func Worst(a, b Verdict) Verdict {
	score := func(v Verdict) int {
		switch v {
		case VerdictBreached:
			return 3
		case VerdictUndetermined:
			return 2
		case VerdictCompliant:
			return 1
		default:
			return 0
		}
	}
	if score(b) > score(a) {
		return b
	}
	return a
}

// ProjectVerdict is the worst verdict among a project's results. A project
// with any breached service is breached regardless of its other services.
func ProjectVerdict(results []Result) Verdict {
	verdict := VerdictCompliant
	for _, result := range results {
		verdict = Worst(verdict, result.Verdict)
	}
	return verdict
}
