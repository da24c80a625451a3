package analysis

import "github.com/Debrato2005/OrbitOps/internal/catalog"

// Verdict is the operator-facing summary of a planning run.
type Verdict string

const (
	VerdictNoRisk            Verdict = "no_risk"
	VerdictManeuverAvailable Verdict = "maneuver_available"
	VerdictRiskNoManeuver    Verdict = "risk_no_maneuver"
	VerdictAnalysisFailed    Verdict = "analysis_failed"
)

// Assess reduces a PlanManeuvers result to a Verdict. An event with no
// solution outranks failures, which outrank solved events.
func Assess(results []PlanResult, err error) Verdict {
	if err != nil {
		return VerdictAnalysisFailed
	}

	var failed, solved bool
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed = true
		case r.Status == catalog.StatusNoSolution:
			return VerdictRiskNoManeuver
		case r.Status == catalog.StatusSolved:
			solved = true
		}
	}
	switch {
	case failed:
		return VerdictAnalysisFailed
	case solved:
		return VerdictManeuverAvailable
	}
	return VerdictNoRisk
}
