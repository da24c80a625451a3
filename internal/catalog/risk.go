package catalog

import "time"

// Default risk thresholds.
const (
	DefaultSafetyFloorKm        = 5.0
	DefaultProbabilityThreshold = 1e-4
	DefaultPlanningHorizon      = 50 * time.Hour
)

// Criteria decide which events are high-risk and urgent.
type Criteria struct {
	SafetyFloorKm        float64
	ProbabilityThreshold float64
	Horizon              time.Duration
}

// DefaultCriteria returns the stock thresholds.
func DefaultCriteria() Criteria {
	return Criteria{
		SafetyFloorKm:        DefaultSafetyFloorKm,
		ProbabilityThreshold: DefaultProbabilityThreshold,
		Horizon:              DefaultPlanningHorizon,
	}
}

// HighRisk reports whether e is closer than the safety floor and its
// probability is unknown or at/above the threshold.
func (c Criteria) HighRisk(e Event) bool {
	if e.MissDistanceKm >= c.SafetyFloorKm {
		return false
	}
	return e.Probability == nil || *e.Probability >= c.ProbabilityThreshold
}

// Urgent reports whether e's TCA is strictly after now and no later than
// now+Horizon.
func (c Criteria) Urgent(e Event, now time.Time) bool {
	return e.TCA.After(now) && !e.TCA.After(now.Add(c.Horizon))
}

// Plannable reports whether e is both high-risk and urgent.
func (c Criteria) Plannable(e Event, now time.Time) bool {
	return c.HighRisk(e) && c.Urgent(e, now)
}
