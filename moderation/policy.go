package moderation

import "fmt"

// Thresholds are the tunable inputs of the decision policy.
type Thresholds struct {
	// Delete is the minimum confidence (inclusive) for deleting spam.
	Delete float64
	// MediumRisk and HighRisk are inclusive lower bounds for risk buckets.
	MediumRisk float64
	HighRisk   float64
}

// DefaultThresholds returns delete 0.5, medium 0.5, high 0.8.
func DefaultThresholds() Thresholds {
	return Thresholds{Delete: 0.5, MediumRisk: 0.5, HighRisk: 0.8}
}

// Validate checks that thresholds are within [0,1] and ordered.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.Delete, t.MediumRisk, t.HighRisk} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %v outside [0,1]", v)
		}
	}
	if t.MediumRisk > t.HighRisk {
		return fmt.Errorf("medium risk threshold %v above high risk threshold %v", t.MediumRisk, t.HighRisk)
	}
	return nil
}

// Decision is the output of the policy for one classification.
type Decision struct {
	RiskLevel RiskLevel
	Action    Action
}

// RiskFor is a step function of confidence.
func RiskFor(confidence float64, t Thresholds) RiskLevel {
	switch {
	case confidence >= t.HighRisk:
		return RiskHigh
	case confidence >= t.MediumRisk:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Decide maps a classification to a decision. It is pure: identical inputs
// always give identical output. Unresolved classifications are always kept.
func Decide(c Classification, t Thresholds) Decision {
	d := Decision{
		RiskLevel: RiskFor(c.Confidence, t),
		Action:    ActionKeep,
	}
	if c.IsSpam && !c.Unresolved() && c.Confidence >= t.Delete {
		d.Action = ActionDelete
	}
	return d
}

// Apply returns c with RiskLevel and RecommendedAction set by Decide.
// Confidence is clamped to [0,1] first.
func Apply(c Classification, t Thresholds) Classification {
	c.Confidence = clamp01(c.Confidence)
	d := Decide(c, t)
	c.RiskLevel = d.RiskLevel
	c.RecommendedAction = d.Action
	return c
}

func clamp01(v float64) float64 {
	if v != v || v < 0 { // NaN or negative
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
