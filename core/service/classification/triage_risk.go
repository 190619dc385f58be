package classification

import (
	"fmt"

	"triage_server/core/domain"
)

// RiskPolicy holds the tunable parts of the combination table.
type RiskPolicy struct {
	// AngerFloor is the minimum risk for an angry message with little or no harassment.
	AngerFloor domain.Severity
	// LiftNegative raises none/low harassment by one tier on negative sentiment.
	LiftNegative bool
}

func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{AngerFloor: domain.SeverityMedium, LiftNegative: true}
}

// RiskCombiner folds harassment severity and sentiment into one risk level.
// The result never ranks below the harassment severity.
type RiskCombiner struct {
	policy RiskPolicy
}

func NewRiskCombiner(policy RiskPolicy) *RiskCombiner {
	if !policy.AngerFloor.IsValid() {
		policy.AngerFloor = domain.SeverityMedium
	}
	return &RiskCombiner{policy: policy}
}

// Combine looks up the risk for a (severity, sentiment) pair.
func (r *RiskCombiner) Combine(severity domain.Severity, sentiment domain.Sentiment) domain.CombinedRisk {
	rank := severity.Rank()

	switch sentiment {
	case domain.SentimentAnger:
		if severity.AtLeast(domain.SeverityMedium) {
			rank++
		} else if floor := r.policy.AngerFloor.Rank(); floor > rank {
			rank = floor
		}
	case domain.SentimentNegative:
		if r.policy.LiftNegative && severity.Rank() <= domain.SeverityLow.Rank() {
			rank++
		}
	}

	return domain.RiskFromRank(rank)
}

// Alert returns an alert for risk at or above high, otherwise nil.
func (r *RiskCombiner) Alert(risk domain.CombinedRisk, harassment domain.HarassmentResult) *domain.Alert {
	if !risk.AtLeast(domain.RiskHigh) {
		return nil
	}
	return &domain.Alert{
		Type:     domain.AlertTypeHarassment,
		Message:  fmt.Sprintf("カスハラ検出（%s）。%s", risk, harassment.Recommendation),
		Severity: risk,
	}
}

// Assess combines both results into a full assessment.
func (r *RiskCombiner) Assess(h domain.HarassmentResult, s domain.SentimentResult) domain.Assessment {
	risk := r.Combine(h.Severity, s.Sentiment)
	return domain.Assessment{
		Harassment:   h,
		Sentiment:    s,
		CombinedRisk: risk,
		Alert:        r.Alert(risk, h),
	}
}
