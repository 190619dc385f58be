package domain

// =============================================================================
// Ranked enums - 모든 비교는 Rank()로 (문자열 비교 금지)
// =============================================================================

// Severity is the harassment severity ladder: none < low < medium < high < critical.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityLadder = []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns the ordinal position; unknown values rank as none.
func (s Severity) Rank() int {
	for i, v := range severityLadder {
		if v == s {
			return i
		}
	}
	return 0
}

func (s Severity) IsValid() bool {
	for _, v := range severityLadder {
		if v == s {
			return true
		}
	}
	return false
}

// AtLeast reports whether s ranks at or above other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// SeverityFromRank clamps r onto the ladder.
func SeverityFromRank(r int) Severity {
	if r < 0 {
		r = 0
	}
	if r >= len(severityLadder) {
		r = len(severityLadder) - 1
	}
	return severityLadder[r]
}

func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// CombinedRisk shares the severity ladder but is derived from both classifiers.
type CombinedRisk string

const (
	RiskNone     CombinedRisk = "none"
	RiskLow      CombinedRisk = "low"
	RiskMedium   CombinedRisk = "medium"
	RiskHigh     CombinedRisk = "high"
	RiskCritical CombinedRisk = "critical"
)

func (r CombinedRisk) Rank() int {
	return Severity(r).Rank()
}

func (r CombinedRisk) AtLeast(other CombinedRisk) bool {
	return r.Rank() >= other.Rank()
}

func RiskFromSeverity(s Severity) CombinedRisk {
	return CombinedRisk(SeverityFromRank(s.Rank()))
}

func RiskFromRank(r int) CombinedRisk {
	return CombinedRisk(SeverityFromRank(r))
}

// Sentiment labels, ordered positive < neutral < negative < anger.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentAnger    Sentiment = "anger"
)

func (s Sentiment) Rank() int {
	switch s {
	case SentimentPositive:
		return 0
	case SentimentNegative:
		return 2
	case SentimentAnger:
		return 3
	default:
		return 1
	}
}

// HandoffPriority: normal < high < critical.
type HandoffPriority string

const (
	PriorityNormal   HandoffPriority = "normal"
	PriorityHigh     HandoffPriority = "high"
	PriorityCritical HandoffPriority = "critical"
)

func (p HandoffPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityCritical:
		return 2
	default:
		return 0
	}
}

// PriorityFromRisk maps combined risk onto handoff priority.
func PriorityFromRisk(r CombinedRisk) HandoffPriority {
	switch {
	case r.AtLeast(RiskCritical):
		return PriorityCritical
	case r.AtLeast(RiskHigh):
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

func MaxPriority(a, b HandoffPriority) HandoffPriority {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
