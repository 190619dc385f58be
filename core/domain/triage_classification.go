package domain

// =============================================================================
// Classification results
// =============================================================================

// HarassmentResult - 카스하라(고객 폭언) 판정 결과
type HarassmentResult struct {
	IsHarassment    bool     `json:"is_harassment"`
	Severity        Severity `json:"severity"`
	Confidence      float64  `json:"confidence"`
	Categories      []string `json:"categories"`
	Recommendation  string   `json:"recommendation"`
	MatchedPatterns []string `json:"matched_patterns,omitempty"`
}

type SentimentScores struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
	Anger    float64 `json:"anger"`
}

func (s SentimentScores) Sum() float64 {
	return s.Positive + s.Neutral + s.Negative + s.Anger
}

// SentimentResult - 감정 분석 결과
type SentimentResult struct {
	Sentiment     Sentiment       `json:"sentiment"`
	Confidence    float64         `json:"confidence"`
	TriggerAlert  bool            `json:"trigger_alert"`
	Scores        SentimentScores `json:"scores"`
	KeywordsFound []string        `json:"keywords_found,omitempty"`
}

const AlertTypeHarassment = "harassment_detected"

// Alert is attached to an analysis when combined risk reaches high.
type Alert struct {
	Type     string       `json:"type"`
	Message  string       `json:"message"`
	Severity CombinedRisk `json:"severity"`
}

// Assessment bundles both classifier outputs with their combination.
type Assessment struct {
	Harassment   HarassmentResult `json:"harassment"`
	Sentiment    SentimentResult  `json:"sentiment"`
	CombinedRisk CombinedRisk     `json:"combined_risk"`
	Alert        *Alert           `json:"alert"`
}
