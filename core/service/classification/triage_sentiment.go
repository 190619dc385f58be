package classification

import (
	"math"
	"strings"

	"triage_server/core/domain"
)

// SentimentClassifier tallies literal keyword hits per label.
type SentimentClassifier struct {
	catalog *Catalog
}

func NewSentimentClassifier(catalog *Catalog) *SentimentClassifier {
	return &SentimentClassifier{catalog: catalog}
}

// neutralConfidence applies to non-empty text where no label wins.
const neutralConfidence = 0.8

func (c *SentimentClassifier) Classify(text string) domain.SentimentResult {
	if strings.TrimSpace(text) == "" {
		return domain.SentimentResult{
			Sentiment:     domain.SentimentNeutral,
			Confidence:    1.0,
			Scores:        domain.SentimentScores{Neutral: 1.0},
			KeywordsFound: []string{},
		}
	}

	lower := maskPhrases(strings.ToLower(text), c.catalog.ignore)
	pos, posFound := countKeywords(lower, c.catalog.positive)
	neg, negFound := countKeywords(lower, c.catalog.negative)
	ang, angFound := countKeywords(lower, c.catalog.anger)

	var (
		label      domain.Sentiment
		confidence float64
	)
	switch {
	case ang >= 1:
		label = domain.SentimentAnger
		confidence = math.Min(0.95, 0.6+0.1*float64(ang))
	case neg > pos:
		label = domain.SentimentNegative
		confidence = math.Min(0.9, 0.5+0.1*float64(neg))
	case pos > 0:
		label = domain.SentimentPositive
		confidence = math.Min(0.9, 0.5+0.1*float64(pos))
	default:
		label = domain.SentimentNeutral
		confidence = neutralConfidence
	}

	found := make([]string, 0, pos+neg+ang)
	found = append(found, posFound...)
	found = append(found, negFound...)
	found = append(found, angFound...)

	return domain.SentimentResult{
		Sentiment:     label,
		Confidence:    round3(confidence),
		TriggerAlert:  label == domain.SentimentAnger,
		Scores:        sentimentScores(pos, neg, ang),
		KeywordsFound: found,
	}
}

// sentimentScores divides each tally by (pos+neg+ang+1). The extra slot is
// the neutral residual, so neutral gets whatever the rounded tallies leave.
func sentimentScores(pos, neg, ang int) domain.SentimentScores {
	total := float64(pos + neg + ang + 1)
	s := domain.SentimentScores{
		Positive: round3(float64(pos) / total),
		Negative: round3(float64(neg) / total),
		Anger:    round3(float64(ang) / total),
	}
	s.Neutral = round3(math.Max(0, 1-(s.Positive+s.Negative+s.Anger)))
	return s
}

func countKeywords(lower string, words []keyword) (int, []string) {
	var found []string
	for _, w := range words {
		if strings.Contains(lower, w.lower) {
			found = append(found, w.raw)
		}
	}
	return len(found), found
}

// maskPhrases replaces each phrase with a space so neither it nor a join of
// its neighbours can match a keyword.
func maskPhrases(lower string, phrases []string) string {
	for _, p := range phrases {
		lower = strings.ReplaceAll(lower, p, " ")
	}
	return lower
}
