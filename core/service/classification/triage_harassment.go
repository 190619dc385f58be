package classification

import (
	"math"
	"sort"
	"strings"

	"triage_server/core/domain"
)

// HarassmentClassifier scores a single message against the catalog's tiers.
type HarassmentClassifier struct {
	catalog *Catalog
}

func NewHarassmentClassifier(catalog *Catalog) *HarassmentClassifier {
	return &HarassmentClassifier{catalog: catalog}
}

// Classify never fails; blank text yields the baseline result.
func (c *HarassmentClassifier) Classify(text string) domain.HarassmentResult {
	if strings.TrimSpace(text) == "" {
		return domain.HarassmentResult{
			Severity:        domain.SeverityNone,
			Confidence:      1.0,
			Categories:      []string{},
			MatchedPatterns: []string{},
		}
	}

	severity := domain.SeverityNone
	categories := make(map[string]struct{})
	matched := []string{}

	for _, t := range c.catalog.tiers {
		for _, r := range t.rules {
			if !r.re.MatchString(text) {
				continue
			}
			matched = append(matched, r.source)
			categories[r.category] = struct{}{}
			severity = domain.MaxSeverity(severity, t.severity)
		}
	}

	cats := make([]string, 0, len(categories))
	for cat := range categories {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	return domain.HarassmentResult{
		IsHarassment:    severity.AtLeast(domain.SeverityMedium),
		Severity:        severity,
		Confidence:      harassmentConfidence(len(cats)),
		Categories:      cats,
		Recommendation:  c.catalog.Recommendation(severity),
		MatchedPatterns: matched,
	}
}

func harassmentConfidence(categories int) float64 {
	return round3(math.Min(0.95, 0.6+0.1*float64(categories)))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
