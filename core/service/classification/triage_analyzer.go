package classification

import (
	"triage_server/core/domain"

	"golang.org/x/sync/errgroup"
)

// Analyzer runs both classifiers side by side and combines their output.
type Analyzer struct {
	harassment *HarassmentClassifier
	sentiment  *SentimentClassifier
	risk       *RiskCombiner
}

func NewAnalyzer(catalog *Catalog, policy RiskPolicy) *Analyzer {
	return &Analyzer{
		harassment: NewHarassmentClassifier(catalog),
		sentiment:  NewSentimentClassifier(catalog),
		risk:       NewRiskCombiner(policy),
	}
}

// Assess classifies text, running both classifiers concurrently. It has no
// failure mode and ignores cancellation; callers own request timeouts.
func (a *Analyzer) Assess(text string) domain.Assessment {
	var (
		h domain.HarassmentResult
		s domain.SentimentResult
		g errgroup.Group
	)
	g.Go(func() error {
		h = a.harassment.Classify(text)
		return nil
	})
	g.Go(func() error {
		s = a.sentiment.Classify(text)
		return nil
	})
	_ = g.Wait()

	return a.risk.Assess(h, s)
}
