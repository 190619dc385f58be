package persistence

import (
	"context"
	"errors"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// MultiRecorder fans every record out to all configured sinks
// (e.g. PostgreSQL and the MongoDB archive). All sinks are attempted; the
// returned error joins the failures.
type MultiRecorder struct {
	sinks []out.TriageRecorder
}

var _ out.TriageRecorder = (*MultiRecorder)(nil)

func NewMultiRecorder(sinks ...out.TriageRecorder) *MultiRecorder {
	m := &MultiRecorder{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiRecorder) Len() int { return len(m.sinks) }

func (m *MultiRecorder) RecordExchange(ctx context.Context, rec *domain.ExchangeRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordExchange(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiRecorder) RecordAnalysis(ctx context.Context, rec *domain.AnalysisRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordAnalysis(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiRecorder) RecordHandoff(ctx context.Context, h *domain.HandoffRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordHandoff(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
