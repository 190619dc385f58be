package out

import (
	"context"

	"triage_server/core/domain"
)

// TriageRecorder persists triage results. Implementations may write
// synchronously or hand off to a queue; callers treat failures as non-fatal.
type TriageRecorder interface {
	RecordExchange(ctx context.Context, rec *domain.ExchangeRecord) error
	RecordAnalysis(ctx context.Context, rec *domain.AnalysisRecord) error
	RecordHandoff(ctx context.Context, h *domain.HandoffRecord) error
}

// HandoffQuery - 상담원 대시보드 조회용
type HandoffQuery interface {
	ListHandoffs(ctx context.Context, filter *domain.HandoffFilter) ([]*domain.HandoffRecord, error)
}
