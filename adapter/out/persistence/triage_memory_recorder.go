package persistence

import (
	"context"
	"sort"
	"sync"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// MemoryRecorder keeps records in process. Without DATABASE_URL it backs
// the handoff queue; tests use it to observe what the service persisted.
type MemoryRecorder struct {
	mu        sync.RWMutex
	exchanges []domain.ExchangeRecord
	analyses  []domain.AnalysisRecord
	handoffs  map[string]domain.HandoffRecord
}

var (
	_ out.TriageRecorder = (*MemoryRecorder)(nil)
	_ out.HandoffQuery   = (*MemoryRecorder)(nil)
)

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{handoffs: make(map[string]domain.HandoffRecord)}
}

func (m *MemoryRecorder) RecordExchange(_ context.Context, rec *domain.ExchangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, *rec)
	if rec.Handoff != nil {
		m.storeHandoff(*rec.Handoff)
	}
	return nil
}

func (m *MemoryRecorder) RecordAnalysis(_ context.Context, rec *domain.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses = append(m.analyses, *rec)
	return nil
}

func (m *MemoryRecorder) RecordHandoff(_ context.Context, h *domain.HandoffRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeHandoff(*h)
	return nil
}

// storeHandoff keeps the newest version per conversation.
func (m *MemoryRecorder) storeHandoff(h domain.HandoffRecord) {
	if prev, ok := m.handoffs[h.ConversationID]; ok && prev.UpdatedAt.After(h.UpdatedAt) {
		return
	}
	m.handoffs[h.ConversationID] = h.Clone()
}

func (m *MemoryRecorder) ListHandoffs(_ context.Context, filter *domain.HandoffFilter) ([]*domain.HandoffRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*domain.HandoffRecord, 0, len(m.handoffs))
	for _, h := range m.handoffs {
		if filter != nil && filter.Status != nil && h.Status != *filter.Status {
			continue
		}
		if filter != nil && filter.Priority != nil && h.Priority != *filter.Priority {
			continue
		}
		c := h.Clone()
		list = append(list, &c)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Priority.Rank() != list[j].Priority.Rank() {
			return list[i].Priority.Rank() > list[j].Priority.Rank()
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	if filter != nil {
		if filter.Offset >= len(list) {
			return []*domain.HandoffRecord{}, nil
		}
		list = list[filter.Offset:]
		if filter.Limit > 0 && filter.Limit < len(list) {
			list = list[:filter.Limit]
		}
	}
	return list, nil
}

func (m *MemoryRecorder) Exchanges() []domain.ExchangeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.ExchangeRecord(nil), m.exchanges...)
}

func (m *MemoryRecorder) Analyses() []domain.AnalysisRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.AnalysisRecord(nil), m.analyses...)
}
