package persistence

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"triage_server/core/domain"
)

func TestMemoryConversationStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConversationStore()

	if _, err := store.Load(ctx, "c1"); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("Load() on empty store err = %v, want ErrConversationNotFound", err)
	}

	state := domain.NewConversationState("c1", time.Now())
	saved, err := store.Save(ctx, state, 0)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.Version != 1 {
		t.Errorf("Version = %d, want 1", saved.Version)
	}

	// A second writer that also read version 0 must lose.
	if _, err := store.Save(ctx, state, 0); !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("stale Save() err = %v, want ErrStateConflict", err)
	}

	saved.AngerCount = 2
	next, err := store.Save(ctx, saved, saved.Version)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if next.Version != 2 {
		t.Errorf("Version = %d, want 2", next.Version)
	}

	loaded, err := store.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.AngerCount != 2 || loaded.Version != 2 {
		t.Errorf("Load() = {anger:%d version:%d}, want {2 2}", loaded.AngerCount, loaded.Version)
	}
}

func TestMemoryConversationStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConversationStore()

	state := domain.NewConversationState("c1", time.Now())
	state.DetectedIssues = []string{"shipping"}
	if _, err := store.Save(ctx, state, 0); err != nil {
		t.Fatal(err)
	}
	state.DetectedIssues[0] = "mutated"

	loaded, _ := store.Load(ctx, "c1")
	if loaded.DetectedIssues[0] != "shipping" {
		t.Errorf("stored state shares memory with caller: %v", loaded.DetectedIssues)
	}
	loaded.DetectedIssues[0] = "mutated"

	again, _ := store.Load(ctx, "c1")
	if again.DetectedIssues[0] != "shipping" {
		t.Errorf("loaded state shares memory with store: %v", again.DetectedIssues)
	}
}

func TestMemoryConversationStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConversationStore()
	if _, err := store.Save(ctx, domain.NewConversationState("c1", time.Now()), 0); err != nil {
		t.Fatal(err)
	}

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _ := store.Load(ctx, "c1")
			if s.Version != 1 {
				return
			}
			if _, err := store.Save(ctx, s, 1); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestBuildHandoffQuery(t *testing.T) {
	pending := domain.HandoffPending
	critical := domain.PriorityCritical

	tests := []struct {
		name     string
		filter   *domain.HandoffFilter
		contains []string
		args     int
	}{
		{"nil filter", nil, []string{"LIMIT $1"}, 1},
		{"status", &domain.HandoffFilter{Status: &pending, Limit: 10}, []string{"WHERE status = $1", "LIMIT $2"}, 2},
		{
			"status and priority with offset",
			&domain.HandoffFilter{Status: &pending, Priority: &critical, Limit: 10, Offset: 20},
			[]string{"status = $1 AND priority = $2", "LIMIT $3", "OFFSET $4"},
			4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildHandoffQuery(tt.filter)
			for _, want := range tt.contains {
				if !strings.Contains(query, want) {
					t.Errorf("query %q missing %q", query, want)
				}
			}
			if len(args) != tt.args {
				t.Errorf("len(args) = %d, want %d", len(args), tt.args)
			}
		})
	}
}

func TestMemoryRecorder_ListHandoffs(t *testing.T) {
	ctx := context.Background()
	rec := NewMemoryRecorder()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	handoffs := []domain.HandoffRecord{
		{ConversationID: "a", Priority: domain.PriorityNormal, Status: domain.HandoffPending, CreatedAt: base, UpdatedAt: base},
		{ConversationID: "b", Priority: domain.PriorityCritical, Status: domain.HandoffPending, CreatedAt: base.Add(time.Minute), UpdatedAt: base},
		{ConversationID: "c", Priority: domain.PriorityHigh, Status: domain.HandoffAccepted, CreatedAt: base, UpdatedAt: base},
	}
	for i := range handoffs {
		if err := rec.RecordHandoff(ctx, &handoffs[i]); err != nil {
			t.Fatal(err)
		}
	}

	all, _ := rec.ListHandoffs(ctx, nil)
	var order []string
	for _, h := range all {
		order = append(order, h.ConversationID)
	}
	if strings.Join(order, ",") != "b,c,a" {
		t.Errorf("order = %v, want [b c a]", order)
	}

	pending := domain.HandoffPending
	list, _ := rec.ListHandoffs(ctx, &domain.HandoffFilter{Status: &pending, Limit: 1})
	if len(list) != 1 || list[0].ConversationID != "b" {
		t.Errorf("pending limit 1 = %v, want [b]", list)
	}

	// Stale updates do not overwrite newer ones.
	stale := handoffs[0]
	stale.Status = domain.HandoffResolved
	stale.UpdatedAt = base.Add(-time.Hour)
	_ = rec.RecordHandoff(ctx, &stale)
	all, _ = rec.ListHandoffs(ctx, nil)
	for _, h := range all {
		if h.ConversationID == "a" && h.Status != domain.HandoffPending {
			t.Errorf("stale update applied: status = %s", h.Status)
		}
	}
}

type failingRecorder struct{ err error }

func (f failingRecorder) RecordExchange(context.Context, *domain.ExchangeRecord) error { return f.err }
func (f failingRecorder) RecordAnalysis(context.Context, *domain.AnalysisRecord) error { return f.err }
func (f failingRecorder) RecordHandoff(context.Context, *domain.HandoffRecord) error   { return f.err }

func TestMultiRecorder_AttemptsAllSinks(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	mem := NewMemoryRecorder()
	multi := NewMultiRecorder(failingRecorder{err: boom}, nil, mem)

	if multi.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", multi.Len())
	}

	err := multi.RecordAnalysis(ctx, &domain.AnalysisRecord{Text: "hi"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if len(mem.Analyses()) != 1 {
		t.Errorf("healthy sink was skipped after a failure")
	}
}
