package handoff

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"triage_server/core/domain"
	"triage_server/core/service/classification"
)

type seqIDs struct{ n int64 }

func (s *seqIDs) NextID() int64 {
	s.n++
	return s.n
}

var (
	testCatalog  = classification.MustDefaultCatalog()
	testAnalyzer = classification.NewAnalyzer(testCatalog, classification.DefaultRiskPolicy())
	baseTime     = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
)

func newTestBuilder() *Builder {
	return NewBuilder(testCatalog, DefaultPolicy(), &seqIDs{})
}

// send classifies text as a customer message and applies it.
func send(b *Builder, state domain.ConversationState, text string, i int) Result {
	msg := domain.NewCustomerMessage(text, baseTime.Add(time.Duration(i)*time.Minute))
	return b.Apply(state, msg, testAnalyzer.Assess(text))
}

func TestApply_EscalationTriggers(t *testing.T) {
	tests := []struct {
		name         string
		messages     []string
		wantStatus   domain.ConversationStatus
		wantPriority domain.HandoffPriority
		wantReason   string
	}{
		{
			name:       "calm conversation stays active",
			messages:   []string{"配送状況を教えてください", "ありがとう"},
			wantStatus: domain.ConversationActive,
		},
		{
			name:         "high severity escalates immediately",
			messages:     []string{"役立たず"},
			wantStatus:   domain.ConversationEscalated,
			wantPriority: domain.PriorityHigh,
			wantReason:   "severity:high",
		},
		{
			name:         "critical risk from insult and anger",
			messages:     []string{"バカ"},
			wantStatus:   domain.ConversationEscalated,
			wantPriority: domain.PriorityCritical,
			wantReason:   "combined_risk:critical",
		},
		{
			name:       "two anger messages are not enough",
			messages:   []string{"最悪", "ありえない"},
			wantStatus: domain.ConversationActive,
		},
		{
			name:         "three anger messages escalate",
			messages:     []string{"最悪", "ありえない", "ひどい"},
			wantStatus:   domain.ConversationEscalated,
			wantPriority: domain.PriorityNormal,
			wantReason:   "anger_count:3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder()
			state := domain.NewConversationState("conv-1", baseTime)

			var res Result
			for i, text := range tt.messages {
				res = send(b, state, text, i)
				state = res.State
			}

			if state.Status != tt.wantStatus {
				t.Fatalf("status = %v, want %v", state.Status, tt.wantStatus)
			}
			if tt.wantStatus != domain.ConversationEscalated {
				if state.Handoff != nil {
					t.Errorf("handoff = %+v, want nil", state.Handoff)
				}
				return
			}
			if !res.Created {
				t.Error("last message should have created the handoff")
			}
			if state.Handoff.Priority != tt.wantPriority {
				t.Errorf("priority = %v, want %v", state.Handoff.Priority, tt.wantPriority)
			}
			if !containsString(state.Handoff.EscalationReasons, tt.wantReason) {
				t.Errorf("reasons = %v, want %q", state.Handoff.EscalationReasons, tt.wantReason)
			}
			if state.Handoff.Status != domain.HandoffPending {
				t.Errorf("handoff status = %v, want pending", state.Handoff.Status)
			}
		})
	}
}

func TestApply_EscalationIsSticky(t *testing.T) {
	b := newTestBuilder()
	state := domain.NewConversationState("conv-2", baseTime)

	state = send(b, state, "バカ", 0).State
	first := state.Handoff
	if first == nil {
		t.Fatal("expected handoff after insult")
	}

	res := send(b, state, "ありがとう", 1)
	if res.Created || !res.Updated {
		t.Errorf("created=%v updated=%v, want update only", res.Created, res.Updated)
	}
	state = res.State

	if state.Status != domain.ConversationEscalated {
		t.Errorf("status = %v, want escalated", state.Status)
	}
	if state.Handoff.ID != first.ID {
		t.Errorf("handoff id changed from %d to %d", first.ID, state.Handoff.ID)
	}
	if state.Handoff.Priority != domain.PriorityCritical {
		t.Errorf("priority dropped to %v", state.Handoff.Priority)
	}
	wantHistory := []domain.Sentiment{domain.SentimentAnger, domain.SentimentPositive}
	if !reflect.DeepEqual(state.Handoff.SentimentHistory, wantHistory) {
		t.Errorf("sentiment history = %v, want %v", state.Handoff.SentimentHistory, wantHistory)
	}
	if state.Handoff.CustomerMessages != 2 {
		t.Errorf("customer messages = %d, want 2", state.Handoff.CustomerMessages)
	}
}

func TestApply_AggregatesContext(t *testing.T) {
	b := newTestBuilder()
	state := domain.NewConversationState("conv-3", baseTime)
	state.CustomerName = "山田"

	state = send(b, state, "注文番号 ORD-12345 が届かない", 0).State
	state = send(b, state, "役立たず", 1).State

	h := state.Handoff
	if h == nil {
		t.Fatal("expected handoff")
	}
	if !reflect.DeepEqual(h.OrderNumbers, []string{"ORD-12345"}) {
		t.Errorf("order numbers = %v", h.OrderNumbers)
	}
	for _, issue := range []string{"配送問題", "incompetence_insult"} {
		if !containsString(h.DetectedIssues, issue) {
			t.Errorf("detected issues %v missing %q", h.DetectedIssues, issue)
		}
	}
	if !h.HarassmentDetected || h.HarassmentSeverity != domain.SeverityHigh {
		t.Errorf("harassment = %v/%v", h.HarassmentDetected, h.HarassmentSeverity)
	}
	if !h.AIResolutionAttempted {
		t.Error("second customer message should mark ai resolution attempted")
	}
	if h.CustomerName != "山田" {
		t.Errorf("customer name = %q", h.CustomerName)
	}
	for _, part := range []string{"顧客メッセージ数: 2", "最初の問い合わせ: 「注文番号 ORD-12345 が届かない」", "引き継ぎ時のメッセージ: 「役立たず」"} {
		if !strings.Contains(h.Summary, part) {
			t.Errorf("summary %q missing %q", h.Summary, part)
		}
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	b := newTestBuilder()
	state := send(b, domain.NewConversationState("conv-4", baseTime), "バカ", 0).State
	snapshot := state.Clone()

	_ = send(b, state, "注文番号 ORD-1 最悪", 1)

	if !reflect.DeepEqual(state, snapshot) {
		t.Error("Apply modified its input state")
	}
}

func TestApply_ResolvedIsNotReescalated(t *testing.T) {
	b := newTestBuilder()
	state := send(b, domain.NewConversationState("conv-5", baseTime), "バカ", 0).State

	resolved, err := Transition(state, domain.HandoffResolved, baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if resolved.Status != domain.ConversationResolved {
		t.Fatalf("status = %v, want resolved", resolved.Status)
	}

	res := send(b, resolved, "殺す", 2)
	if res.Created || res.Updated {
		t.Error("resolved conversation should not touch the handoff")
	}
	if res.State.Status != domain.ConversationResolved {
		t.Errorf("status = %v, want resolved", res.State.Status)
	}
}

func TestTransition(t *testing.T) {
	b := newTestBuilder()
	escalated := send(b, domain.NewConversationState("conv-6", baseTime), "バカ", 0).State
	active := domain.NewConversationState("conv-7", baseTime)

	tests := []struct {
		name    string
		state   domain.ConversationState
		steps   []domain.HandoffStatus
		wantErr error
	}{
		{"forward steps", escalated, []domain.HandoffStatus{domain.HandoffAccepted, domain.HandoffInProgress}, nil},
		{"skip ahead", escalated, []domain.HandoffStatus{domain.HandoffResolved}, nil},
		{"backwards", escalated, []domain.HandoffStatus{domain.HandoffInProgress, domain.HandoffAccepted}, domain.ErrInvalidTransition},
		{"same status", escalated, []domain.HandoffStatus{domain.HandoffPending}, domain.ErrInvalidTransition},
		{"unknown status", escalated, []domain.HandoffStatus{"archived"}, domain.ErrInvalidTransition},
		{"no handoff", active, []domain.HandoffStatus{domain.HandoffAccepted}, domain.ErrHandoffNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := tt.state
			var err error
			for _, step := range tt.steps {
				state, err = Transition(state, step, baseTime)
				if err != nil {
					break
				}
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSeed(t *testing.T) {
	b := newTestBuilder()
	history := []domain.Message{
		{Text: "注文番号：A-100 について", Role: domain.RoleCustomer},
		{Text: "確認いたします", Role: domain.RoleAgent},
		{Text: "  ", Role: domain.RoleCustomer},
	}

	state := b.Seed(domain.NewConversationState("conv-8", baseTime), history)

	if state.TotalMessages != 2 || state.CustomerMessages != 1 {
		t.Errorf("counts = %d/%d, want 2/1", state.TotalMessages, state.CustomerMessages)
	}
	if !reflect.DeepEqual(state.OrderNumbers, []string{"A-100"}) {
		t.Errorf("order numbers = %v", state.OrderNumbers)
	}
	if len(state.SentimentHistory) != 0 {
		t.Errorf("seeding should not classify, got history %v", state.SentimentHistory)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("あ", 150)
	if got := Truncate(long, 100); len([]rune(got)) != 100 {
		t.Errorf("len = %d runes, want 100", len([]rune(got)))
	}
	if got := Truncate(" 短い ", 100); got != "短い" {
		t.Errorf("Truncate() = %q", got)
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
