package domain

import (
	"testing"
	"time"
)

func TestSeverityOrder(t *testing.T) {
	ladder := []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(ladder); i++ {
		if ladder[i].Rank() <= ladder[i-1].Rank() {
			t.Errorf("%v should rank above %v", ladder[i], ladder[i-1])
		}
	}
	if Severity("bogus").Rank() != SeverityNone.Rank() {
		t.Error("unknown severity should rank as none")
	}
	if got := SeverityFromRank(99); got != SeverityCritical {
		t.Errorf("SeverityFromRank(99) = %v, want critical", got)
	}
	if got := MaxSeverity(SeverityHigh, SeverityLow); got != SeverityHigh {
		t.Errorf("MaxSeverity = %v, want high", got)
	}
}

func TestSentimentOrder(t *testing.T) {
	order := []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative, SentimentAnger}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%v should rank above %v", order[i], order[i-1])
		}
	}
}

func TestPriorityFromRisk(t *testing.T) {
	tests := []struct {
		risk CombinedRisk
		want HandoffPriority
	}{
		{RiskNone, PriorityNormal},
		{RiskLow, PriorityNormal},
		{RiskMedium, PriorityNormal},
		{RiskHigh, PriorityHigh},
		{RiskCritical, PriorityCritical},
	}
	for _, tt := range tests {
		if got := PriorityFromRisk(tt.risk); got != tt.want {
			t.Errorf("PriorityFromRisk(%v) = %v, want %v", tt.risk, got, tt.want)
		}
	}
	if MaxPriority(PriorityCritical, PriorityNormal) != PriorityCritical {
		t.Error("MaxPriority should keep critical")
	}
}

func TestParseRole(t *testing.T) {
	tests := map[string]Role{
		"user":      RoleCustomer,
		"customer":  RoleCustomer,
		"assistant": RoleAgent,
		"Agent":     RoleAgent,
		"system":    RoleSystem,
		"":          RoleCustomer,
	}
	for in, want := range tests {
		if got := ParseRole(in); got != want {
			t.Errorf("ParseRole(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConversationState_Clone(t *testing.T) {
	s := NewConversationState("c1", time.Now())
	s.AddOrderNumbers("ORD-1")
	s.AddIssues("b", "a")
	s.Handoff = &HandoffRecord{OrderNumbers: []string{"ORD-1"}}

	c := s.Clone()
	c.AddOrderNumbers("ORD-2")
	c.Handoff.OrderNumbers[0] = "changed"

	if len(s.OrderNumbers) != 1 {
		t.Errorf("original order numbers = %v", s.OrderNumbers)
	}
	if s.Handoff.OrderNumbers[0] != "ORD-1" {
		t.Error("clone shares handoff slices with original")
	}
	if s.DetectedIssues[0] != "a" || s.DetectedIssues[1] != "b" {
		t.Errorf("issues not sorted: %v", s.DetectedIssues)
	}
}

func TestHandoffStatus_CanTransitionTo(t *testing.T) {
	if !HandoffPending.CanTransitionTo(HandoffResolved) {
		t.Error("pending -> resolved should be allowed")
	}
	if HandoffResolved.CanTransitionTo(HandoffPending) {
		t.Error("resolved -> pending should be rejected")
	}
	if HandoffAccepted.CanTransitionTo(HandoffAccepted) {
		t.Error("same-status transition should be rejected")
	}
}
