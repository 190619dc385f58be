// Package handoff maintains per-conversation aggregates and decides when a
// conversation is escalated to a human agent.
package handoff

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"triage_server/core/domain"
	"triage_server/core/service/classification"
)

const (
	DefaultAngerThreshold = 3
	DefaultExcerptRunes   = 100
)

// IDGenerator issues handoff record IDs.
type IDGenerator interface {
	NextID() int64
}

type Policy struct {
	// AngerThreshold escalates once this many messages (current included)
	// have triggered an anger alert.
	AngerThreshold int
	ExcerptRunes   int
}

func DefaultPolicy() Policy {
	return Policy{AngerThreshold: DefaultAngerThreshold, ExcerptRunes: DefaultExcerptRunes}
}

// Builder folds classified messages into ConversationState values.
// It holds no mutable state and is safe for concurrent use.
type Builder struct {
	catalog *classification.Catalog
	policy  Policy
	ids     IDGenerator
}

func NewBuilder(catalog *classification.Catalog, policy Policy, ids IDGenerator) *Builder {
	if policy.AngerThreshold <= 0 {
		policy.AngerThreshold = DefaultAngerThreshold
	}
	if policy.ExcerptRunes <= 0 {
		policy.ExcerptRunes = DefaultExcerptRunes
	}
	return &Builder{catalog: catalog, policy: policy, ids: ids}
}

// Result of applying one message.
type Result struct {
	State   domain.ConversationState
	Created bool // a handoff record was created by this message
	Updated bool // an existing handoff record was refreshed
}

// Apply returns the state after msg with assessment a. The input state is
// not modified.
func (b *Builder) Apply(state domain.ConversationState, msg domain.Message, a domain.Assessment) Result {
	next := state.Clone()
	if next.Status == "" {
		next.Status = domain.ConversationActive
	}
	if next.PeakSeverity == "" {
		next.PeakSeverity = domain.SeverityNone
	}
	b.fold(&next, msg)

	next.SentimentHistory = append(next.SentimentHistory, a.Sentiment.Sentiment)
	if a.Sentiment.TriggerAlert {
		next.AngerCount++
	}
	next.AddIssues(a.Harassment.Categories...)
	if a.Harassment.IsHarassment {
		next.HarassmentDetected = true
	}
	next.PeakSeverity = domain.MaxSeverity(next.PeakSeverity, a.Harassment.Severity)
	if !msg.Timestamp.IsZero() {
		next.UpdatedAt = msg.Timestamp
	}

	switch {
	case next.Status == domain.ConversationResolved:
		return Result{State: next}

	case next.Status == domain.ConversationEscalated && next.Handoff != nil:
		b.refresh(next.Handoff, &next, a)
		return Result{State: next, Updated: true}
	}

	reasons := b.EscalationReasons(a, next.AngerCount)
	if len(reasons) == 0 && next.Status != domain.ConversationEscalated {
		return Result{State: next}
	}
	if len(reasons) == 0 {
		// Escalated state that lost its record keeps the escalation.
		reasons = []string{"status:" + string(domain.ConversationEscalated)}
	}
	next.Status = domain.ConversationEscalated
	next.Handoff = b.create(&next, msg, a, reasons)
	return Result{State: next, Created: true}
}

// EscalationReasons lists why a message escalates; empty means it does not.
func (b *Builder) EscalationReasons(a domain.Assessment, angerCount int) []string {
	var reasons []string
	if a.Harassment.Severity.AtLeast(domain.SeverityHigh) {
		reasons = append(reasons, "severity:"+string(a.Harassment.Severity))
	}
	if angerCount >= b.policy.AngerThreshold {
		reasons = append(reasons, fmt.Sprintf("anger_count:%d", angerCount))
	}
	if a.CombinedRisk.AtLeast(domain.RiskCritical) {
		reasons = append(reasons, "combined_risk:"+string(a.CombinedRisk))
	}
	return reasons
}

// Seed folds prior history into a new conversation without classifying it.
func (b *Builder) Seed(state domain.ConversationState, history []domain.Message) domain.ConversationState {
	next := state.Clone()
	for _, m := range history {
		if m.IsBlank() {
			continue
		}
		b.fold(&next, m)
	}
	return next
}

// fold updates counters, excerpts, issues and order numbers for one message.
func (b *Builder) fold(s *domain.ConversationState, msg domain.Message) {
	s.TotalMessages++
	s.AddOrderNumbers(b.catalog.ExtractOrderNumbers(msg.Text)...)

	if msg.Role != domain.RoleCustomer {
		return
	}
	s.CustomerMessages++
	excerpt := Truncate(msg.Text, b.policy.ExcerptRunes)
	if s.FirstCustomerMessage == "" {
		s.FirstCustomerMessage = excerpt
	}
	s.LastCustomerMessage = excerpt
	s.AddIssues(b.catalog.DetectIssues(msg.Text)...)
}

func (b *Builder) create(s *domain.ConversationState, msg domain.Message, a domain.Assessment, reasons []string) *domain.HandoffRecord {
	h := &domain.HandoffRecord{
		ID:                    b.ids.NextID(),
		ConversationID:        s.ConversationID,
		CustomerName:          s.CustomerName,
		Priority:              domain.PriorityFromRisk(a.CombinedRisk),
		Status:                domain.HandoffPending,
		TriggerExcerpt:        Truncate(msg.Text, b.policy.ExcerptRunes),
		TriggerCategories:     append([]string{}, a.Harassment.Categories...),
		EscalationReasons:     reasons,
		AIResolutionAttempted: s.CustomerMessages > 1,
		CreatedAt:             s.UpdatedAt,
	}
	b.sync(h, s)
	return h
}

func (b *Builder) refresh(h *domain.HandoffRecord, s *domain.ConversationState, a domain.Assessment) {
	h.Priority = domain.MaxPriority(h.Priority, domain.PriorityFromRisk(a.CombinedRisk))
	b.sync(h, s)
}

// sync copies conversation aggregates onto the record.
func (b *Builder) sync(h *domain.HandoffRecord, s *domain.ConversationState) {
	h.CustomerName = s.CustomerName
	h.DetectedIssues = append([]string{}, s.DetectedIssues...)
	h.OrderNumbers = append([]string{}, s.OrderNumbers...)
	h.SentimentHistory = append([]domain.Sentiment{}, s.SentimentHistory...)
	h.HarassmentDetected = s.HarassmentDetected
	h.HarassmentSeverity = s.PeakSeverity
	h.TotalMessages = s.TotalMessages
	h.CustomerMessages = s.CustomerMessages
	h.UpdatedAt = s.UpdatedAt
	h.Summary = Summarize(h, s)
}

// Summarize renders the agent-facing summary line.
func Summarize(h *domain.HandoffRecord, s *domain.ConversationState) string {
	parts := []string{fmt.Sprintf("顧客メッセージ数: %d", s.CustomerMessages)}

	if len(s.DetectedIssues) > 0 {
		parts = append(parts, "検出された問題: "+strings.Join(s.DetectedIssues, ", "))
	}
	if len(h.TriggerCategories) > 0 {
		parts = append(parts, "検出カテゴリ: "+strings.Join(h.TriggerCategories, ", "))
	}
	if s.FirstCustomerMessage != "" && s.FirstCustomerMessage != h.TriggerExcerpt {
		parts = append(parts, fmt.Sprintf("最初の問い合わせ: 「%s」", s.FirstCustomerMessage))
	}
	parts = append(parts, fmt.Sprintf("引き継ぎ時のメッセージ: 「%s」", h.TriggerExcerpt))
	if s.LastCustomerMessage != "" && s.LastCustomerMessage != h.TriggerExcerpt {
		parts = append(parts, fmt.Sprintf("最新のメッセージ: 「%s」", s.LastCustomerMessage))
	}

	return strings.Join(parts, " | ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
