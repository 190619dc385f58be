package domain

import (
	"sort"
	"time"
)

type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationEscalated ConversationStatus = "escalated"
	ConversationResolved  ConversationStatus = "resolved"
)

func (s ConversationStatus) Rank() int {
	switch s {
	case ConversationEscalated:
		return 1
	case ConversationResolved:
		return 2
	default:
		return 0
	}
}

// ConversationState is the per-conversation aggregate. Values are passed in
// and returned by the classifier pipeline; callers never share a mutable copy.
type ConversationState struct {
	ConversationID string             `json:"conversation_id"`
	Status         ConversationStatus `json:"status"`
	// Version increases on every committed update and guards compare-and-swap.
	Version      int64  `json:"version"`
	CustomerName string `json:"customer_name,omitempty"`

	SentimentHistory []Sentiment `json:"sentiment_history"`
	DetectedIssues   []string    `json:"detected_issues"`
	OrderNumbers     []string    `json:"order_numbers"`
	AngerCount       int         `json:"anger_count"`

	HarassmentDetected bool     `json:"harassment_detected"`
	PeakSeverity       Severity `json:"peak_severity"`

	TotalMessages        int    `json:"total_messages"`
	CustomerMessages     int    `json:"customer_messages"`
	FirstCustomerMessage string `json:"first_customer_message,omitempty"`
	LastCustomerMessage  string `json:"last_customer_message,omitempty"`

	Handoff *HandoffRecord `json:"handoff,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewConversationState(id string, now time.Time) ConversationState {
	return ConversationState{
		ConversationID:   id,
		Status:           ConversationActive,
		PeakSeverity:     SeverityNone,
		SentimentHistory: []Sentiment{},
		DetectedIssues:   []string{},
		OrderNumbers:     []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// IsNew reports whether the state has never been committed.
func (s ConversationState) IsNew() bool {
	return s.Version == 0
}

func (s ConversationState) IsEscalated() bool {
	return s.Status == ConversationEscalated && s.Handoff != nil
}

// Clone returns a deep copy.
func (s ConversationState) Clone() ConversationState {
	c := s
	c.SentimentHistory = cloneSlice(s.SentimentHistory)
	c.DetectedIssues = cloneSlice(s.DetectedIssues)
	c.OrderNumbers = cloneSlice(s.OrderNumbers)
	if s.Handoff != nil {
		h := s.Handoff.Clone()
		c.Handoff = &h
	}
	return c
}

// AddIssues merges categories into the sorted issue set.
func (s *ConversationState) AddIssues(issues ...string) {
	s.DetectedIssues = mergeSorted(s.DetectedIssues, issues)
}

// AddOrderNumbers appends unseen numbers, keeping first-seen order.
func (s *ConversationState) AddOrderNumbers(numbers ...string) {
	for _, n := range numbers {
		if n == "" || contains(s.OrderNumbers, n) {
			continue
		}
		s.OrderNumbers = append(s.OrderNumbers, n)
	}
}

// cloneSlice copies s, keeping nil and empty distinct.
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func mergeSorted(set []string, items []string) []string {
	out := append([]string{}, set...)
	for _, it := range items {
		if it == "" || contains(out, it) {
			continue
		}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
