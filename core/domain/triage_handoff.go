package domain

import "time"

// =============================================================================
// HandoffRecord - 상담원 인계 레코드
// =============================================================================

type HandoffStatus string

const (
	HandoffPending    HandoffStatus = "pending"
	HandoffAccepted   HandoffStatus = "accepted"
	HandoffInProgress HandoffStatus = "in_progress"
	HandoffResolved   HandoffStatus = "resolved"
)

func (s HandoffStatus) Rank() int {
	switch s {
	case HandoffPending:
		return 0
	case HandoffAccepted:
		return 1
	case HandoffInProgress:
		return 2
	case HandoffResolved:
		return 3
	default:
		return -1
	}
}

func (s HandoffStatus) IsValid() bool {
	return s.Rank() >= 0
}

// CanTransitionTo allows forward moves only; steps may be skipped.
func (s HandoffStatus) CanTransitionTo(next HandoffStatus) bool {
	return next.IsValid() && next.Rank() > s.Rank()
}

type HandoffRecord struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	CustomerName   string `json:"customer_name,omitempty"`

	Priority HandoffPriority `json:"priority"`
	Summary  string          `json:"summary"`
	Status   HandoffStatus   `json:"status"`

	DetectedIssues     []string    `json:"detected_issues"`
	OrderNumbers       []string    `json:"order_numbers"`
	SentimentHistory   []Sentiment `json:"sentiment_history"`
	HarassmentDetected bool        `json:"harassment_detected"`
	HarassmentSeverity Severity    `json:"harassment_severity"`

	// Trigger* capture the message that caused escalation.
	TriggerExcerpt    string   `json:"trigger_excerpt"`
	TriggerCategories []string `json:"trigger_categories"`
	EscalationReasons []string `json:"escalation_reasons"`

	AIResolutionAttempted bool `json:"ai_resolution_attempted"`
	TotalMessages         int  `json:"total_messages"`
	CustomerMessages      int  `json:"customer_messages"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h HandoffRecord) Clone() HandoffRecord {
	c := h
	c.DetectedIssues = cloneSlice(h.DetectedIssues)
	c.OrderNumbers = cloneSlice(h.OrderNumbers)
	c.SentimentHistory = cloneSlice(h.SentimentHistory)
	c.TriggerCategories = cloneSlice(h.TriggerCategories)
	c.EscalationReasons = cloneSlice(h.EscalationReasons)
	return c
}

// HandoffFilter - 인계 목록 조회 필터
type HandoffFilter struct {
	Status   *HandoffStatus
	Priority *HandoffPriority
	Limit    int
	Offset   int
}
