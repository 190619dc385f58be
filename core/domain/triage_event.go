package domain

import "time"

// AlertEventType is what the operator dashboard receives.
type AlertEventType string

const (
	AlertEventHarassment    AlertEventType = "harassment_detected"
	AlertEventAnger         AlertEventType = "anger_detected"
	AlertEventHandoff       AlertEventType = "handoff_created"
	AlertEventHandoffStatus AlertEventType = "handoff_status_changed"
)

type AlertEvent struct {
	Type           AlertEventType `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Severity       CombinedRisk   `json:"severity"`
	Message        string         `json:"message"`
	Handoff        *HandoffRecord `json:"handoff,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ExchangeRecord is everything persisted for one chat turn.
type ExchangeRecord struct {
	ConversationID string             `json:"conversation_id"`
	CustomerName   string             `json:"customer_name,omitempty"`
	CustomerText   string             `json:"customer_text"`
	ReplyText      string             `json:"reply_text"`
	Assessment     Assessment         `json:"assessment"`
	Status         ConversationStatus `json:"status"`
	Handoff        *HandoffRecord     `json:"handoff,omitempty"`
	HandoffCreated bool               `json:"handoff_created"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// AnalysisRecord is persisted for stateless /analyze calls.
type AnalysisRecord struct {
	ConversationID string     `json:"conversation_id,omitempty"`
	Text           string     `json:"text"`
	Assessment     Assessment `json:"assessment"`
	AnalyzedAt     time.Time  `json:"analyzed_at"`
}
