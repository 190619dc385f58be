package in

import (
	"context"
	"time"

	"triage_server/core/domain"
)

type TriageService interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error)
	GetConversation(ctx context.Context, conversationID string) (*domain.ConversationState, error)
	UpdateHandoffStatus(ctx context.Context, conversationID string, status domain.HandoffStatus) (*domain.HandoffRecord, error)
	ListHandoffs(ctx context.Context, filter *domain.HandoffFilter) ([]*domain.HandoffRecord, error)
}

type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message        string           `json:"message"`
	ConversationID string           `json:"conversation_id,omitempty"`
	CustomerName   string           `json:"customer_name,omitempty"`
	History        []HistoryMessage `json:"history,omitempty"`
}

type ChatResponse struct {
	ConversationID string                    `json:"conversation_id"`
	Response       string                    `json:"response"`
	Sentiment      domain.SentimentResult    `json:"sentiment"`
	Harassment     domain.HarassmentResult   `json:"harassment"`
	CombinedRisk   domain.CombinedRisk       `json:"combined_risk"`
	Handoff        *domain.HandoffRecord     `json:"handoff"`
	NeedsHandoff   bool                      `json:"needs_handoff"`
	Status         domain.ConversationStatus `json:"status"`
	Timestamp      time.Time                 `json:"timestamp"`
}

type AnalyzeRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type AnalyzeResponse struct {
	Harassment   domain.HarassmentResult `json:"harassment"`
	Sentiment    domain.SentimentResult  `json:"sentiment"`
	CombinedRisk domain.CombinedRisk     `json:"combined_risk"`
	Alert        *domain.Alert           `json:"alert"`
	AnalyzedAt   time.Time               `json:"analyzed_at"`
}
