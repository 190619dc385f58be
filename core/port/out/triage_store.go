package out

import (
	"context"

	"triage_server/core/domain"
)

// ConversationStore - 대화 상태 저장소 (optimistic CAS)
type ConversationStore interface {
	// Load returns the committed state, or domain.ErrConversationNotFound.
	Load(ctx context.Context, conversationID string) (domain.ConversationState, error)

	// Save commits state if the stored version still equals expectedVersion
	// (0 for a new conversation) and returns the state with its new version.
	// A mismatch returns domain.ErrStateConflict.
	Save(ctx context.Context, state domain.ConversationState, expectedVersion int64) (domain.ConversationState, error)
}
