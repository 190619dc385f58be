package handoff

import (
	"fmt"
	"time"

	"triage_server/core/domain"
)

// Transition moves the conversation's handoff to status to. Resolving the
// handoff resolves the conversation.
func Transition(state domain.ConversationState, to domain.HandoffStatus, now time.Time) (domain.ConversationState, error) {
	if state.Handoff == nil {
		return state, fmt.Errorf("conversation %s: %w", state.ConversationID, domain.ErrHandoffNotFound)
	}
	from := state.Handoff.Status
	if !from.CanTransitionTo(to) {
		return state, fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}

	next := state.Clone()
	next.Handoff.Status = to
	next.Handoff.UpdatedAt = now
	next.UpdatedAt = now
	if to == domain.HandoffResolved {
		next.Status = domain.ConversationResolved
	}
	return next, nil
}
