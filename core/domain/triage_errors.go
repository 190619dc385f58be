package domain

import "errors"

var (
	// ErrStateConflict is returned by a conversation store when the stored
	// version no longer matches the version the caller read.
	ErrStateConflict = errors.New("conversation state conflict")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrHandoffNotFound      = errors.New("handoff not found")
	ErrInvalidTransition    = errors.New("invalid handoff status transition")
)
