package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleSystem   Role = "system"
)

// ParseRole accepts chat-style aliases (user/assistant); anything else is a customer.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agent", "assistant", "bot":
		return RoleAgent
	case "system":
		return RoleSystem
	default:
		return RoleCustomer
	}
}

// Message is one immutable utterance in a conversation.
type Message struct {
	Text      string    `json:"text"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

func NewCustomerMessage(text string, at time.Time) Message {
	return Message{Text: text, Role: RoleCustomer, Timestamp: at}
}

// IsBlank reports whether the text has no visible content.
func (m Message) IsBlank() bool {
	return strings.TrimSpace(m.Text) == ""
}
