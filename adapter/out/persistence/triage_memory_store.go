package persistence

import (
	"context"
	"sync"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// MemoryConversationStore keeps conversation state in process. It is used
// when REDIS_URL is unset and by tests. Each conversation has its own lock,
// so writers to different conversations never contend.
type MemoryConversationStore struct {
	entries sync.Map // conversation id -> *memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	mu     sync.Mutex
	state  domain.ConversationState
	stored bool
}

var _ out.ConversationStore = (*MemoryConversationStore)(nil)

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryConversationStore) entry(conversationID string) *memoryEntry {
	e, _ := s.entries.LoadOrStore(conversationID, &memoryEntry{})
	return e.(*memoryEntry)
}

func (s *MemoryConversationStore) Load(ctx context.Context, conversationID string) (domain.ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConversationState{}, err
	}

	v, ok := s.entries.Load(conversationID)
	if !ok {
		return domain.ConversationState{}, domain.ErrConversationNotFound
	}
	e := v.(*memoryEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.stored {
		return domain.ConversationState{}, domain.ErrConversationNotFound
	}
	return e.state.Clone(), nil
}

func (s *MemoryConversationStore) Save(ctx context.Context, state domain.ConversationState, expectedVersion int64) (domain.ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConversationState{}, err
	}
	if state.ConversationID == "" {
		return domain.ConversationState{}, ErrInvalidInput
	}

	e := s.entry(state.ConversationID)
	e.mu.Lock()
	defer e.mu.Unlock()

	var current int64
	if e.stored {
		current = e.state.Version
	}
	if current != expectedVersion {
		return domain.ConversationState{}, domain.ErrStateConflict
	}

	next := state.Clone()
	next.Version = expectedVersion + 1
	if next.CreatedAt.IsZero() {
		next.CreatedAt = s.now()
	}
	e.state = next
	e.stored = true
	return next.Clone(), nil
}

// Len returns the number of stored conversations.
func (s *MemoryConversationStore) Len() int {
	n := 0
	s.entries.Range(func(_, v any) bool {
		e := v.(*memoryEntry)
		e.mu.Lock()
		if e.stored {
			n++
		}
		e.mu.Unlock()
		return true
	})
	return n
}
