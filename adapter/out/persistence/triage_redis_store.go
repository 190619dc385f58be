package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// ConversationKeyPrefix Redis key prefix for conversation state
const ConversationKeyPrefix = "triage:conv:"

// DefaultStateTTL - 마지막 갱신 후 상태 보존 기간
const DefaultStateTTL = 72 * time.Hour

// RedisConversationStore stores each conversation as one JSON document and
// commits with WATCH/MULTI so that concurrent writers lose with
// domain.ErrStateConflict instead of overwriting each other.
type RedisConversationStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ out.ConversationStore = (*RedisConversationStore)(nil)

func NewRedisConversationStore(client *redis.Client, ttl time.Duration) *RedisConversationStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &RedisConversationStore{client: client, ttl: ttl}
}

func conversationKey(id string) string {
	return ConversationKeyPrefix + id
}

func (s *RedisConversationStore) Load(ctx context.Context, conversationID string) (domain.ConversationState, error) {
	raw, err := s.client.Get(ctx, conversationKey(conversationID)).Bytes()
	if err == redis.Nil {
		return domain.ConversationState{}, domain.ErrConversationNotFound
	}
	if err != nil {
		return domain.ConversationState{}, fmt.Errorf("failed to load conversation: %w", err)
	}
	return decodeState(raw)
}

func (s *RedisConversationStore) Save(ctx context.Context, state domain.ConversationState, expectedVersion int64) (domain.ConversationState, error) {
	if state.ConversationID == "" {
		return domain.ConversationState{}, ErrInvalidInput
	}
	key := conversationKey(state.ConversationID)

	next := state.Clone()
	next.Version = expectedVersion + 1

	payload, err := json.Marshal(next)
	if err != nil {
		return domain.ConversationState{}, fmt.Errorf("failed to encode conversation: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return domain.ErrStateConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, domain.ErrStateConflict):
		return domain.ConversationState{}, domain.ErrStateConflict
	default:
		return domain.ConversationState{}, fmt.Errorf("failed to save conversation: %w", err)
	}
}

func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	state, err := decodeState(raw)
	if err != nil {
		return 0, err
	}
	return state.Version, nil
}

func decodeState(raw []byte) (domain.ConversationState, error) {
	var state domain.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.ConversationState{}, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return state, nil
}
