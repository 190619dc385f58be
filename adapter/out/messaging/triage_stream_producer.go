// Package messaging provides message queue adapters.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// Stream names
const (
	StreamPersist = "triage:persist"

	// DeadLetterPrefix is prepended to a stream name for its DLQ.
	DeadLetterPrefix = "dlq:"
)

// RedisProducer implements out.JobProducer using Redis Streams.
type RedisProducer struct {
	client *redis.Client
	maxLen int64
}

var _ out.JobProducer = (*RedisProducer)(nil)

// NewRedisProducer creates a new RedisProducer. maxLen caps the stream
// length approximately; 0 leaves it unbounded.
func NewRedisProducer(client *redis.Client, maxLen int64) *RedisProducer {
	return &RedisProducer{client: client, maxLen: maxLen}
}

// PublishPersist publishes a persistence job.
func (p *RedisProducer) PublishPersist(ctx context.Context, job *out.PersistJob) error {
	return p.publish(ctx, StreamPersist, job)
}

// publish publishes a job to a stream using go-redis.
func (p *RedisProducer) publish(ctx context.Context, stream string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]any{"data": string(data)},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}

// =============================================================================
// StreamRecorder - 영속화를 워커로 위임
// =============================================================================

// StreamRecorder satisfies out.TriageRecorder by enqueueing each record as
// a PersistJob. The worker process replays them into the real sinks.
type StreamRecorder struct {
	producer out.JobProducer
	now      func() time.Time
}

var _ out.TriageRecorder = (*StreamRecorder)(nil)

func NewStreamRecorder(producer out.JobProducer) *StreamRecorder {
	return &StreamRecorder{
		producer: producer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *StreamRecorder) RecordExchange(ctx context.Context, rec *domain.ExchangeRecord) error {
	return r.enqueue(ctx, out.JobRecordExchange, rec)
}

func (r *StreamRecorder) RecordAnalysis(ctx context.Context, rec *domain.AnalysisRecord) error {
	return r.enqueue(ctx, out.JobRecordAnalysis, rec)
}

func (r *StreamRecorder) RecordHandoff(ctx context.Context, h *domain.HandoffRecord) error {
	return r.enqueue(ctx, out.JobRecordHandoff, h)
}

func (r *StreamRecorder) enqueue(ctx context.Context, jobType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", jobType, err)
	}
	return r.producer.PublishPersist(ctx, &out.PersistJob{
		ID:        uuid.NewString(),
		Type:      jobType,
		Payload:   data,
		CreatedAt: r.now(),
	})
}
