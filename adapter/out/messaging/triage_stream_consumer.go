package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// JobHandler processes one raw job payload read from a stream.
type JobHandler interface {
	Handle(ctx context.Context, stream string, data []byte) error
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, stream string, data []byte) error

func (f JobHandlerFunc) Handle(ctx context.Context, stream string, data []byte) error {
	return f(ctx, stream, data)
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Group    string
	Consumer string
	Streams  []string
	Handler  JobHandler
	Logger   zerolog.Logger

	// Zero values fall back to the defaults below.
	BatchSize            int64
	BlockTimeout         time.Duration
	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxDeliveries        int64
}

// Consumer reads jobs with XREADGROUP, acks them after the handler
// succeeds and reclaims entries that stay pending too long. Entries
// delivered MaxDeliveries times go to the dead letter stream.
type Consumer struct {
	client *redis.Client
	cfg    ConsumerConfig
	log    zerolog.Logger
}

func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.PendingCheckInterval <= 0 {
		cfg.PendingCheckInterval = 30 * time.Second
	}
	if cfg.PendingIdleTime <= 0 {
		cfg.PendingIdleTime = 2 * time.Minute
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 3
	}
	return &Consumer{
		client: client,
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "stream_consumer").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Str("group", c.cfg.Group).
		Str("consumer", c.cfg.Consumer).
		Strs("streams", c.cfg.Streams).
		Msg("starting consumer")

	for _, stream := range c.cfg.Streams {
		if err := c.ensureGroup(ctx, stream); err != nil {
			return err
		}
	}

	go c.reclaimLoop(ctx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := c.read(ctx)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Msg("error reading from streams")
			time.Sleep(time.Second)
			continue
		}

		// Entries of one read are handled concurrently; the next read waits
		// for all of them so pending counts stay bounded by BatchSize.
		var g errgroup.Group
		for _, s := range streams {
			for _, msg := range s.Messages {
				stream, msg := s.Stream, msg
				g.Go(func() error {
					c.handle(ctx, stream, msg)
					return nil
				})
			}
		}
		_ = g.Wait()
	}
}

func (c *Consumer) ensureGroup(ctx context.Context, stream string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
	}
	return nil
}

func (c *Consumer) read(ctx context.Context) ([]redis.XStream, error) {
	args := make([]string, 0, len(c.cfg.Streams)*2)
	args = append(args, c.cfg.Streams...)
	for range c.cfg.Streams {
		args = append(args, ">")
	}

	return c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  args,
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.BlockTimeout,
	}).Result()
}

// handle runs the handler and acks on success. Failed entries stay pending
// for the reclaim loop.
func (c *Consumer) handle(ctx context.Context, stream string, msg redis.XMessage) {
	data, err := payload(msg)
	if err == nil {
		err = c.cfg.Handler.Handle(ctx, stream, data)
	}
	if err != nil {
		c.log.Error().Err(err).Str("stream", stream).Str("id", msg.ID).Msg("error processing message")
		return
	}

	if err := c.client.XAck(ctx, stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.log.Error().Err(err).Str("stream", stream).Str("id", msg.ID).Msg("error acknowledging message")
	}
}

func payload(msg redis.XMessage) ([]byte, error) {
	raw, ok := msg.Values["data"]
	if !ok {
		return nil, fmt.Errorf("invalid message format: missing data field")
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("invalid message format: data is not a string")
	}
	return []byte(s), nil
}

// =============================================================================
// Pending 메시지 재처리
// =============================================================================

func (c *Consumer) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, stream := range c.cfg.Streams {
				c.reclaim(ctx, stream)
			}
		}
	}
}

func (c *Consumer) reclaim(ctx context.Context, stream string) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.cfg.Group,
		Idle:   c.cfg.PendingIdleTime,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Error().Err(err).Str("stream", stream).Msg("error listing pending messages")
		}
		return
	}

	for _, p := range pending {
		if p.RetryCount >= c.cfg.MaxDeliveries {
			c.deadLetter(ctx, stream, p.ID, p.RetryCount)
			continue
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.PendingIdleTime,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.log.Error().Err(err).Str("id", p.ID).Msg("error claiming message")
			continue
		}
		for _, msg := range claimed {
			c.handle(ctx, stream, msg)
		}
	}
}

// deadLetter copies the entry to dlq:<stream> and acks the original.
func (c *Consumer) deadLetter(ctx context.Context, stream, id string, deliveries int64) {
	log := c.log.With().Str("stream", stream).Str("id", id).Int64("deliveries", deliveries).Logger()

	msgs, err := c.client.XRange(ctx, stream, id, id).Result()
	if err != nil || len(msgs) == 0 {
		log.Error().Err(err).Msg("failed to read message for DLQ")
	} else {
		values := map[string]any{
			"original_stream": stream,
			"original_id":     id,
			"failed_at":       time.Now().UTC().Format(time.RFC3339),
			"consumer":        c.cfg.Consumer,
			"group":           c.cfg.Group,
		}
		for k, v := range msgs[0].Values {
			values["original_"+k] = v
		}
		if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: DeadLetterPrefix + stream, Values: values}).Err(); err != nil {
			log.Error().Err(err).Msg("failed to add message to DLQ")
			return
		}
	}

	c.client.XAck(ctx, stream, c.cfg.Group, id)
	log.Warn().Msg("message moved to DLQ")
}
