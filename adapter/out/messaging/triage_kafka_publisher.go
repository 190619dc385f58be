package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// DefaultAlertTopic is used when KAFKA_ALERT_TOPIC is unset.
const DefaultAlertTopic = "triage-alerts"

// KafkaAlertPublisher forwards operator alerts to a Kafka topic, keyed by
// conversation so that one conversation's events stay ordered.
type KafkaAlertPublisher struct {
	writer *kafka.Writer
}

var _ out.AlertPublisher = (*KafkaAlertPublisher)(nil)

func NewKafkaAlertPublisher(brokers []string, topic string) *KafkaAlertPublisher {
	if topic == "" {
		topic = DefaultAlertTopic
	}
	return &KafkaAlertPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaAlertPublisher) PublishAlert(ctx context.Context, event *domain.AlertEvent) error {
	msg, err := alertMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish alert to %s: %w", p.writer.Topic, err)
	}
	return nil
}

func alertMessage(event *domain.AlertEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal alert: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.ConversationID),
		Value: value,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
			{Key: "severity", Value: []byte(event.Severity)},
		},
	}, nil
}

func (p *KafkaAlertPublisher) Close() error {
	return p.writer.Close()
}
