// Package realtime provides real-time communication adapters.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

const (
	subscriberBuffer         = 256
	defaultHeartbeatInterval = 30 * time.Second
)

// =============================================================================
// AlertHub - 상담원 대시보드 SSE 브로드캐스트
// =============================================================================

// StreamEvent is one alert as delivered to a dashboard connection.
type StreamEvent struct {
	Seq   int64              `json:"seq"`
	Alert *domain.AlertEvent `json:"alert"`
}

// AlertHub fans alert events out to every connected dashboard. Slow
// subscribers lose events instead of blocking publishers.
type AlertHub struct {
	mu      sync.RWMutex
	clients map[string]*Subscriber
	log     zerolog.Logger

	seq               int64
	sent              int64
	dropped           int64
	heartbeatInterval time.Duration
}

var _ out.AlertPublisher = (*AlertHub)(nil)

func NewAlertHub(log zerolog.Logger) *AlertHub {
	return &AlertHub{
		clients:           make(map[string]*Subscriber),
		log:               log.With().Str("component", "alert_hub").Logger(),
		heartbeatInterval: defaultHeartbeatInterval,
	}
}

// Subscriber is one dashboard connection.
type Subscriber struct {
	ID          string
	MinSeverity domain.CombinedRisk
	Events      <-chan *StreamEvent
	Done        chan struct{}

	ch   chan *StreamEvent
	hub  *AlertHub
	once sync.Once
}

// Subscribe registers a connection that receives alerts at or above
// minSeverity. An empty minSeverity receives everything.
func (h *AlertHub) Subscribe(minSeverity domain.CombinedRisk) *Subscriber {
	if minSeverity == "" {
		minSeverity = domain.RiskNone
	}
	ch := make(chan *StreamEvent, subscriberBuffer)
	s := &Subscriber{
		ID:          uuid.NewString(),
		MinSeverity: minSeverity,
		Events:      ch,
		Done:        make(chan struct{}),
		ch:          ch,
		hub:         h,
	}

	h.mu.Lock()
	h.clients[s.ID] = s
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Debug().Str("subscriber_id", s.ID).Int("total_connections", total).Msg("client subscribed")
	return s
}

// Close unsubscribes; safe to call more than once.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		close(s.Done)
		s.hub.mu.Lock()
		delete(s.hub.clients, s.ID)
		close(s.ch)
		s.hub.mu.Unlock()
		s.hub.log.Debug().Str("subscriber_id", s.ID).Msg("client unsubscribed")
	})
}

func (s *Subscriber) HeartbeatInterval() time.Duration {
	return s.hub.heartbeatInterval
}

// PublishAlert delivers event to every matching subscriber.
func (h *AlertHub) PublishAlert(_ context.Context, event *domain.AlertEvent) error {
	se := &StreamEvent{Seq: atomic.AddInt64(&h.seq, 1), Alert: event}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, s := range h.clients {
		if !event.Severity.AtLeast(s.MinSeverity) && event.Type != domain.AlertEventHandoffStatus {
			continue
		}
		select {
		case s.ch <- se:
			atomic.AddInt64(&h.sent, 1)
		default:
			atomic.AddInt64(&h.dropped, 1)
			h.log.Warn().
				Str("subscriber_id", id).
				Str("event_type", string(event.Type)).
				Int64("seq", se.Seq).
				Msg("dropped event due to full buffer")
		}
	}
	return nil
}

// HubMetrics holds hub metrics.
type HubMetrics struct {
	Connections     int   `json:"connections"`
	MessagesSent    int64 `json:"messages_sent"`
	MessagesDropped int64 `json:"messages_dropped"`
}

func (h *AlertHub) GetMetrics() HubMetrics {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return HubMetrics{
		Connections:     n,
		MessagesSent:    atomic.LoadInt64(&h.sent),
		MessagesDropped: atomic.LoadInt64(&h.dropped),
	}
}

// SerializeEvent renders the SSE data line for an event.
func SerializeEvent(event *StreamEvent) ([]byte, error) {
	return json.Marshal(event)
}
