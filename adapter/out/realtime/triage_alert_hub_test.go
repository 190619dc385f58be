package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"triage_server/core/domain"
)

func recv(t *testing.T, s *Subscriber) *StreamEvent {
	t.Helper()
	select {
	case ev := <-s.Events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestAlertHub_FiltersBySeverity(t *testing.T) {
	ctx := context.Background()
	hub := NewAlertHub(zerolog.Nop())

	all := hub.Subscribe("")
	defer all.Close()
	critical := hub.Subscribe(domain.RiskCritical)
	defer critical.Close()

	_ = hub.PublishAlert(ctx, &domain.AlertEvent{Type: domain.AlertEventAnger, Severity: domain.RiskHigh})
	_ = hub.PublishAlert(ctx, &domain.AlertEvent{Type: domain.AlertEventHarassment, Severity: domain.RiskCritical})

	first := recv(t, all)
	second := recv(t, all)
	if first.Seq >= second.Seq {
		t.Errorf("sequence not increasing: %d then %d", first.Seq, second.Seq)
	}

	got := recv(t, critical)
	if got.Alert.Type != domain.AlertEventHarassment {
		t.Errorf("critical subscriber got %s", got.Alert.Type)
	}
	select {
	case ev := <-critical.Events:
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}
}

func TestAlertHub_DropsWhenFull(t *testing.T) {
	ctx := context.Background()
	hub := NewAlertHub(zerolog.Nop())
	s := hub.Subscribe("")
	defer s.Close()

	for i := 0; i < subscriberBuffer+5; i++ {
		_ = hub.PublishAlert(ctx, &domain.AlertEvent{Type: domain.AlertEventAnger, Severity: domain.RiskHigh})
	}

	m := hub.GetMetrics()
	if m.MessagesSent != subscriberBuffer || m.MessagesDropped != 5 {
		t.Errorf("metrics = %+v, want %d sent and 5 dropped", m, subscriberBuffer)
	}
}

func TestSubscriber_CloseIsIdempotent(t *testing.T) {
	hub := NewAlertHub(zerolog.Nop())
	s := hub.Subscribe("")
	s.Close()
	s.Close()

	if n := hub.GetMetrics().Connections; n != 0 {
		t.Errorf("Connections = %d, want 0", n)
	}
	if _, ok := <-s.Events; ok {
		t.Error("events channel should be closed")
	}
}
