package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

type captureProducer struct {
	jobs []*out.PersistJob
}

func (c *captureProducer) PublishPersist(_ context.Context, job *out.PersistJob) error {
	c.jobs = append(c.jobs, job)
	return nil
}

func TestStreamRecorder_EnqueuesTypedJobs(t *testing.T) {
	ctx := context.Background()
	prod := &captureProducer{}
	rec := NewStreamRecorder(prod)

	exchange := &domain.ExchangeRecord{ConversationID: "c1", CustomerText: "こんにちは"}
	if err := rec.RecordExchange(ctx, exchange); err != nil {
		t.Fatal(err)
	}
	if err := rec.RecordAnalysis(ctx, &domain.AnalysisRecord{Text: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := rec.RecordHandoff(ctx, &domain.HandoffRecord{ConversationID: "c1"}); err != nil {
		t.Fatal(err)
	}

	wantTypes := []string{out.JobRecordExchange, out.JobRecordAnalysis, out.JobRecordHandoff}
	if len(prod.jobs) != len(wantTypes) {
		t.Fatalf("enqueued %d jobs, want %d", len(prod.jobs), len(wantTypes))
	}
	for i, want := range wantTypes {
		if prod.jobs[i].Type != want {
			t.Errorf("jobs[%d].Type = %s, want %s", i, prod.jobs[i].Type, want)
		}
		if prod.jobs[i].ID == "" {
			t.Errorf("jobs[%d] has no id", i)
		}
	}

	var decoded domain.ExchangeRecord
	if err := json.Unmarshal(prod.jobs[0].Payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.ConversationID != "c1" || decoded.CustomerText != "こんにちは" {
		t.Errorf("payload = %+v", decoded)
	}
}

func TestPayload(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		wantErr bool
	}{
		{"ok", map[string]any{"data": `{"id":"1"}`}, false},
		{"missing", map[string]any{}, true},
		{"wrong type", map[string]any{"data": 42}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := payload(redis.XMessage{ID: "1-0", Values: tt.values})
			if (err != nil) != tt.wantErr {
				t.Errorf("payload() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAlertMessage(t *testing.T) {
	event := &domain.AlertEvent{
		Type:           domain.AlertEventHarassment,
		ConversationID: "conv-1",
		Severity:       domain.RiskCritical,
		Message:        "カスハラ検出（critical）",
		CreatedAt:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	msg, err := alertMessage(event)
	if err != nil {
		t.Fatalf("alertMessage() error = %v", err)
	}
	if string(msg.Key) != "conv-1" {
		t.Errorf("Key = %q, want conv-1", msg.Key)
	}
	if !msg.Time.Equal(event.CreatedAt) {
		t.Errorf("Time = %v, want %v", msg.Time, event.CreatedAt)
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["type"] != "harassment_detected" || headers["severity"] != "critical" {
		t.Errorf("Headers = %v", headers)
	}

	var decoded domain.AlertEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if decoded.Type != event.Type || decoded.ConversationID != event.ConversationID {
		t.Errorf("decoded = %+v", decoded)
	}
}
