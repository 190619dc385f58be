package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/metrics"
)

type fakeRecorder struct {
	mu        sync.Mutex
	exchanges []domain.ExchangeRecord
	handoffs  []domain.HandoffRecord
	analyses  int
}

func (f *fakeRecorder) RecordExchange(_ context.Context, r *domain.ExchangeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, *r)
	return nil
}

func (f *fakeRecorder) RecordAnalysis(_ context.Context, _ *domain.AnalysisRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyses++
	return nil
}

func (f *fakeRecorder) RecordHandoff(_ context.Context, h *domain.HandoffRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handoffs = append(f.handoffs, *h)
	return nil
}

func encodeJob(t *testing.T, jobType string, payload any) []byte {
	t.Helper()
	p, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(&out.PersistJob{ID: "job-1", Type: jobType, Payload: p, CreatedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestPersistProcessor_Dispatch(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	proc := NewPersistProcessor(rec)

	tests := []struct {
		name    string
		jobType string
		payload any
	}{
		{"exchange", JobRecordExchange, domain.ExchangeRecord{ConversationID: "c1", CustomerText: "hi"}},
		{"analysis", JobRecordAnalysis, domain.AnalysisRecord{Text: "hi"}},
		{"handoff", JobRecordHandoff, domain.HandoffRecord{ConversationID: "c1", Status: domain.HandoffPending}},
		{"unknown is ignored", "something_else", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage(encodeJob(t, tt.jobType, tt.payload))
			if err != nil {
				t.Fatal(err)
			}
			if err := proc.Process(ctx, msg); err != nil {
				t.Errorf("Process() error = %v", err)
			}
		})
	}

	if len(rec.exchanges) != 1 || rec.exchanges[0].CustomerText != "hi" {
		t.Errorf("exchanges = %+v", rec.exchanges)
	}
	if rec.analyses != 1 || len(rec.handoffs) != 1 {
		t.Errorf("analyses = %d handoffs = %d, want 1 and 1", rec.analyses, len(rec.handoffs))
	}
}

func TestPersistProcessor_BadPayload(t *testing.T) {
	proc := NewPersistProcessor(&fakeRecorder{})
	msg := &Message{Type: JobRecordExchange, Payload: json.RawMessage(`"not an object"`)}
	if err := proc.Process(context.Background(), msg); err == nil {
		t.Error("expected a decode error")
	}
}

type flakyProcessor struct {
	failures int32
	calls    int32
}

func (f *flakyProcessor) Process(_ context.Context, _ *Message) error {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= atomic.LoadInt32(&f.failures) {
		return errors.New("transient")
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func testPool(proc Processor, maxRetries int) *Pool {
	cfg := DefaultPoolConfig()
	cfg.Workers = 2
	cfg.BatchSize = 1
	cfg.MaxRetries = maxRetries
	cfg.RetryBase = time.Millisecond
	p := NewPool(proc, cfg, zerolog.Nop())
	p.SetMetrics(metrics.NewRegistry(10))
	return p
}

func TestPool_RetriesThenSucceeds(t *testing.T) {
	proc := &flakyProcessor{failures: 1}
	p := testPool(proc, 3)
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	msg, err := ParseMessage(encodeJob(t, JobRecordAnalysis, domain.AnalysisRecord{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(msg); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return p.GetMetrics().JobsProcessed == 1 })
	if got := p.GetMetrics().JobsRetried; got != 1 {
		t.Errorf("JobsRetried = %d, want 1", got)
	}
}

func TestPool_ExhaustedJobsFail(t *testing.T) {
	proc := &flakyProcessor{failures: 100}
	p := testPool(proc, 1)
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	if err := p.Submit(&Message{ID: "x", Type: JobRecordAnalysis, Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return p.GetMetrics().JobsFailed == 1 })
	if got := atomic.LoadInt32(&proc.calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := testPool(&flakyProcessor{}, 0)
	if err := p.Submit(&Message{}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Submit() before Start err = %v, want ErrPoolStopped", err)
	}
}

func TestDispatcher_DropsMalformed(t *testing.T) {
	p := testPool(&flakyProcessor{}, 0)
	if err := NewDispatcher(p).Handle(context.Background(), "s", []byte("{")); err != nil {
		t.Errorf("malformed entry should be acked, got %v", err)
	}
}

func TestDispatcher_Handle(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		wantErr   bool
		processed int64
		failed    int64
	}{
		{"success is reported after processing", 0, false, 1, 0},
		{"failure is returned so the entry stays pending", 100, true, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &flakyProcessor{failures: tt.failures}
			p := testPool(proc, 3)
			if err := p.Start(); err != nil {
				t.Fatal(err)
			}
			defer p.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			err := NewDispatcher(p).Handle(ctx, "triage:persist", encodeJob(t, JobRecordAnalysis, domain.AnalysisRecord{}))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Handle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if errors.Is(err, context.DeadlineExceeded) {
				t.Fatal("job was never handed to a worker")
			}
			if got := atomic.LoadInt32(&proc.calls); got != 1 {
				t.Errorf("calls = %d, want 1", got)
			}
			m := p.GetMetrics()
			if m.JobsProcessed != tt.processed || m.JobsFailed != tt.failed {
				t.Errorf("processed = %d failed = %d, want %d and %d", m.JobsProcessed, m.JobsFailed, tt.processed, tt.failed)
			}
			if m.JobsRetried != 0 {
				t.Errorf("JobsRetried = %d, want 0", m.JobsRetried)
			}
		})
	}
}

func TestPool_SingleJobRunsWithoutStop(t *testing.T) {
	proc := &flakyProcessor{}
	p := testPool(proc, 0)
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	if err := p.Submit(&Message{ID: "one", Type: JobRecordAnalysis, Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&proc.calls) == 1 })
}
