package worker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"triage_server/pkg/metrics"
)

// ErrPoolStopped is returned when a job is submitted to a stopped pool.
var ErrPoolStopped = errors.New("worker pool is not running")

// Processor handles one job.
type Processor interface {
	Process(ctx context.Context, msg *Message) error
}

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers        int
	BatchSize      int
	WorkerChanSize int
	JobTimeout     time.Duration
	MaxRetries     int
	RetryBase      time.Duration
	DLQSize        int
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        8,
		BatchSize:      1,
		WorkerChanSize: 100,
		JobTimeout:     30 * time.Second,
		MaxRetries:     3,
		RetryBase:      time.Second,
		DLQSize:        100,
	}
}

// PoolMetrics holds pool metrics.
type PoolMetrics struct {
	JobsProcessed  int64 `json:"jobs_processed"`
	JobsFailed     int64 `json:"jobs_failed"`
	JobsRetried    int64 `json:"jobs_retried"`
	AvgProcessTime int64 `json:"avg_process_ms"`
	InFlight       int32 `json:"in_flight"`
}

// Pool runs jobs on a go-pkgz/pool worker group, retrying failures with
// exponential backoff and parking exhausted jobs on an in-process DLQ.
type Pool struct {
	processor Processor
	config    *PoolConfig
	registry  *metrics.Registry

	group *pool.WorkerGroup[*Message]

	ctx    context.Context
	cancel context.CancelFunc

	metrics PoolMetrics
	log     zerolog.Logger

	dlq   chan *Message
	dlqWg sync.WaitGroup

	started bool
	mu      sync.Mutex
}

// messageWorker implements pool.Worker.
type messageWorker struct {
	pool *Pool
}

func (w *messageWorker) Do(ctx context.Context, msg *Message) error {
	return w.pool.processJob(ctx, msg)
}

func NewPool(processor Processor, config *PoolConfig, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		processor: processor,
		config:    config,
		registry:  metrics.Global(),
		ctx:       ctx,
		cancel:    cancel,
		log:       log.With().Str("component", "worker_pool").Logger(),
		dlq:       make(chan *Message, config.DLQSize),
	}
}

func (p *Pool) SetMetrics(r *metrics.Registry) {
	p.registry = r
}

// Start starts the worker pool.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	// pool.New accumulates 10 items per worker unless told otherwise, and
	// partial batches only flush on Close. 0 submits each job directly.
	batch := 0
	if p.config.BatchSize > 1 {
		batch = p.config.BatchSize
	}
	p.group = pool.New[*Message](p.config.Workers, &messageWorker{pool: p}).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithBatchSize(batch).
		WithContinueOnError()

	if err := p.group.Go(p.ctx); err != nil {
		return err
	}
	p.started = true

	p.dlqWg.Add(1)
	go p.dlqProcessor()

	p.log.Info().
		Int("workers", p.config.Workers).
		Int("batch_size", p.config.BatchSize).
		Msg("worker pool started")
	return nil
}

// Stop drains submitted jobs and stops the pool.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := p.group.Close(closeCtx); err != nil {
		p.log.Warn().Err(err).Msg("error closing pool")
	}

	p.cancel()
	close(p.dlq)
	p.dlqWg.Wait()

	p.log.Info().
		Int64("processed", atomic.LoadInt64(&p.metrics.JobsProcessed)).
		Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
		Msg("worker pool stopped")
}

// Submit submits a job to the pool.
func (p *Pool) Submit(msg *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return ErrPoolStopped
	}
	atomic.AddInt32(&p.metrics.InFlight, 1)
	p.group.Submit(msg)
	return nil
}

// Do submits msg and waits for its single attempt. The caller owns retries,
// so a failed job is neither retried here nor parked on the DLQ.
func (p *Pool) Do(ctx context.Context, msg *Message) error {
	msg.done = make(chan error, 1)
	if err := p.Submit(msg); err != nil {
		return err
	}
	select {
	case err := <-msg.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) processJob(ctx context.Context, msg *Message) error {
	start := time.Now()
	defer atomic.AddInt32(&p.metrics.InFlight, -1)

	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	err := p.processor.Process(jobCtx, msg)
	elapsed := time.Since(start)
	p.updateAvgProcessTime(elapsed.Milliseconds())
	p.registry.RecordLatency("worker."+msg.Type, elapsed)

	if err == nil {
		atomic.AddInt64(&p.metrics.JobsProcessed, 1)
		p.registry.Inc("worker.processed")
		msg.report(nil)
		return nil
	}

	p.log.Error().
		Err(err).
		Str("job_id", msg.ID).
		Str("job_type", msg.Type).
		Int("retries", msg.Retries).
		Msg("job processing failed")

	if msg.done != nil {
		atomic.AddInt64(&p.metrics.JobsFailed, 1)
		p.registry.Inc("worker.failed")
		msg.report(err)
		return err
	}

	if msg.Retries < p.config.MaxRetries {
		msg.Retries++
		atomic.AddInt64(&p.metrics.JobsRetried, 1)
		time.AfterFunc(p.backoff(msg.Retries), func() {
			if err := p.Submit(msg); err != nil {
				p.toDLQ(msg)
			}
		})
		return err
	}

	atomic.AddInt64(&p.metrics.JobsFailed, 1)
	p.registry.Inc("worker.failed")
	p.toDLQ(msg)
	return err
}

// backoff is base * 2^retries plus up to 500ms of jitter.
func (p *Pool) backoff(retries int) time.Duration {
	base := p.config.RetryBase * time.Duration(1<<retries)
	return base + time.Duration(rand.Intn(500))*time.Millisecond
}

func (p *Pool) toDLQ(msg *Message) {
	defer func() {
		// dlq is closed once Stop has run
		if recover() != nil {
			p.log.Error().Str("job_id", msg.ID).Msg("DLQ closed, job lost")
		}
	}()
	select {
	case p.dlq <- msg:
	default:
		p.log.Error().Str("job_id", msg.ID).Msg("DLQ full, job lost")
	}
}

func (p *Pool) dlqProcessor() {
	defer p.dlqWg.Done()
	for msg := range p.dlq {
		p.log.Error().
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			Int("retries", msg.Retries).
			RawJSON("payload", msg.Payload).
			Msg("DLQ: job permanently failed")
	}
}

func (p *Pool) updateAvgProcessTime(elapsed int64) {
	current := atomic.LoadInt64(&p.metrics.AvgProcessTime)
	if current == 0 {
		atomic.StoreInt64(&p.metrics.AvgProcessTime, elapsed)
		return
	}
	atomic.StoreInt64(&p.metrics.AvgProcessTime, (current*9+elapsed)/10)
}

// GetMetrics returns current pool metrics.
func (p *Pool) GetMetrics() PoolMetrics {
	return PoolMetrics{
		JobsProcessed:  atomic.LoadInt64(&p.metrics.JobsProcessed),
		JobsFailed:     atomic.LoadInt64(&p.metrics.JobsFailed),
		JobsRetried:    atomic.LoadInt64(&p.metrics.JobsRetried),
		AvgProcessTime: atomic.LoadInt64(&p.metrics.AvgProcessTime),
		InFlight:       atomic.LoadInt32(&p.metrics.InFlight),
	}
}

// =============================================================================
// Dispatcher - stream consumer → pool
// =============================================================================

// Dispatcher decodes stream entries and hands them to the pool. It satisfies
// the stream consumer's JobHandler.
type Dispatcher struct {
	pool *Pool
}

func NewDispatcher(p *Pool) *Dispatcher {
	return &Dispatcher{pool: p}
}

// Handle returns only after the job has been processed, so the consumer acks
// persisted entries and leaves failed ones pending for redelivery.
func (d *Dispatcher) Handle(ctx context.Context, _ string, data []byte) error {
	msg, err := ParseMessage(data)
	if err != nil {
		// Malformed entries are acked and dropped; they can never succeed.
		d.pool.log.Error().Err(err).Msg("dropping malformed persist job")
		return nil
	}
	return d.pool.Do(ctx, msg)
}
