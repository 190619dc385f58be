package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"triage_server/adapter/in/worker"
	"triage_server/adapter/out/messaging"
	"triage_server/config"
	"triage_server/pkg/logger"

	"github.com/rs/zerolog"
)

const consumerGroup = "triage-persisters"

// Worker drains persist jobs from the Redis stream into Postgres and the
// Mongo archive.
type Worker struct {
	pool     *worker.Pool
	consumer *messaging.Consumer
	deps     *Dependencies
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	zlog     zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	zlog := logger.Component("worker")

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerMax > 0 {
		poolConfig.Workers = cfg.WorkerMax
	}
	if cfg.WorkerJobs > 0 {
		poolConfig.WorkerChanSize = cfg.WorkerJobs
	}
	if cfg.ConsumerMaxRetries > 0 {
		poolConfig.MaxRetries = cfg.ConsumerMaxRetries
	}

	pool := worker.NewPool(worker.NewPersistProcessor(deps.Sinks), poolConfig, zlog)
	pool.SetMetrics(deps.Metrics)

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		pool:   pool,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}

	if deps.Redis != nil {
		w.consumer = messaging.NewConsumer(deps.Redis, messaging.ConsumerConfig{
			Group:                consumerGroup,
			Consumer:             cfg.WorkerID,
			Streams:              []string{messaging.StreamPersist},
			Handler:              worker.NewDispatcher(pool),
			Logger:               zlog,
			BatchSize:            int64(cfg.ConsumerBatchSize),
			BlockTimeout:         time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
			PendingCheckInterval: time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
			MaxDeliveries:        int64(cfg.ConsumerMaxRetries) + 1,
		})
		logger.Info("Redis Stream Consumer configured (group=%s, consumer=%s)", consumerGroup, cfg.WorkerID)
	} else {
		logger.Warn("Redis not available, worker has nothing to consume")
	}

	return w, cleanup, nil
}

// Start blocks until Stop is called.
func (w *Worker) Start() {
	if err := w.pool.Start(); err != nil {
		w.zlog.Error().Err(err).Msg("worker pool failed to start")
		return
	}

	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.zlog.Info().Msg("Starting Redis Stream Consumer...")
			if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
			}
		}()
	}

	<-w.ctx.Done()
}

// Stop stops the consumer first, then drains the pool.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.pool.Stop()

	m := w.pool.GetMetrics()
	w.zlog.Info().
		Int64("processed", m.JobsProcessed).
		Int64("failed", m.JobsFailed).
		Msg("worker stopped")
}
