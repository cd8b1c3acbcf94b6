package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleet-tracker/internal/config"
	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/metrics"
)

// Queue decouples the HTTP ingest handler from pipeline processing with a
// bounded channel and a worker pool. A full queue sheds load instead of
// stalling the transport.
type Queue struct {
	pipeline *Pipeline
	metrics  *metrics.Metrics
	logger   *zap.Logger

	workers int
	ch      chan *domain.IngestMessage
}

func NewQueue(p *Pipeline, m *metrics.Metrics, cfg config.PipelineConfig, logger *zap.Logger) *Queue {
	return &Queue{
		pipeline: p,
		metrics:  m,
		logger:   logger,
		workers:  cfg.Workers,
		ch:       make(chan *domain.IngestMessage, cfg.QueueSize),
	}
}

// Dispatch enqueues a message for processing. Returns false when the queue
// is full and the message was dropped.
func (q *Queue) Dispatch(msg *domain.IngestMessage) bool {
	select {
	case q.ch <- msg:
		return true
	default:
		q.metrics.QueueDrops.Inc()
		q.logger.Warn("ingest queue full, dropping message",
			zap.Int64("vehicle_id", msg.VehicleID),
		)
		return false
	}
}

// Depth reports the current backlog.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Run starts the worker pool and blocks until ctx is canceled. Messages
// still queued at shutdown are drained before workers exit.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					q.drain()
					return ctx.Err()
				case msg := <-q.ch:
					_ = q.pipeline.Ingest(ctx, msg)
				}
			}
		})
	}
	q.logger.Info("pipeline workers started", zap.Int("workers", q.workers))
	return g.Wait()
}

// drain processes the remaining backlog with a fresh context so in-flight
// data is not lost to the shutdown signal.
func (q *Queue) drain() {
	for {
		select {
		case msg := <-q.ch:
			_ = q.pipeline.Ingest(context.Background(), msg)
		default:
			return
		}
	}
}
