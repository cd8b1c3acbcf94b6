package pipeline

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"fleet-tracker/internal/config"
	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/metrics"
	"fleet-tracker/internal/quality"
)

// ReadingWriter appends accepted readings to the series store.
type ReadingWriter interface {
	Insert(ctx context.Context, r *domain.Reading) error
}

// RejectionWriter appends quality failures to the audit log.
type RejectionWriter interface {
	Insert(ctx context.Context, rr *domain.RejectedReading) error
}

// Evaluator runs the alert policy chain on an accepted reading.
type Evaluator interface {
	Evaluate(ctx context.Context, r *domain.Reading) error
}

// LiveUpdater maintains the hot cache and dead-letter sink.
type LiveUpdater interface {
	UpdateState(ctx context.Context, r *domain.Reading) error
	DeadLetter(ctx context.Context, raw []byte) error
}

// Stats is a point-in-time snapshot of the ingest tallies.
type Stats struct {
	Accepted            int64 `json:"accepted"`
	Rejected            int64 `json:"rejected"`
	PersistenceFailures int64 `json:"persistenceFailures"`
}

// Pipeline drives one message through quality gating, persistence, live
// state, and alert evaluation. Every failure past the quality gate is
// contained: a bad message or a down dependency never unwinds the caller.
type Pipeline struct {
	readings   ReadingWriter
	rejections RejectionWriter
	evaluator  Evaluator
	live       LiveUpdater
	metrics    *metrics.Metrics
	logger     *zap.Logger

	sampleEvery int64

	accepted     atomic.Int64
	rejected     atomic.Int64
	persistFails atomic.Int64
}

func New(
	readings ReadingWriter,
	rejections RejectionWriter,
	evaluator Evaluator,
	live LiveUpdater,
	m *metrics.Metrics,
	cfg config.PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	sampleEvery := cfg.LogSampleEvery
	if sampleEvery < 1 {
		sampleEvery = 1
	}
	return &Pipeline{
		readings:    readings,
		rejections:  rejections,
		evaluator:   evaluator,
		live:        live,
		metrics:     m,
		logger:      logger,
		sampleEvery: sampleEvery,
	}
}

// Ingest processes one message end to end. The returned error is always nil
// today; the signature leaves room for backpressure decisions at the queue.
func (p *Pipeline) Ingest(ctx context.Context, msg *domain.IngestMessage) error {
	if reasons := quality.Validate(msg); len(reasons) > 0 {
		p.reject(ctx, msg, reasons)
		return nil
	}

	reading := msg.Reading(time.Now().UTC())

	if err := p.readings.Insert(ctx, &reading); err != nil {
		p.persistFails.Inc()
		p.metrics.PersistenceFailures.Inc()
		p.logger.Error("reading persistence failed",
			zap.Int64("vehicle_id", reading.VehicleID),
			zap.Error(err),
		)
		p.deadLetter(ctx, msg)
		return nil
	}

	if p.live != nil {
		if err := p.live.UpdateState(ctx, &reading); err != nil {
			p.logger.Warn("live state update failed",
				zap.Int64("vehicle_id", reading.VehicleID),
				zap.Error(err),
			)
		}
	}

	if err := p.evaluator.Evaluate(ctx, &reading); err != nil {
		p.logger.Error("alert evaluation failed",
			zap.Int64("vehicle_id", reading.VehicleID),
			zap.Error(err),
		)
	}

	n := p.accepted.Inc()
	p.metrics.ReadingsAccepted.Inc()
	if n%p.sampleEvery == 0 {
		p.logger.Info("ingest progress",
			zap.Int64("accepted", n),
			zap.Int64("rejected", p.rejected.Load()),
		)
	}
	return nil
}

func (p *Pipeline) reject(ctx context.Context, msg *domain.IngestMessage, reasons []string) {
	p.rejected.Inc()
	p.metrics.ReadingsRejected.Inc()
	p.logger.Debug("reading rejected",
		zap.Int64("vehicle_id", msg.VehicleID),
		zap.Strings("reasons", reasons),
	)

	rr := &domain.RejectedReading{
		RawPayload: msg.Raw,
		Reasons:    reasons,
		RejectedAt: time.Now().UTC(),
	}
	if err := p.rejections.Insert(ctx, rr); err != nil {
		// The audit write is itself best-effort; losing it must not block
		// ingestion.
		p.logger.Error("rejection audit write failed", zap.Error(err))
	}
}

func (p *Pipeline) deadLetter(ctx context.Context, msg *domain.IngestMessage) {
	if p.live == nil || len(msg.Raw) == 0 {
		return
	}
	if err := p.live.DeadLetter(ctx, msg.Raw); err != nil {
		p.logger.Error("dead-letter push failed", zap.Error(err))
		return
	}
	p.metrics.DeadLettered.Inc()
}

// Stats snapshots the tallies without resetting them.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Accepted:            p.accepted.Load(),
		Rejected:            p.rejected.Load(),
		PersistenceFailures: p.persistFails.Load(),
	}
}

// ResetStats zeroes the tallies and returns the values they held.
func (p *Pipeline) ResetStats() Stats {
	return Stats{
		Accepted:            p.accepted.Swap(0),
		Rejected:            p.rejected.Swap(0),
		PersistenceFailures: p.persistFails.Swap(0),
	}
}
