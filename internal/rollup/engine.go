package rollup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fleet-tracker/internal/config"
	"fleet-tracker/internal/metrics"
)

// Materializer is the store seam for the rollup pass.
type Materializer interface {
	MaterializeHourly(ctx context.Context, from, to time.Time) (int64, error)
}

// Compressor compresses series chunks past the retention threshold.
type Compressor interface {
	CompressChunks(ctx context.Context, olderThan time.Duration) (int, error)
}

// Engine periodically materializes hourly rollups over a lagging window.
// The window trails now by the configured lag so late-arriving readings are
// included, and spans more than one interval so each hour is recomputed at
// least twice before it leaves the window.
type Engine struct {
	store      Materializer
	compressor Compressor
	metrics    *metrics.Metrics
	logger     *zap.Logger

	interval      time.Duration
	lag           time.Duration
	span          time.Duration
	compressAfter time.Duration

	now func() time.Time
}

func NewEngine(store Materializer, compressor Compressor, m *metrics.Metrics, cfg config.RollupConfig, logger *zap.Logger) *Engine {
	return &Engine{
		store:         store,
		compressor:    compressor,
		metrics:       m,
		logger:        logger,
		interval:      cfg.Interval,
		lag:           cfg.WindowLag,
		span:          cfg.WindowSpan,
		compressAfter: cfg.CompressAfter,
		now:           time.Now,
	}
}

// window returns the hour-aligned [from, to) range to materialize.
func (e *Engine) window(now time.Time) (time.Time, time.Time) {
	ceiling := now.UTC().Truncate(time.Hour).Add(-e.lag)
	return ceiling.Add(-e.span), ceiling
}

// RunOnce materializes the current window and, if configured, compresses old
// chunks. A failed compression pass does not fail the rollup.
func (e *Engine) RunOnce(ctx context.Context) error {
	from, to := e.window(e.now())

	rows, err := e.store.MaterializeHourly(ctx, from, to)
	if err != nil {
		e.metrics.RollupFailures.Inc()
		e.logger.Error("rollup pass failed",
			zap.Time("from", from),
			zap.Time("to", to),
			zap.Error(err),
		)
		return err
	}
	e.metrics.RollupRuns.Inc()
	e.logger.Info("rollup pass complete",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int64("rows", rows),
	)

	if e.compressor != nil && e.compressAfter > 0 {
		n, err := e.compressor.CompressChunks(ctx, e.compressAfter)
		if err != nil {
			e.logger.Warn("chunk compression pass failed", zap.Error(err))
		} else if n > 0 {
			e.metrics.ChunksCompressed.Add(float64(n))
			e.logger.Info("chunks compressed", zap.Int("count", n))
		}
	}
	return nil
}

// Run executes an immediate pass, then one per interval until ctx is
// canceled. Pass failures are logged and the loop keeps going.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.RunOnce(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.RunOnce(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}
