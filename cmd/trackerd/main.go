package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleet-tracker/internal/alerts"
	"fleet-tracker/internal/config"
	"fleet-tracker/internal/logging"
	"fleet-tracker/internal/metrics"
	"fleet-tracker/internal/pipeline"
	"fleet-tracker/internal/rollup"
	"fleet-tracker/internal/store"
	transporthttp "fleet-tracker/internal/transport/http"
	"fleet-tracker/pkg/validate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("trackerd exited", zap.Error(err))
	}
	logger.Info("trackerd stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	pool, err := store.Connect(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	live, err := store.NewLiveStore(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer live.Close()

	readings := store.NewReadingStore(pool, logger)
	rejections := store.NewRejectionStore(pool, logger)
	alertStore := store.NewAlertStore(pool, logger)
	rollups := store.NewRollupStore(pool, logger)

	evaluator := alerts.NewEvaluator(alertStore, live, m, logger)
	pipe := pipeline.New(readings, rejections, evaluator, live, m, cfg.Pipeline, logger)
	queue := pipeline.NewQueue(pipe, m, cfg.Pipeline, logger)
	engine := rollup.NewEngine(rollups, readings, m, cfg.Rollup, logger)

	router := transporthttp.NewRouter(transporthttp.Deps{
		Dispatcher: queue,
		Readings:   readings,
		Alerts:     alertStore,
		Rollups:    rollups,
		Stats:      pipe,
		Subscriber: live,
		Validator:  validate.New(),
		Metrics:    m,
		Logger:     logger,
	})
	server := transporthttp.NewServer(cfg.HTTP, router, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return queue.Run(ctx) })
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	return g.Wait()
}
