// Command daily-summary computes per-vehicle operating summaries for one
// calendar day and upserts them into daily_vehicle_summary. Meant to run
// from cron shortly after midnight; re-running a day is safe.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"fleet-tracker/internal/config"
	"fleet-tracker/internal/logging"
	"fleet-tracker/internal/rollup"
	"fleet-tracker/internal/store"
)

func main() {
	dateFlag := flag.String("date", "", "target date (YYYY-MM-DD), defaults to yesterday")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	day := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if *dateFlag != "" {
		day, err = time.ParseInLocation("2006-01-02", *dateFlag, time.UTC)
		if err != nil {
			logger.Fatal("invalid --date", zap.String("date", *dateFlag), zap.Error(err))
		}
	}

	if err := run(context.Background(), cfg, logger, day); err != nil {
		logger.Fatal("daily summary failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, day time.Time) error {
	pool, err := store.Connect(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	rollups := store.NewRollupStore(pool, logger)

	from := day
	to := day.Add(24 * time.Hour)
	vehicles, err := rollups.VehiclesWithReadings(ctx, from, to)
	if err != nil {
		return err
	}
	logger.Info("daily summary started",
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("vehicles", len(vehicles)),
	)

	var totalPoints, totalViolations int64
	for _, vehicleID := range vehicles {
		readings, err := rollups.ReadingsForDay(ctx, vehicleID, day)
		if err != nil {
			return err
		}

		summary := rollup.ComputeDailySummary(vehicleID, day, readings)
		if err := rollups.UpsertDailySummary(ctx, &summary); err != nil {
			return err
		}

		totalPoints += summary.TotalPoints
		totalViolations += summary.SpeedingViolations + summary.CriticalViolations

		logger.Info("vehicle summarized",
			zap.Int64("vehicle_id", vehicleID),
			zap.Int64("points", summary.TotalPoints),
			zap.Float64("distance_km", summary.TotalDistanceKm),
			zap.Float64("max_speed", summary.MaxSpeed),
			zap.Int64("speeding", summary.SpeedingViolations),
			zap.Int64("critical", summary.CriticalViolations),
		)
	}

	logger.Info("daily summary complete",
		zap.Int("vehicles", len(vehicles)),
		zap.Int64("points", totalPoints),
		zap.Int64("violations", totalViolations),
	)
	return nil
}
