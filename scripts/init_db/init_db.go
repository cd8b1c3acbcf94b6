// Command init_db provisions the TimescaleDB schema: the readings
// hypertable, the rejection audit log, alerts, rollups, and the daily
// summary table. Every statement is idempotent, so re-running against an
// existing database is safe.
package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"fleet-tracker/internal/config"
	"fleet-tracker/internal/logging"
	"fleet-tracker/internal/store"
)

type step struct {
	name string
	sql  string
}

var steps = []step{
	{
		name: "timescaledb extension",
		sql:  `CREATE EXTENSION IF NOT EXISTS timescaledb`,
	},
	{
		name: "vehicle_readings table",
		sql: `
			CREATE TABLE IF NOT EXISTS vehicle_readings (
				ts          TIMESTAMPTZ      NOT NULL,
				received_at TIMESTAMPTZ      NOT NULL,
				vehicle_id  BIGINT           NOT NULL,
				latitude    DOUBLE PRECISION NOT NULL,
				longitude   DOUBLE PRECISION NOT NULL,
				speed_kmh   DOUBLE PRECISION NOT NULL DEFAULT 0,
				heading     DOUBLE PRECISION NOT NULL DEFAULT 0,
				engine_on   BOOLEAN          NOT NULL DEFAULT true
			)`,
	},
	{
		name: "vehicle_readings hypertable",
		sql: `
			SELECT create_hypertable(
				'vehicle_readings', 'ts',
				chunk_time_interval => INTERVAL '1 day',
				if_not_exists => TRUE
			)`,
	},
	{
		name: "vehicle_readings index",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_readings_vehicle_ts
			ON vehicle_readings (vehicle_id, ts DESC)`,
	},
	{
		name: "vehicle_readings compression settings",
		sql: `
			ALTER TABLE vehicle_readings SET (
				timescaledb.compress,
				timescaledb.compress_segmentby = 'vehicle_id',
				timescaledb.compress_orderby = 'ts DESC'
			)`,
	},
	{
		name: "rejected_readings table",
		sql: `
			CREATE TABLE IF NOT EXISTS rejected_readings (
				id          BIGSERIAL PRIMARY KEY,
				raw_payload TEXT        NOT NULL,
				reasons     TEXT[]      NOT NULL,
				rejected_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
	},
	{
		name: "rejected_readings index",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_rejected_at
			ON rejected_readings (rejected_at DESC)`,
	},
	{
		name: "vehicle_alerts table",
		sql: `
			CREATE TABLE IF NOT EXISTS vehicle_alerts (
				id           UUID PRIMARY KEY,
				vehicle_id   BIGINT      NOT NULL,
				alert_type   TEXT        NOT NULL CHECK (alert_type IN
					('SPEEDING', 'GEOFENCE', 'IDLE', 'ENGINE_OFF_MOVING')),
				severity     TEXT        NOT NULL CHECK (severity IN
					('LOW', 'MEDIUM', 'HIGH', 'CRITICAL')),
				message      TEXT        NOT NULL,
				triggered_at TIMESTAMPTZ NOT NULL,
				resolved_at  TIMESTAMPTZ,
				is_resolved  BOOLEAN     NOT NULL DEFAULT false
			)`,
	},
	{
		// One active alert per (vehicle, type); the ingest path's
		// conditional upsert arbitrates on this index.
		name: "vehicle_alerts active dedup index",
		sql: `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_active
			ON vehicle_alerts (vehicle_id, alert_type)
			WHERE NOT is_resolved`,
	},
	{
		name: "vehicle_alerts listing index",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_alerts_vehicle_triggered
			ON vehicle_alerts (vehicle_id, triggered_at DESC)`,
	},
	{
		name: "hourly_rollups table",
		sql: `
			CREATE TABLE IF NOT EXISTS hourly_rollups (
				vehicle_id   BIGINT           NOT NULL,
				bucket       TIMESTAMPTZ      NOT NULL,
				avg_speed    DOUBLE PRECISION NOT NULL,
				max_speed    DOUBLE PRECISION NOT NULL,
				min_speed    DOUBLE PRECISION NOT NULL,
				sample_count BIGINT           NOT NULL,
				PRIMARY KEY (vehicle_id, bucket)
			)`,
	},
	{
		name: "daily_vehicle_summary table",
		sql: `
			CREATE TABLE IF NOT EXISTS daily_vehicle_summary (
				vehicle_id              BIGINT           NOT NULL,
				summary_date            DATE             NOT NULL,
				total_distance_km       DOUBLE PRECISION NOT NULL DEFAULT 0,
				avg_speed               DOUBLE PRECISION NOT NULL DEFAULT 0,
				max_speed               DOUBLE PRECISION NOT NULL DEFAULT 0,
				total_points            BIGINT           NOT NULL DEFAULT 0,
				speeding_violations     BIGINT           NOT NULL DEFAULT 0,
				critical_violations     BIGINT           NOT NULL DEFAULT 0,
				engine_off_moving       BIGINT           NOT NULL DEFAULT 0,
				total_driving_minutes   DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at              TIMESTAMPTZ      NOT NULL DEFAULT now(),
				PRIMARY KEY (vehicle_id, summary_date)
			)`,
	},
}

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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.DB, logger)
	if err != nil {
		logger.Fatal("connect failed", zap.Error(err))
	}
	defer pool.Close()

	for _, s := range steps {
		if _, err := pool.Exec(ctx, s.sql); err != nil {
			logger.Fatal("schema step failed", zap.String("step", s.name), zap.Error(err))
		}
		logger.Info("schema step applied", zap.String("step", s.name))
	}

	verify(ctx, pool, logger)
	logger.Info("database initialized")
}

// verify confirms the hypertable exists and reports its chunk layout.
func verify(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) {
	var chunkInterval string
	err := pool.QueryRow(ctx, `
		SELECT d.time_interval::text
		FROM timescaledb_information.dimensions d
		WHERE d.hypertable_name = 'vehicle_readings'
	`).Scan(&chunkInterval)
	if err != nil {
		logger.Fatal("hypertable verification failed", zap.Error(err))
	}
	logger.Info("hypertable verified",
		zap.String("table", "vehicle_readings"),
		zap.String("chunk_interval", chunkInterval),
	)
}
