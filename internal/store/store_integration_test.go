//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"fleet-tracker/internal/domain"
)

// startTimescale brings up a throwaway TimescaleDB and applies the schema
// pieces these tests touch.
func startTimescale(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "timescale/timescaledb:latest-pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "fleet_user",
				"POSTGRES_PASSWORD": "fleet_pass",
				"POSTGRES_DB":       "fleet_tracking",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	dsn := "postgres://fleet_user:fleet_pass@" + host + ":" + port.Port() + "/fleet_tracking?sslmode=disable"

	var pool *pgxpool.Pool
	deadline := time.Now().Add(time.Minute)
	for {
		pool, err = pgxpool.New(ctx, dsn)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		if time.Now().After(deadline) {
			t.Fatalf("database not ready: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Cleanup(pool.Close)

	schema := []string{
		`CREATE EXTENSION IF NOT EXISTS timescaledb`,
		`CREATE TABLE vehicle_readings (
			ts          TIMESTAMPTZ      NOT NULL,
			received_at TIMESTAMPTZ      NOT NULL,
			vehicle_id  BIGINT           NOT NULL,
			latitude    DOUBLE PRECISION NOT NULL,
			longitude   DOUBLE PRECISION NOT NULL,
			speed_kmh   DOUBLE PRECISION NOT NULL DEFAULT 0,
			heading     DOUBLE PRECISION NOT NULL DEFAULT 0,
			engine_on   BOOLEAN          NOT NULL DEFAULT true
		)`,
		`SELECT create_hypertable('vehicle_readings', 'ts', chunk_time_interval => INTERVAL '1 day')`,
		`CREATE TABLE vehicle_alerts (
			id           UUID PRIMARY KEY,
			vehicle_id   BIGINT      NOT NULL,
			alert_type   TEXT        NOT NULL,
			severity     TEXT        NOT NULL,
			message      TEXT        NOT NULL,
			triggered_at TIMESTAMPTZ NOT NULL,
			resolved_at  TIMESTAMPTZ,
			is_resolved  BOOLEAN     NOT NULL DEFAULT false
		)`,
		`CREATE UNIQUE INDEX idx_alerts_active
			ON vehicle_alerts (vehicle_id, alert_type) WHERE NOT is_resolved`,
		`CREATE TABLE hourly_rollups (
			vehicle_id   BIGINT           NOT NULL,
			bucket       TIMESTAMPTZ      NOT NULL,
			avg_speed    DOUBLE PRECISION NOT NULL,
			max_speed    DOUBLE PRECISION NOT NULL,
			min_speed    DOUBLE PRECISION NOT NULL,
			sample_count BIGINT           NOT NULL,
			PRIMARY KEY (vehicle_id, bucket)
		)`,
		`CREATE TABLE daily_vehicle_summary (
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
	}
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("schema: %v", err)
		}
	}
	return pool
}

func TestReadingRoundTrip(t *testing.T) {
	pool := startTimescale(t)
	readings := NewReadingStore(pool, zap.NewNop())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	r := &domain.Reading{
		VehicleID:  1,
		Timestamp:  now,
		ReceivedAt: now,
		Latitude:   10.8,
		Longitude:  106.7,
		SpeedKmh:   42.5,
		Heading:    90,
		EngineOn:   true,
	}
	if err := readings.Insert(ctx, r); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := readings.FindLatest(ctx, 1)
	if err != nil {
		t.Fatalf("FindLatest: %v", err)
	}
	if got.VehicleID != r.VehicleID || !got.Timestamp.Equal(r.Timestamp) ||
		got.Latitude != r.Latitude || got.Longitude != r.Longitude ||
		got.SpeedKmh != r.SpeedKmh || got.Heading != r.Heading || got.EngineOn != r.EngineOn {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestFleetLatestOnePerVehicle(t *testing.T) {
	pool := startTimescale(t)
	readings := NewReadingStore(pool, zap.NewNop())
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var batch []*domain.Reading
	for vehicle := int64(1); vehicle <= 3; vehicle++ {
		for i := 0; i < 4; i++ {
			batch = append(batch, &domain.Reading{
				VehicleID:  vehicle,
				Timestamp:  base.Add(time.Duration(i) * time.Minute),
				ReceivedAt: base,
				Latitude:   10.8,
				Longitude:  106.7,
				SpeedKmh:   float64(10 * i),
				EngineOn:   true,
			})
		}
	}
	if err := readings.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	latest, err := readings.FindAllLatest(ctx)
	if err != nil {
		t.Fatalf("FindAllLatest: %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("got %d rows, want 3", len(latest))
	}
	for _, r := range latest {
		if r.SpeedKmh != 30 {
			t.Fatalf("vehicle %d: latest speed = %v, want 30", r.VehicleID, r.SpeedKmh)
		}
	}
}

func TestAlertDedupUnderUpsert(t *testing.T) {
	pool := startTimescale(t)
	alerts := NewAlertStore(pool, zap.NewNop())
	ctx := context.Background()

	first := &domain.Alert{
		ID:          uuid.New(),
		VehicleID:   7,
		Type:        domain.AlertSpeeding,
		Severity:    domain.SeverityHigh,
		Message:     "speeding: 90.0 km/h exceeds 80 km/h limit",
		TriggeredAt: time.Now().UTC(),
	}
	created, err := alerts.UpsertActive(ctx, first)
	if err != nil {
		t.Fatalf("UpsertActive: %v", err)
	}
	if !created {
		t.Fatalf("first upsert must create")
	}

	second := &domain.Alert{
		ID:          uuid.New(),
		VehicleID:   7,
		Type:        domain.AlertSpeeding,
		Severity:    domain.SeverityCritical,
		Message:     "critical speeding: 130.0 km/h exceeds 120 km/h limit",
		TriggeredAt: time.Now().UTC(),
	}
	created, err = alerts.UpsertActive(ctx, second)
	if err != nil {
		t.Fatalf("UpsertActive refresh: %v", err)
	}
	if created {
		t.Fatalf("second upsert must refresh, not create")
	}
	if second.ID != first.ID {
		t.Fatalf("refresh must return the existing row id")
	}

	active, err := alerts.List(ctx, boolPtr(false))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("got %d active alerts, want 1", len(active))
	}
	if active[0].Severity != domain.SeverityCritical {
		t.Fatalf("refresh did not update severity: %+v", active[0])
	}

	// After resolution a new violation creates a fresh row.
	if err := alerts.Resolve(ctx, first.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	third := &domain.Alert{
		ID:          uuid.New(),
		VehicleID:   7,
		Type:        domain.AlertSpeeding,
		Severity:    domain.SeverityHigh,
		Message:     "speeding: 95.0 km/h exceeds 80 km/h limit",
		TriggeredAt: time.Now().UTC(),
	}
	created, err = alerts.UpsertActive(ctx, third)
	if err != nil {
		t.Fatalf("UpsertActive after resolve: %v", err)
	}
	if !created || third.ID == first.ID {
		t.Fatalf("post-resolve violation must open a new alert")
	}
}

func TestResolveSemantics(t *testing.T) {
	pool := startTimescale(t)
	alerts := NewAlertStore(pool, zap.NewNop())
	ctx := context.Background()

	a := &domain.Alert{
		ID:          uuid.New(),
		VehicleID:   3,
		Type:        domain.AlertEngineOffMoving,
		Severity:    domain.SeverityMedium,
		Message:     "vehicle moving at 12.0 km/h with engine off",
		TriggeredAt: time.Now().UTC(),
	}
	if _, err := alerts.UpsertActive(ctx, a); err != nil {
		t.Fatalf("UpsertActive: %v", err)
	}

	if err := alerts.Resolve(ctx, a.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Second resolve of the same alert is an idempotent no-op.
	if err := alerts.Resolve(ctx, a.ID); err != nil {
		t.Fatalf("repeat Resolve: %v", err)
	}
	// Unknown id is a genuine NotFound.
	if err := alerts.Resolve(ctx, uuid.New()); err == nil {
		t.Fatalf("unknown id must fail")
	}
}

func TestMaterializeHourlyIdempotent(t *testing.T) {
	pool := startTimescale(t)
	readings := NewReadingStore(pool, zap.NewNop())
	rollups := NewRollupStore(pool, zap.NewNop())
	ctx := context.Background()

	hour := time.Now().UTC().Truncate(time.Hour).Add(-3 * time.Hour)
	var batch []*domain.Reading
	for i, speed := range []float64{20, 40, 60} {
		batch = append(batch, &domain.Reading{
			VehicleID:  5,
			Timestamp:  hour.Add(time.Duration(i*10) * time.Minute),
			ReceivedAt: hour,
			Latitude:   10.8,
			Longitude:  106.7,
			SpeedKmh:   speed,
			EngineOn:   true,
		})
	}
	if err := readings.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	from, to := hour, hour.Add(time.Hour)
	for pass := 0; pass < 2; pass++ {
		if _, err := rollups.MaterializeHourly(ctx, from, to); err != nil {
			t.Fatalf("MaterializeHourly pass %d: %v", pass, err)
		}
	}

	got, err := rollups.FindByVehicle(ctx, 5, 6)
	if err != nil {
		t.Fatalf("FindByVehicle: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d buckets, want 1 (idempotent upsert)", len(got))
	}
	b := got[0]
	if b.AvgSpeed != 40 || b.MaxSpeed != 60 || b.MinSpeed != 20 || b.SampleCount != 3 {
		t.Fatalf("bucket mismatch: %+v", b)
	}
}

func TestUpsertDailySummaryIdempotent(t *testing.T) {
	pool := startTimescale(t)
	rollups := NewRollupStore(pool, zap.NewNop())
	ctx := context.Background()

	day := time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)
	first := &domain.DailySummary{
		VehicleID:           9,
		SummaryDate:         day,
		TotalDistanceKm:     120.5,
		AvgSpeed:            45.2,
		MaxSpeed:            95.0,
		TotalPoints:         800,
		SpeedingViolations:  3,
		CriticalViolations:  1,
		EngineOffMoving:     0,
		TotalDrivingMinutes: 180.5,
	}
	if err := rollups.UpsertDailySummary(ctx, first); err != nil {
		t.Fatalf("UpsertDailySummary: %v", err)
	}

	// Re-running the job for the same day replaces the row in place.
	second := *first
	second.TotalDistanceKm = 121.0
	second.SpeedingViolations = 4
	if err := rollups.UpsertDailySummary(ctx, &second); err != nil {
		t.Fatalf("UpsertDailySummary rerun: %v", err)
	}

	var count int64
	if err := pool.QueryRow(ctx,
		`SELECT count(*) FROM daily_vehicle_summary WHERE vehicle_id = $1`, int64(9),
	).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d rows, want 1 (idempotent upsert)", count)
	}

	var (
		distance   float64
		speeding   int64
		drivingMin float64
	)
	err := pool.QueryRow(ctx, `
		SELECT total_distance_km, speeding_violations, total_driving_minutes
		FROM daily_vehicle_summary
		WHERE vehicle_id = $1 AND summary_date = $2
	`, int64(9), day).Scan(&distance, &speeding, &drivingMin)
	if err != nil {
		t.Fatalf("readback: %v", err)
	}
	if distance != 121.0 || speeding != 4 || drivingMin != 180.5 {
		t.Fatalf("rerun values not applied: distance=%v speeding=%d driving=%v", distance, speeding, drivingMin)
	}
}

func boolPtr(v bool) *bool { return &v }
