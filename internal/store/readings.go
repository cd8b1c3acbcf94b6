package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"fleet-tracker/internal/domain"
	"fleet-tracker/pkg/e"
)

// ReadingStore is the append-only, time-partitioned series store. The
// vehicle_readings hypertable is chunked by day so range queries prune
// chunks outside the requested window.
type ReadingStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewReadingStore(pool *pgxpool.Pool, logger *zap.Logger) *ReadingStore {
	return &ReadingStore{pool: pool, logger: logger}
}

const readingColumns = `ts, received_at, vehicle_id, latitude, longitude, speed_kmh, heading, engine_on`

func (s *ReadingStore) Insert(ctx context.Context, r *domain.Reading) error {
	const op = "store.Reading.Insert"

	const query = `
		INSERT INTO vehicle_readings
			(ts, received_at, vehicle_id, latitude, longitude, speed_kmh, heading, engine_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		r.Timestamp, r.ReceivedAt, r.VehicleID,
		r.Latitude, r.Longitude, r.SpeedKmh, r.Heading, r.EngineOn,
	)
	if err != nil {
		s.logger.Error("reading insert failed",
			zap.String("op", op),
			zap.Int64("vehicle_id", r.VehicleID),
			zap.Error(err),
		)
		return e.WrapError(ctx, op, err)
	}
	return nil
}

// InsertBatch appends readings in bulk via COPY. Used by backfill and
// replay paths; the live pipeline writes row-at-a-time.
func (s *ReadingStore) InsertBatch(ctx context.Context, readings []*domain.Reading) error {
	const op = "store.Reading.InsertBatch"

	if len(readings) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(readings))
	for i, r := range readings {
		rows[i] = []interface{}{
			r.Timestamp, r.ReceivedAt, r.VehicleID,
			r.Latitude, r.Longitude, r.SpeedKmh, r.Heading, r.EngineOn,
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"vehicle_readings"},
		[]string{"ts", "received_at", "vehicle_id", "latitude", "longitude", "speed_kmh", "heading", "engine_on"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return e.WrapError(ctx, fmt.Sprintf("%s(%d)", op, len(readings)), err)
	}
	return nil
}

// FindByVehicle returns readings for one vehicle within the last `hours`,
// newest first, capped at limit.
func (s *ReadingStore) FindByVehicle(ctx context.Context, vehicleID int64, hours, limit int) ([]domain.Reading, error) {
	const op = "store.Reading.FindByVehicle"

	query := fmt.Sprintf(`
		SELECT %s
		FROM vehicle_readings
		WHERE vehicle_id = $1
		  AND ts >= now() - ($2 * INTERVAL '1 hour')
		ORDER BY ts DESC
		LIMIT $3
	`, readingColumns)

	rows, err := s.pool.Query(ctx, query, vehicleID, hours, limit)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	return scanReadings(ctx, op, rows)
}

// FindLatest returns the most recent reading for one vehicle.
func (s *ReadingStore) FindLatest(ctx context.Context, vehicleID int64) (*domain.Reading, error) {
	const op = "store.Reading.FindLatest"

	query := fmt.Sprintf(`
		SELECT %s
		FROM vehicle_readings
		WHERE vehicle_id = $1
		ORDER BY ts DESC
		LIMIT 1
	`, readingColumns)

	var r domain.Reading
	err := s.pool.QueryRow(ctx, query, vehicleID).Scan(
		&r.Timestamp, &r.ReceivedAt, &r.VehicleID,
		&r.Latitude, &r.Longitude, &r.SpeedKmh, &r.Heading, &r.EngineOn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		return nil, e.WrapError(ctx, op, err)
	}
	return &r, nil
}

// FindAllLatest returns the most recent reading per vehicle across the fleet
// in one pass (top-1 per partition key), not N point queries.
func (s *ReadingStore) FindAllLatest(ctx context.Context) ([]domain.Reading, error) {
	const op = "store.Reading.FindAllLatest"

	query := fmt.Sprintf(`
		SELECT DISTINCT ON (vehicle_id) %s
		FROM vehicle_readings
		ORDER BY vehicle_id, ts DESC
	`, readingColumns)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	return scanReadings(ctx, op, rows)
}

// BucketedStats aggregates speed per arbitrary-width bucket for one vehicle
// over the last `hours`.
func (s *ReadingStore) BucketedStats(ctx context.Context, vehicleID int64, hours int, bucket time.Duration) ([]domain.BucketStats, error) {
	const op = "store.Reading.BucketedStats"

	if bucket <= 0 {
		return nil, fmt.Errorf("%s: %w", op, e.ErrInvalidInput)
	}

	const query = `
		SELECT vehicle_id,
		       time_bucket(make_interval(secs => $3), ts) AS bucket,
		       avg(speed_kmh),
		       max(speed_kmh),
		       min(speed_kmh),
		       count(*)
		FROM vehicle_readings
		WHERE vehicle_id = $1
		  AND ts >= now() - ($2 * INTERVAL '1 hour')
		GROUP BY vehicle_id, bucket
		ORDER BY bucket
	`

	rows, err := s.pool.Query(ctx, query, vehicleID, hours, bucket.Seconds())
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	var out []domain.BucketStats
	for rows.Next() {
		var b domain.BucketStats
		if err := rows.Scan(&b.VehicleID, &b.Bucket, &b.AvgSpeed, &b.MaxSpeed, &b.MinSpeed, &b.SampleCount); err != nil {
			return nil, e.WrapError(ctx, op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	return out, nil
}

// CompressChunks compresses hypertable chunks wholly older than the cutoff.
// Compression changes storage footprint only; query results are unaffected.
// Returns the number of chunks compressed.
func (s *ReadingStore) CompressChunks(ctx context.Context, olderThan time.Duration) (int, error) {
	const op = "store.Reading.CompressChunks"

	const listQuery = `
		SELECT format('%I.%I', chunk_schema, chunk_name)
		FROM timescaledb_information.chunks
		WHERE hypertable_name = 'vehicle_readings'
		  AND NOT is_compressed
		  AND range_end < now() - make_interval(secs => $1)
	`

	rows, err := s.pool.Query(ctx, listQuery, olderThan.Seconds())
	if err != nil {
		return 0, e.WrapError(ctx, op, err)
	}
	var chunks []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, e.WrapError(ctx, op, err)
		}
		chunks = append(chunks, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, e.WrapError(ctx, op, err)
	}

	compressed := 0
	for _, chunk := range chunks {
		if _, err := s.pool.Exec(ctx, `SELECT compress_chunk($1::regclass)`, chunk); err != nil {
			s.logger.Warn("chunk compression failed",
				zap.String("op", op),
				zap.String("chunk", chunk),
				zap.Error(err),
			)
			continue
		}
		compressed++
	}
	return compressed, nil
}

func scanReadings(ctx context.Context, op string, rows pgx.Rows) ([]domain.Reading, error) {
	var out []domain.Reading
	for rows.Next() {
		var r domain.Reading
		if err := rows.Scan(
			&r.Timestamp, &r.ReceivedAt, &r.VehicleID,
			&r.Latitude, &r.Longitude, &r.SpeedKmh, &r.Heading, &r.EngineOn,
		); err != nil {
			return nil, e.WrapError(ctx, op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	return out, nil
}
