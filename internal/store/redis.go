package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fleet-tracker/internal/config"
	"fleet-tracker/internal/domain"
	"fleet-tracker/pkg/e"
)

const (
	telemetryChannel = "fleet:telemetry"
	alertsChannel    = "fleet:alerts"
	geoKey           = "fleet:geo"
	deadLetterKey    = "readings:deadletter"

	stateTTL = 10 * time.Minute
)

// LiveStore keeps the hot fleet state in Redis: a per-vehicle hash with the
// last known position, a geo set for radius queries, and pub/sub channels
// feeding the websocket fan-out. Everything here is best-effort cache; the
// series store remains the source of truth.
type LiveStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewLiveStore(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*LiveStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, e.Wrap("store.Live.Ping", err)
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	return &LiveStore{client: client, logger: logger}, nil
}

func (s *LiveStore) Close() error {
	return s.client.Close()
}

func stateKey(vehicleID int64) string {
	return fmt.Sprintf("vehicle:%d:state", vehicleID)
}

// UpdateState refreshes the vehicle's hot state and broadcasts the reading.
// All writes go out in one pipeline round trip.
func (s *LiveStore) UpdateState(ctx context.Context, r *domain.Reading) error {
	const op = "store.Live.UpdateState"

	payload, err := json.Marshal(r)
	if err != nil {
		return e.Wrap(op, err)
	}

	pipe := s.client.Pipeline()
	key := stateKey(r.VehicleID)
	pipe.HSet(ctx, key, map[string]interface{}{
		"ts":        r.Timestamp.Format(time.RFC3339Nano),
		"lat":       r.Latitude,
		"lng":       r.Longitude,
		"speed_kmh": r.SpeedKmh,
		"heading":   r.Heading,
		"engine_on": r.EngineOn,
	})
	pipe.Expire(ctx, key, stateTTL)
	pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      fmt.Sprintf("%d", r.VehicleID),
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	})
	pipe.Publish(ctx, telemetryChannel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return e.WrapError(ctx, op, err)
	}
	return nil
}

// PublishAlert pushes a newly created alert onto the alerts channel for the
// live feed. Refreshes of an existing alert are not rebroadcast.
func (s *LiveStore) PublishAlert(ctx context.Context, a *domain.Alert) error {
	const op = "store.Live.PublishAlert"

	payload, err := json.Marshal(a)
	if err != nil {
		return e.Wrap(op, err)
	}
	if err := s.client.Publish(ctx, alertsChannel, payload).Err(); err != nil {
		return e.WrapError(ctx, op, err)
	}
	return nil
}

// DeadLetter parks a raw payload that passed quality but could not be
// persisted, so it can be replayed once the series store recovers.
func (s *LiveStore) DeadLetter(ctx context.Context, raw []byte) error {
	const op = "store.Live.DeadLetter"

	if err := s.client.LPush(ctx, deadLetterKey, raw).Err(); err != nil {
		return e.WrapError(ctx, op, err)
	}
	return nil
}

// DeadLetterDepth reports how many payloads are parked for replay.
func (s *LiveStore) DeadLetterDepth(ctx context.Context) (int64, error) {
	n, err := s.client.LLen(ctx, deadLetterKey).Result()
	if err != nil {
		return 0, e.WrapError(ctx, "store.Live.DeadLetterDepth", err)
	}
	return n, nil
}

// SubscribeTelemetry opens a pub/sub subscription on the telemetry and
// alerts channels. The caller owns the returned subscription.
func (s *LiveStore) SubscribeTelemetry(ctx context.Context) *redis.PubSub {
	return s.client.Subscribe(ctx, telemetryChannel, alertsChannel)
}
