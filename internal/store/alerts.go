package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"fleet-tracker/internal/domain"
	"fleet-tracker/pkg/e"
)

// AlertStore persists policy violations. A partial unique index on
// (vehicle_id, alert_type) WHERE NOT is_resolved backs the at-most-one-
// active-alert invariant; UpsertActive leans on it so concurrent evaluations
// of the same vehicle cannot double-insert.
type AlertStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewAlertStore(pool *pgxpool.Pool, logger *zap.Logger) *AlertStore {
	return &AlertStore{pool: pool, logger: logger}
}

const alertColumns = `id, vehicle_id, alert_type, severity, message, triggered_at, resolved_at, is_resolved`

// UpsertActive creates the active alert for (vehicle, type) or, if one
// already exists, refreshes its message, severity and triggeredAt in place.
// A single conditional upsert keeps the check-then-act atomic. Returns true
// when a new row was created; the stored row's id is written back to a.ID.
func (s *AlertStore) UpsertActive(ctx context.Context, a *domain.Alert) (bool, error) {
	const op = "store.Alert.UpsertActive"

	const query = `
		INSERT INTO vehicle_alerts
			(id, vehicle_id, alert_type, severity, message, triggered_at, is_resolved)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		ON CONFLICT (vehicle_id, alert_type) WHERE NOT is_resolved
		DO UPDATE SET
			message      = EXCLUDED.message,
			severity     = EXCLUDED.severity,
			triggered_at = EXCLUDED.triggered_at
		RETURNING id, (xmax = 0)
	`

	var created bool
	err := s.pool.QueryRow(ctx, query,
		a.ID, a.VehicleID, string(a.Type), string(a.Severity), a.Message, a.TriggeredAt,
	).Scan(&a.ID, &created)
	if err != nil {
		s.logger.Error("alert upsert failed",
			zap.String("op", op),
			zap.Int64("vehicle_id", a.VehicleID),
			zap.String("type", string(a.Type)),
			zap.Error(err),
		)
		return false, e.WrapError(ctx, op, err)
	}
	return created, nil
}

// Resolve marks an alert resolved. Unknown ids surface NotFound; resolving
// an already-resolved alert is a no-op success and does not rewrite
// resolvedAt.
func (s *AlertStore) Resolve(ctx context.Context, id uuid.UUID) error {
	const op = "store.Alert.Resolve"

	const query = `
		UPDATE vehicle_alerts
		SET is_resolved = true, resolved_at = now()
		WHERE id = $1 AND NOT is_resolved
	`

	cmd, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return e.WrapError(ctx, op, err)
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM vehicle_alerts WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return e.WrapError(ctx, op, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	return nil
}

// List returns alerts newest first, optionally filtered by resolution state.
func (s *AlertStore) List(ctx context.Context, resolved *bool) ([]domain.Alert, error) {
	const op = "store.Alert.List"

	query := fmt.Sprintf(`SELECT %s FROM vehicle_alerts`, alertColumns)
	args := []interface{}{}
	if resolved != nil {
		query += ` WHERE is_resolved = $1`
		args = append(args, *resolved)
	}
	query += ` ORDER BY triggered_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	return scanAlerts(ctx, op, rows)
}

func (s *AlertStore) ListByVehicle(ctx context.Context, vehicleID int64) ([]domain.Alert, error) {
	const op = "store.Alert.ListByVehicle"

	query := fmt.Sprintf(`
		SELECT %s FROM vehicle_alerts
		WHERE vehicle_id = $1
		ORDER BY triggered_at DESC
	`, alertColumns)

	rows, err := s.pool.Query(ctx, query, vehicleID)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	return scanAlerts(ctx, op, rows)
}

func scanAlerts(ctx context.Context, op string, rows pgx.Rows) ([]domain.Alert, error) {
	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var alertType, severity string
		if err := rows.Scan(
			&a.ID, &a.VehicleID, &alertType, &severity,
			&a.Message, &a.TriggeredAt, &a.ResolvedAt, &a.IsResolved,
		); err != nil {
			return nil, e.WrapError(ctx, op, err)
		}
		a.Type = domain.AlertType(alertType)
		a.Severity = domain.Severity(severity)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	return out, nil
}
