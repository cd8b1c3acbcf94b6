package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/metrics"
)

// Speed thresholds in km/h. Both comparisons are strict: a reading exactly
// at the threshold does not trigger the higher rule.
const (
	CriticalSpeedKmh = 120.0
	HighSpeedKmh     = 80.0
)

// Classify runs the policy chain against one reading. Rules are ordered by
// severity and the first match wins, so a single reading yields at most one
// alert.
func Classify(speedKmh float64, engineOn bool) (domain.AlertType, domain.Severity, string, bool) {
	switch {
	case speedKmh > CriticalSpeedKmh:
		msg := fmt.Sprintf("critical speeding: %.1f km/h exceeds %.0f km/h limit", speedKmh, CriticalSpeedKmh)
		return domain.AlertSpeeding, domain.SeverityCritical, msg, true
	case speedKmh > HighSpeedKmh:
		msg := fmt.Sprintf("speeding: %.1f km/h exceeds %.0f km/h limit", speedKmh, HighSpeedKmh)
		return domain.AlertSpeeding, domain.SeverityHigh, msg, true
	case !engineOn && speedKmh > 0:
		msg := fmt.Sprintf("vehicle moving at %.1f km/h with engine off", speedKmh)
		return domain.AlertEngineOffMoving, domain.SeverityMedium, msg, true
	default:
		return "", "", "", false
	}
}

// AlertWriter is the persistence seam. Created reports whether a new alert
// row was made, as opposed to refreshing an existing active one.
type AlertWriter interface {
	UpsertActive(ctx context.Context, a *domain.Alert) (created bool, err error)
}

// Notifier broadcasts newly created alerts to the live feed.
type Notifier interface {
	PublishAlert(ctx context.Context, a *domain.Alert) error
}

// Evaluator turns accepted readings into persisted alerts. It is safe for
// concurrent use by the pipeline workers.
type Evaluator struct {
	store    AlertWriter
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewEvaluator(store AlertWriter, notifier Notifier, m *metrics.Metrics, logger *zap.Logger) *Evaluator {
	return &Evaluator{store: store, notifier: notifier, metrics: m, logger: logger}
}

// Evaluate applies the policy chain to one reading and records the outcome.
// The reading has already been persisted; alert failures are returned so the
// caller can count them, but they never unwind the ingest.
func (ev *Evaluator) Evaluate(ctx context.Context, r *domain.Reading) error {
	alertType, severity, message, triggered := Classify(r.SpeedKmh, r.EngineOn)
	if !triggered {
		return nil
	}

	alert := &domain.Alert{
		ID:          uuid.New(),
		VehicleID:   r.VehicleID,
		Type:        alertType,
		Severity:    severity,
		Message:     message,
		TriggeredAt: time.Now().UTC(),
	}

	created, err := ev.store.UpsertActive(ctx, alert)
	if err != nil {
		return err
	}

	if !created {
		ev.metrics.AlertsRefreshed.Inc()
		return nil
	}

	ev.metrics.AlertsCreated.WithLabelValues(string(alertType), string(severity)).Inc()
	ev.logger.Warn("alert created",
		zap.String("alert_id", alert.ID.String()),
		zap.Int64("vehicle_id", r.VehicleID),
		zap.String("type", string(alertType)),
		zap.String("severity", string(severity)),
		zap.Float64("speed_kmh", r.SpeedKmh),
	)

	if ev.notifier != nil {
		if err := ev.notifier.PublishAlert(ctx, alert); err != nil {
			ev.logger.Warn("alert broadcast failed",
				zap.String("alert_id", alert.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}
