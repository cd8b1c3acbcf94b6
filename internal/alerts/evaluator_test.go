package alerts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/metrics"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		speed        float64
		engineOn     bool
		wantType     domain.AlertType
		wantSeverity domain.Severity
		wantTrigger  bool
		wantInMsg    string
	}{
		{
			name:         "critical speeding",
			speed:        130.0,
			engineOn:     true,
			wantType:     domain.AlertSpeeding,
			wantSeverity: domain.SeverityCritical,
			wantTrigger:  true,
			wantInMsg:    "130.0 km/h",
		},
		{
			name:         "high speeding",
			speed:        90.0,
			engineOn:     true,
			wantType:     domain.AlertSpeeding,
			wantSeverity: domain.SeverityHigh,
			wantTrigger:  true,
			wantInMsg:    "90.0 km/h",
		},
		{
			name:        "exactly at high threshold does not trigger",
			speed:       80.0,
			engineOn:    true,
			wantTrigger: false,
		},
		{
			name:         "exactly at critical threshold stays high",
			speed:        120.0,
			engineOn:     true,
			wantType:     domain.AlertSpeeding,
			wantSeverity: domain.SeverityHigh,
			wantTrigger:  true,
			wantInMsg:    "120.0 km/h",
		},
		{
			name:         "engine off while moving",
			speed:        15.0,
			engineOn:     false,
			wantType:     domain.AlertEngineOffMoving,
			wantSeverity: domain.SeverityMedium,
			wantTrigger:  true,
			wantInMsg:    "15.0 km/h",
		},
		{
			name:         "speeding outranks engine off",
			speed:        90.0,
			engineOn:     false,
			wantType:     domain.AlertSpeeding,
			wantSeverity: domain.SeverityHigh,
			wantTrigger:  true,
		},
		{
			name:        "stationary engine off is quiet",
			speed:       0,
			engineOn:    false,
			wantTrigger: false,
		},
		{
			name:        "normal driving",
			speed:       60.0,
			engineOn:    true,
			wantTrigger: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alertType, severity, msg, triggered := Classify(tt.speed, tt.engineOn)
			if triggered != tt.wantTrigger {
				t.Fatalf("triggered = %v, want %v", triggered, tt.wantTrigger)
			}
			if !tt.wantTrigger {
				return
			}
			if alertType != tt.wantType {
				t.Errorf("type = %q, want %q", alertType, tt.wantType)
			}
			if severity != tt.wantSeverity {
				t.Errorf("severity = %q, want %q", severity, tt.wantSeverity)
			}
			if tt.wantInMsg != "" && !strings.Contains(msg, tt.wantInMsg) {
				t.Errorf("message %q does not contain %q", msg, tt.wantInMsg)
			}
		})
	}
}

type fakeAlertWriter struct {
	created  bool
	err      error
	upserted []*domain.Alert
}

func (f *fakeAlertWriter) UpsertActive(_ context.Context, a *domain.Alert) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.upserted = append(f.upserted, a)
	return f.created, nil
}

type fakeNotifier struct {
	published []*domain.Alert
}

func (f *fakeNotifier) PublishAlert(_ context.Context, a *domain.Alert) error {
	f.published = append(f.published, a)
	return nil
}

func newTestReading(speed float64, engineOn bool) *domain.Reading {
	return &domain.Reading{
		VehicleID: 7,
		SpeedKmh:  speed,
		EngineOn:  engineOn,
	}
}

func TestEvaluateNoViolation(t *testing.T) {
	writer := &fakeAlertWriter{}
	ev := NewEvaluator(writer, nil, metrics.New(), zap.NewNop())

	if err := ev.Evaluate(context.Background(), newTestReading(50, true)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(writer.upserted) != 0 {
		t.Fatalf("expected no upserts, got %d", len(writer.upserted))
	}
}

func TestEvaluateCreatesAndNotifies(t *testing.T) {
	writer := &fakeAlertWriter{created: true}
	notifier := &fakeNotifier{}
	ev := NewEvaluator(writer, notifier, metrics.New(), zap.NewNop())

	if err := ev.Evaluate(context.Background(), newTestReading(130, true)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(writer.upserted) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(writer.upserted))
	}
	a := writer.upserted[0]
	if a.VehicleID != 7 || a.Type != domain.AlertSpeeding || a.Severity != domain.SeverityCritical {
		t.Fatalf("unexpected alert: %+v", a)
	}
	if len(notifier.published) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(notifier.published))
	}
}

func TestEvaluateRefreshDoesNotNotify(t *testing.T) {
	writer := &fakeAlertWriter{created: false}
	notifier := &fakeNotifier{}
	ev := NewEvaluator(writer, notifier, metrics.New(), zap.NewNop())

	if err := ev.Evaluate(context.Background(), newTestReading(130, true)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(writer.upserted) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(writer.upserted))
	}
	if len(notifier.published) != 0 {
		t.Fatalf("refresh must not rebroadcast, got %d publishes", len(notifier.published))
	}
}

func TestEvaluateStoreError(t *testing.T) {
	wantErr := errors.New("db down")
	writer := &fakeAlertWriter{err: wantErr}
	ev := NewEvaluator(writer, nil, metrics.New(), zap.NewNop())

	err := ev.Evaluate(context.Background(), newTestReading(130, true))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}
