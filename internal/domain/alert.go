package domain

import (
	"time"

	"github.com/google/uuid"
)

type AlertType string

const (
	AlertSpeeding        AlertType = "SPEEDING"
	AlertGeofence        AlertType = "GEOFENCE"
	AlertIdle            AlertType = "IDLE"
	AlertEngineOffMoving AlertType = "ENGINE_OFF_MOVING"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertSpeeding, AlertGeofence, AlertIdle, AlertEngineOffMoving:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Alert is a persisted policy violation. At most one row per
// (VehicleID, Type) may have IsResolved=false; the store enforces this with
// a partial unique index and the evaluator relies on it for dedup.
type Alert struct {
	ID          uuid.UUID  `json:"id"`
	VehicleID   int64      `json:"vehicleId"`
	Type        AlertType  `json:"alertType"`
	Severity    Severity   `json:"severity"`
	Message     string     `json:"message"`
	TriggeredAt time.Time  `json:"triggeredAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	IsResolved  bool       `json:"isResolved"`
}
