package domain

import "time"

// HourlyRollup is a derived hour bucket of speed statistics. The rollup
// engine owns writes; it is recomputable at any time from the readings in
// the bucket, so readers treat it as eventually consistent within the
// engine's lag window.
type HourlyRollup struct {
	VehicleID   int64     `json:"vehicleId"`
	Bucket      time.Time `json:"bucket"`
	AvgSpeed    float64   `json:"avgSpeed"`
	MaxSpeed    float64   `json:"maxSpeed"`
	MinSpeed    float64   `json:"minSpeed"`
	SampleCount int64     `json:"count"`
}

// BucketStats is an ad-hoc aggregate over an arbitrary bucket width,
// computed directly from the series store.
type BucketStats struct {
	VehicleID   int64     `json:"vehicleId"`
	Bucket      time.Time `json:"bucket"`
	AvgSpeed    float64   `json:"avgSpeed"`
	MaxSpeed    float64   `json:"maxSpeed"`
	MinSpeed    float64   `json:"minSpeed"`
	SampleCount int64     `json:"count"`
}

// DailySummary is the batch job's per-vehicle operating summary for one
// calendar day.
type DailySummary struct {
	VehicleID           int64     `json:"vehicleId"`
	SummaryDate         time.Time `json:"summaryDate"`
	TotalDistanceKm     float64   `json:"totalDistanceKm"`
	AvgSpeed            float64   `json:"avgSpeed"`
	MaxSpeed            float64   `json:"maxSpeed"`
	TotalPoints         int64     `json:"totalPoints"`
	SpeedingViolations  int64     `json:"speedingViolations"`
	CriticalViolations  int64     `json:"criticalViolations"`
	EngineOffMoving     int64     `json:"engineOffMoving"`
	TotalDrivingMinutes float64   `json:"totalDrivingMinutes"`
}
