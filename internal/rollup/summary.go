package rollup

import (
	"math"
	"time"

	"fleet-tracker/internal/alerts"
	"fleet-tracker/internal/domain"
)

const (
	earthRadiusKm = 6371.0

	// Consecutive points further apart than this are GPS jumps and excluded
	// from the distance total.
	maxSegmentKm = 50.0

	// A gap longer than this between points means the vehicle was stopped or
	// offline; the gap does not count as driving time.
	maxDrivingGap = 5 * time.Minute
)

// HaversineKm returns the great-circle distance between two GPS points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := radians(lat2 - lat1)
	dlon := radians(lon2 - lon1)
	a := math.Pow(math.Sin(dlat/2), 2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Pow(math.Sin(dlon/2), 2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ComputeDailySummary folds one vehicle's readings for a calendar day into
// its operating summary. Readings must be in ascending timestamp order.
// Violation counts are disjoint per point: a critical-speed point does not
// also count as plain speeding.
func ComputeDailySummary(vehicleID int64, day time.Time, readings []domain.Reading) domain.DailySummary {
	summary := domain.DailySummary{
		VehicleID:   vehicleID,
		SummaryDate: day,
		TotalPoints: int64(len(readings)),
	}
	if len(readings) == 0 {
		return summary
	}

	var (
		totalDistance  float64
		speedSum       float64
		drivingSeconds float64
	)

	for i, r := range readings {
		speedSum += r.SpeedKmh
		if r.SpeedKmh > summary.MaxSpeed {
			summary.MaxSpeed = r.SpeedKmh
		}

		switch {
		case r.SpeedKmh > alerts.CriticalSpeedKmh:
			summary.CriticalViolations++
		case r.SpeedKmh > alerts.HighSpeedKmh:
			summary.SpeedingViolations++
		}

		if !r.EngineOn && r.SpeedKmh > 0 {
			summary.EngineOffMoving++
		}

		if i == 0 {
			continue
		}
		prev := readings[i-1]

		if dist := HaversineKm(prev.Latitude, prev.Longitude, r.Latitude, r.Longitude); dist < maxSegmentKm {
			totalDistance += dist
		}

		if r.EngineOn {
			if gap := r.Timestamp.Sub(prev.Timestamp); gap < maxDrivingGap {
				drivingSeconds += gap.Seconds()
			}
		}
	}

	summary.TotalDistanceKm = round2(totalDistance)
	summary.AvgSpeed = round2(speedSum / float64(len(readings)))
	summary.MaxSpeed = round2(summary.MaxSpeed)
	summary.TotalDrivingMinutes = round2(drivingSeconds / 60)
	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
