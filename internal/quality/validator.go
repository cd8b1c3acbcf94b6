// Package quality is the pre-write gate for inbound readings. Points outside
// the fleet's operating territory are presumed GPS drift or spoofing and
// must never reach the series store or its aggregates.
package quality

import (
	"fmt"

	"fleet-tracker/internal/domain"
)

// Operating territory bounding box and plausibility limits.
const (
	MinLatitude  = 8.0
	MaxLatitude  = 23.5
	MinLongitude = 102.0
	MaxLongitude = 110.0
	MaxSpeedKmh  = 200.0
)

// Rule names one quality check. Violated returns the reason recorded in the
// rejection log when the check fails.
type Rule struct {
	Name     string
	Violated func(msg *domain.IngestMessage) (bool, string)
}

// Rules are evaluated in order; Validate never short-circuits so a rejected
// record carries the complete diagnostic trail.
var Rules = []Rule{
	{
		Name: "latitude_in_territory",
		Violated: func(m *domain.IngestMessage) (bool, string) {
			if m.Latitude < MinLatitude || m.Latitude > MaxLatitude {
				return true, fmt.Sprintf("latitude %.4f out of range [%.1f, %.1f]", m.Latitude, MinLatitude, MaxLatitude)
			}
			return false, ""
		},
	},
	{
		Name: "longitude_in_territory",
		Violated: func(m *domain.IngestMessage) (bool, string) {
			if m.Longitude < MinLongitude || m.Longitude > MaxLongitude {
				return true, fmt.Sprintf("longitude %.4f out of range [%.1f, %.1f]", m.Longitude, MinLongitude, MaxLongitude)
			}
			return false, ""
		},
	},
	{
		Name: "speed_not_negative",
		Violated: func(m *domain.IngestMessage) (bool, string) {
			if speed, ok := m.SpeedValue(); ok && speed < 0 {
				return true, fmt.Sprintf("speed %.1f is negative", speed)
			}
			return false, ""
		},
	},
	{
		Name: "speed_plausible",
		Violated: func(m *domain.IngestMessage) (bool, string) {
			if speed, ok := m.SpeedValue(); ok && speed > MaxSpeedKmh {
				return true, fmt.Sprintf("speed %.1f exceeds plausible maximum %.0f km/h", speed, MaxSpeedKmh)
			}
			return false, ""
		},
	},
	{
		Name: "vehicle_id_positive",
		Violated: func(m *domain.IngestMessage) (bool, string) {
			if m.VehicleID <= 0 {
				return true, fmt.Sprintf("vehicle id %d is not a positive integer", m.VehicleID)
			}
			return false, ""
		},
	},
}

// Validate scores one reading against every rule and returns the ordered
// list of violation reasons. An empty result means the reading is valid.
// Pure: no side effects, no I/O.
func Validate(msg *domain.IngestMessage) []string {
	var reasons []string
	for _, rule := range Rules {
		if bad, reason := rule.Violated(msg); bad {
			reasons = append(reasons, reason)
		}
	}
	return reasons
}
