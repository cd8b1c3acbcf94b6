package domain

import "time"

// Reading is one accepted GPS sample. Immutable once stored. The natural key
// (VehicleID, Timestamp) is not enforced at the store; duplicate appends are
// tolerated and can distort derived aggregates.
type Reading struct {
	VehicleID  int64     `json:"vehicleId"`
	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"receivedAt"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	SpeedKmh float64 `json:"speed"`
	Heading  float64 `json:"heading"`
	EngineOn bool    `json:"engineOn"`
}

// IngestMessage is the inbound wire envelope, one per reading. Validation
// tags cover structural sanity only (a latitude of 200 cannot come from a
// GPS chip); whether the point lies inside the fleet's operating territory
// is the quality gate's decision, not the transport's.
type IngestMessage struct {
	VehicleID    int64      `json:"vehicleId"`
	Timestamp    *time.Time `json:"timestamp"`
	Latitude     float64    `json:"latitude" validate:"lat"`
	Longitude    float64    `json:"longitude" validate:"lng"`
	// Speed is left unconstrained here: a negative value is a quality
	// violation that belongs in the rejection log, not an HTTP 400.
	Speed        *float64   `json:"speed"`
	Heading      *float64   `json:"heading" validate:"omitempty,gte=0,lte=360"`
	EngineStatus *bool      `json:"engineStatus"`

	// Raw holds the original payload bytes for the rejection log and the
	// dead-letter sink.
	Raw []byte `json:"-"`
}

// SpeedValue returns the speed with the wire default applied.
func (m *IngestMessage) SpeedValue() (float64, bool) {
	if m.Speed == nil {
		return 0, false
	}
	return *m.Speed, true
}

// Reading materializes the envelope into a Reading, applying wire defaults:
// speed 0, heading 0, engineStatus true, timestamp = receipt time.
func (m *IngestMessage) Reading(receivedAt time.Time) Reading {
	r := Reading{
		VehicleID:  m.VehicleID,
		Timestamp:  receivedAt,
		ReceivedAt: receivedAt,
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		EngineOn:   true,
	}
	if m.Timestamp != nil && !m.Timestamp.IsZero() {
		r.Timestamp = m.Timestamp.UTC()
	}
	if m.Speed != nil {
		r.SpeedKmh = *m.Speed
	}
	if m.Heading != nil {
		r.Heading = *m.Heading
	}
	if m.EngineStatus != nil {
		r.EngineOn = *m.EngineStatus
	}
	return r
}

// RejectedReading is the audit record for a reading that failed the quality
// gate. Owned by the rejection log, never updated.
type RejectedReading struct {
	ID         int64     `json:"id"`
	RawPayload []byte    `json:"rawPayload"`
	Reasons    []string  `json:"reasons"`
	RejectedAt time.Time `json:"rejectedAt"`
}
