package telemetry

import (
	"time"
)

const (
	// OriginLatitude and OriginLongitude is where every simulated flight starts
	OriginLatitude  = 32.70000
	OriginLongitude = -117.16000

	// StepDegrees is the per-sample latitude/longitude delta (north-west track)
	StepDegrees = 0.00010

	OriginAltitude = 120.0 // meters
	ClimbPerStep   = 0.5   // meters per sample

	YawDeg   = 10.0
	PitchDeg = 0.5
	RollDeg  = 0.2
)

// Telemetry is a single simulated navigation sample of the vehicle
type Telemetry struct {
	TimestampNs   uint64  // Sample time, nanoseconds since Unix epoch
	Latitude      float64 // GPS latitude in degrees
	Longitude     float64 // GPS longitude in degrees
	AltitudeM     float64 // Altitude in meters
	YawDeg        float64 // Yaw angle in degrees
	PitchDeg      float64 // Pitch angle in degrees
	RollDeg       float64 // Roll angle in degrees
	VelocityNorth float64 // North velocity in m/s
	VelocityEast  float64 // East velocity in m/s
	VelocityDown  float64 // Down velocity in m/s
}

// TelemetryGenerator derives telemetry samples along a straight, slowly climbing track.
// The zero value emits every sample with the same timestamp.
type TelemetryGenerator struct {
	Period time.Duration
}

// NewTelemetryGenerator creates a TelemetryGenerator spacing samples by period
func NewTelemetryGenerator(period time.Duration) *TelemetryGenerator {
	return &TelemetryGenerator{Period: period}
}

// Sample returns the i-th sample of a session started at t0.
// It is deterministic: the same (i, t0) always yields the same sample.
func (g *TelemetryGenerator) Sample(i int, t0 uint64) Telemetry {
	i = max(i, 0)
	step := float64(i)

	return Telemetry{
		TimestampNs:   Timestamp(t0, i, g.Period),
		Latitude:      OriginLatitude + StepDegrees*step,
		Longitude:     OriginLongitude - StepDegrees*step,
		AltitudeM:     OriginAltitude + ClimbPerStep*step,
		YawDeg:        YawDeg,
		PitchDeg:      PitchDeg,
		RollDeg:       RollDeg,
		VelocityNorth: 0,
		VelocityEast:  0,
		VelocityDown:  0,
	}
}

// Timestamp returns t0 advanced by i periods
func Timestamp(t0 uint64, i int, period time.Duration) uint64 {
	if i <= 0 || period <= 0 {
		return t0
	}
	return t0 + uint64(i)*uint64(period.Nanoseconds())
}
