package telemetry

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	DetectionClass = "target"

	// Confidence is BaseConfidence plus a random offset in [0, ConfidenceSpread)
	BaseConfidence   = 0.8
	ConfidenceSpread = 0.2

	BoxOriginX = 100.0
	BoxOriginY = 150.0
	BoxStepX   = 5.0
	BoxStepY   = 3.0
	BoxWidth   = 60.0
	BoxHeight  = 40.0

	// DetectionLatitude and DetectionLongitude is a fixed target position
	DetectionLatitude  = 32.70
	DetectionLongitude = -117.16
)

// maxConfidence is the largest float64 below 1.0
var maxConfidence = math.Nextafter(1, 0)

// BoundingBox is an axis aligned box in image pixel coordinates
type BoundingBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Detection is a single simulated object detection event
type Detection struct {
	TimestampNs uint64      // Detection time, nanoseconds since Unix epoch
	Class       string      // Class label
	Confidence  float64     // Detector confidence in [0, 1]
	BBox        BoundingBox // Object position in the frame
	Latitude    float64     // Estimated target latitude in degrees
	Longitude   float64     // Estimated target longitude in degrees
}

// RandSource produces pseudo-random numbers in [0, 1)
type RandSource interface {
	Float64() float64
}

// DetectionGenerator derives detection events of a target moving across the frame.
// Confidence is the only non-deterministic field; inject Rand to make it reproducible.
type DetectionGenerator struct {
	Period time.Duration
	Rand   RandSource
}

// NewDetectionGenerator creates a DetectionGenerator spacing samples by period.
// A nil source falls back to the global math/rand/v2 generator.
func NewDetectionGenerator(period time.Duration, source RandSource) *DetectionGenerator {
	return &DetectionGenerator{Period: period, Rand: source}
}

// Sample returns the i-th detection of a session started at t0
func (g *DetectionGenerator) Sample(i int, t0 uint64) Detection {
	i = max(i, 0)
	step := float64(i)

	return Detection{
		TimestampNs: Timestamp(t0, i, g.Period),
		Class:       DetectionClass,
		Confidence:  g.confidence(),
		BBox: BoundingBox{
			X:      BoxOriginX + BoxStepX*step,
			Y:      BoxOriginY + BoxStepY*step,
			Width:  BoxWidth,
			Height: BoxHeight,
		},
		Latitude:  DetectionLatitude,
		Longitude: DetectionLongitude,
	}
}

func (g *DetectionGenerator) confidence() float64 {
	var r float64
	if g.Rand != nil {
		r = g.Rand.Float64()
	} else {
		r = rand.Float64()
	}

	// 0.8 + 0.2*r rounds up to 1.0 for r close enough to 1
	c := BaseConfidence + ConfidenceSpread*min(max(r, 0), 1)
	return min(c, maxConfidence)
}
