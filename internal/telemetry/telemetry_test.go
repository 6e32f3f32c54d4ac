package telemetry

import (
	"math"
	"testing"
	"time"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

type seqRand struct {
	values []float64
	next   int
}

func (s *seqRand) Float64() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

func TestTelemetryGenerator_Timestamps(t *testing.T) {
	const t0 uint64 = 1_700_000_000_000_000_000
	g := NewTelemetryGenerator(200 * time.Millisecond)

	var prev uint64
	for i := 0; i < 10; i++ {
		s := g.Sample(i, t0)
		if i == 0 {
			if s.TimestampNs != t0 {
				t.Fatalf("Expected first timestamp %d, got %d", t0, s.TimestampNs)
			}
		} else if diff := s.TimestampNs - prev; diff != 200_000_000 {
			t.Errorf("Sample %d: expected step 200000000ns, got %d", i, diff)
		}
		prev = s.TimestampNs
	}

	if want := t0 + 9*200_000_000; prev != want {
		t.Errorf("Expected last timestamp %d, got %d", want, prev)
	}
}

func TestTelemetryGenerator_Track(t *testing.T) {
	g := NewTelemetryGenerator(time.Second)

	first := g.Sample(0, 0)
	if first.Latitude != OriginLatitude || first.Longitude != OriginLongitude || first.AltitudeM != OriginAltitude {
		t.Fatalf("Expected origin position, got %+v", first)
	}

	s := g.Sample(4, 0)
	if math.Abs(s.Latitude-32.7004) > 1e-9 {
		t.Errorf("Expected latitude 32.7004, got %f", s.Latitude)
	}
	if math.Abs(s.Longitude-(-117.1604)) > 1e-9 {
		t.Errorf("Expected longitude -117.1604, got %f", s.Longitude)
	}
	if s.AltitudeM != 122.0 {
		t.Errorf("Expected altitude 122.0, got %f", s.AltitudeM)
	}
	if s.YawDeg != YawDeg || s.PitchDeg != PitchDeg || s.RollDeg != RollDeg {
		t.Errorf("Expected constant attitude, got yaw=%f pitch=%f roll=%f", s.YawDeg, s.PitchDeg, s.RollDeg)
	}
	if s.VelocityNorth != 0 || s.VelocityEast != 0 || s.VelocityDown != 0 {
		t.Errorf("Expected zero velocity, got %+v", s)
	}

	if again := g.Sample(4, 0); again != s {
		t.Errorf("Expected deterministic sample, got %+v and %+v", s, again)
	}
}

func TestTelemetryGenerator_NegativeIndex(t *testing.T) {
	g := NewTelemetryGenerator(time.Second)
	if s := g.Sample(-3, 42); s != g.Sample(0, 42) {
		t.Errorf("Expected negative index to behave as 0, got %+v", s)
	}
}

func TestDetectionGenerator_ConfidenceRange(t *testing.T) {
	tests := []struct {
		name string
		r    float64
		want float64
	}{
		{"lower bound", 0, 0.8},
		{"middle", 0.5, 0.9},
		{"just below one", math.Nextafter(1, 0), -1},
		{"one", 1, -1},
		{"out of range", 7, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewDetectionGenerator(time.Second, fixedRand(tt.r))
			c := g.Sample(0, 0).Confidence
			if c < 0.8 || c >= 1.0 {
				t.Fatalf("Expected confidence in [0.8, 1.0), got %v", c)
			}
			if tt.want >= 0 && math.Abs(c-tt.want) > 1e-12 {
				t.Errorf("Expected confidence %v, got %v", tt.want, c)
			}
		})
	}
}

func TestDetectionGenerator_GlobalRand(t *testing.T) {
	g := NewDetectionGenerator(time.Second, nil)
	for i := 0; i < 1000; i++ {
		if c := g.Sample(i, 0).Confidence; c < 0.8 || c >= 1.0 {
			t.Fatalf("Sample %d: confidence %v out of [0.8, 1.0)", i, c)
		}
	}
}

func TestDetectionGenerator_BoundingBox(t *testing.T) {
	g := NewDetectionGenerator(500*time.Millisecond, &seqRand{values: []float64{0.1, 0.7, 0.3}})

	prev := g.Sample(0, 1000)
	if prev.BBox != (BoundingBox{X: 100, Y: 150, Width: 60, Height: 40}) {
		t.Fatalf("Unexpected first bounding box: %+v", prev.BBox)
	}

	for i := 1; i < 5; i++ {
		s := g.Sample(i, 1000)
		if s.BBox.Width != BoxWidth || s.BBox.Height != BoxHeight {
			t.Errorf("Sample %d: expected constant box size, got %+v", i, s.BBox)
		}
		if s.BBox.X <= prev.BBox.X || s.BBox.Y <= prev.BBox.Y {
			t.Errorf("Sample %d: expected box to move, got %+v after %+v", i, s.BBox, prev.BBox)
		}
		if s.TimestampNs-prev.TimestampNs != 500_000_000 {
			t.Errorf("Sample %d: expected 500ms step, got %d", i, s.TimestampNs-prev.TimestampNs)
		}
		if s.Class != DetectionClass || s.Latitude != DetectionLatitude || s.Longitude != DetectionLongitude {
			t.Errorf("Sample %d: unexpected constant fields %+v", i, s)
		}
		prev = s
	}

	if prev.BBox.X != 120 || prev.BBox.Y != 162 {
		t.Errorf("Expected last box at (120, 162), got (%f, %f)", prev.BBox.X, prev.BBox.Y)
	}
}

func TestTimestamp(t *testing.T) {
	if got := Timestamp(10, 3, 0); got != 10 {
		t.Errorf("Expected zero period to keep t0, got %d", got)
	}
	if got := Timestamp(10, 3, time.Nanosecond); got != 13 {
		t.Errorf("Expected 13, got %d", got)
	}
}
