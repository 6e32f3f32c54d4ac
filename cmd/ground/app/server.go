package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roman-kulish/uxv-edge/internal/stream"
	"github.com/roman-kulish/uxv-edge/internal/telemetry"
	"github.com/roman-kulish/uxv-edge/internal/wire"
)

const (
	StreamTelemetry  = "telemetry"
	StreamDetections = "detections"
)

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(*IngestServer) {
	return func(s *IngestServer) {
		s.logger = logger
	}
}

// WithRecorder sets the recorder of received messages
func WithRecorder(recorder Recorder) func(*IngestServer) {
	return func(s *IngestServer) {
		s.recorder = recorder
	}
}

// WithMetrics sets the ingest counters
func WithMetrics(metrics *Metrics) func(*IngestServer) {
	return func(s *IngestServer) {
		s.metrics = metrics
	}
}

// IngestServer implements the telemetry and detection ingest services: it logs
// and records every received message and acknowledges each stream once the
// client has closed it.
type IngestServer struct {
	logger   *slog.Logger
	recorder Recorder
	metrics  *Metrics
}

var (
	_ wire.TelemetryIngestServer = (*IngestServer)(nil)
	_ wire.DetectionIngestServer = (*IngestServer)(nil)
)

// NewIngestServer creates a new IngestServer
func NewIngestServer(options ...func(*IngestServer)) *IngestServer {
	s := IngestServer{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func (s *IngestServer) StreamTelemetry(ss *wire.ServerStream[telemetry.Telemetry]) error {
	return receive(s, StreamTelemetry, ss, func(t telemetry.Telemetry) (uint64, string) {
		return t.TimestampNs, fmt.Sprintf("lat=%.5f lon=%.5f alt=%.1f", t.Latitude, t.Longitude, t.AltitudeM)
	})
}

func (s *IngestServer) StreamDetections(ss *wire.ServerStream[telemetry.Detection]) error {
	return receive(s, StreamDetections, ss, func(d telemetry.Detection) (uint64, string) {
		return d.TimestampNs, fmt.Sprintf("%s conf=%.2f bbox=(%.1f,%.1f,%.1f,%.1f)",
			d.Class, d.Confidence, d.BBox.X, d.BBox.Y, d.BBox.Width, d.BBox.Height)
	})
}

// receive drains one client stream. Recording failures are logged and counted
// but do not fail the stream.
func receive[T any](s *IngestServer, name string, ss *wire.ServerStream[T], summary func(T) (uint64, string)) error {
	ctx := ss.Context()
	logger := s.logger.With(slog.String("stream", name))

	var count int64
	for {
		sample, msg, err := ss.Recv()
		if errors.Is(err, io.EOF) {
			s.flush(ctx, logger, name)
			logger.Info("stream closed", slog.Int64("total", count))
			if s.metrics != nil {
				s.metrics.streamClosed(name)
			}
			return ss.SendAndClose(stream.Ack{OK: true})
		}
		if err != nil {
			// keep what was received before the abort
			s.flush(context.WithoutCancel(ctx), logger, name)
			logger.Warn(fmt.Sprintf("stream aborted: %s", err.Error()), slog.Int64("total", count))
			return err
		}

		count++
		tsNs, line := summary(sample)
		logger.Info(line, slog.Int64("seq", count), slog.Uint64("ts_ns", tsNs))

		if s.metrics != nil {
			s.metrics.recordReceived(name)
		}

		if s.recorder == nil {
			continue
		}
		if err = s.recorder.Record(ctx, name, count, tsNs, msg); err != nil {
			s.recordFailed(logger, name, err)
		}
	}
}

func (s *IngestServer) flush(ctx context.Context, logger *slog.Logger, name string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Flush(ctx, name); err != nil {
		s.recordFailed(logger, name, err)
	}
}

func (s *IngestServer) recordFailed(logger *slog.Logger, name string, err error) {
	lost := 1
	var recordErr *RecordError
	if errors.As(err, &recordErr) {
		lost = recordErr.Count
	}

	logger.Error(fmt.Sprintf("failed to record messages: %s", err.Error()), slog.Int("lost", lost))
	if s.metrics != nil {
		s.metrics.recordsFailed(name, lost)
	}
}
