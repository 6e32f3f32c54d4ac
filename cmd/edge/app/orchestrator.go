package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/roman-kulish/uxv-edge/internal/stream"
	"github.com/roman-kulish/uxv-edge/internal/telemetry"
	"github.com/roman-kulish/uxv-edge/internal/wire"
)

const (
	KindTelemetry  = "telemetry"
	KindDetections = "detections"
)

// RunError is returned by Orchestrator.Run when the run as a whole failed.
// It wraps the error of every failed session.
type RunError struct {
	Errs []error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed: %s", errors.Join(e.Errs...))
}

func (e *RunError) Unwrap() []error {
	return e.Errs
}

// WithLogger sets the logger for the orchestrator and its sessions
func WithLogger(logger *slog.Logger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock sets the clock used by both sessions
func WithClock(clock stream.Clock) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// WithRandSource sets the random source of detection confidences
func WithRandSource(source telemetry.RandSource) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.rand = source
	}
}

// WithDialOptions appends gRPC dial options used for both connections
func WithDialOptions(opts ...grpc.DialOption) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}

// WithTelemetryOpener replaces the gRPC transport of the telemetry session
func WithTelemetryOpener(open stream.Opener[telemetry.Telemetry]) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.telemetryOpener = open
	}
}

// WithDetectionOpener replaces the gRPC transport of the detection session
func WithDetectionOpener(open stream.Opener[telemetry.Detection]) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.detectionOpener = open
	}
}

// Orchestrator runs the telemetry and the detection sessions concurrently
// against one ingest endpoint and joins both.
type Orchestrator struct {
	config *Config
	logger *slog.Logger
	clock  stream.Clock
	rand   telemetry.RandSource

	dial            func(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error)
	dialOptions     []grpc.DialOption
	telemetryOpener stream.Opener[telemetry.Telemetry]
	detectionOpener stream.Opener[telemetry.Detection]

	results []stream.Result
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(config *Config, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		clock:  stream.SystemClock,
		dial:   wire.Dial,
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// Results returns the outcome of every session of the last run
func (o *Orchestrator) Results() []stream.Result {
	return o.results
}

// Run streams both data kinds and returns once both sessions are closed.
// It returns a *RunError if a session could not be set up or if every session failed.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.config.Validate(); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}

	o.logger.Info("starting streams", slog.String("address", o.config.Address))

	start := time.Now()

	var g errgroup.Group
	o.results = make([]stream.Result, 2)

	telemetryRun, err := o.telemetrySession()
	if err != nil {
		return err
	}
	detectionRun, err := o.detectionSession()
	if err != nil {
		return err
	}

	// sessions never return an error to the group, so one failing does not cancel the other
	g.Go(func() error {
		o.results[0] = telemetryRun(ctx)
		return nil
	})
	g.Go(func() error {
		o.results[1] = detectionRun(ctx)
		return nil
	})
	_ = g.Wait()

	for _, r := range o.results {
		o.logResult(r)
	}
	o.logSummary(time.Since(start))

	return o.evaluate()
}

type sessionRun func(ctx context.Context) stream.Result

func (o *Orchestrator) sessionOptions() []stream.Option {
	return []stream.Option{
		stream.WithLogger(o.logger),
		stream.WithClock(o.clock),
		stream.WithAckTimeout(o.config.AckTimeout),
	}
}

// telemetrySession builds the telemetry session. The connection is dialed by the
// session itself on open, so building a session never holds a transport.
func (o *Orchestrator) telemetrySession() (sessionRun, error) {
	cfg := o.config.Telemetry
	generator := telemetry.NewTelemetryGenerator(stream.PeriodFromRate(cfg.Rate))

	var conn *grpc.ClientConn
	open := o.telemetryOpener
	if open == nil {
		open = func(ctx context.Context) (stream.Stream[telemetry.Telemetry], error) {
			var err error
			if conn, err = o.dial(o.config.Address, o.dialOptions...); err != nil {
				return nil, fmt.Errorf("dialing %s: %w", o.config.Address, err)
			}
			return wire.NewTelemetryClient(conn).StreamTelemetry(ctx)
		}
	}

	session, err := stream.NewSession[telemetry.Telemetry](KindTelemetry, open, generator, cfg.Count, cfg.Rate, o.sessionOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating %s session: %w", KindTelemetry, err)
	}

	return func(ctx context.Context) stream.Result {
		defer func() { closeConn(conn) }()
		return session.Run(ctx)
	}, nil
}

func (o *Orchestrator) detectionSession() (sessionRun, error) {
	cfg := o.config.Detections
	generator := telemetry.NewDetectionGenerator(stream.PeriodFromRate(cfg.Rate), o.rand)

	var conn *grpc.ClientConn
	open := o.detectionOpener
	if open == nil {
		open = func(ctx context.Context) (stream.Stream[telemetry.Detection], error) {
			var err error
			if conn, err = o.dial(o.config.Address, o.dialOptions...); err != nil {
				return nil, fmt.Errorf("dialing %s: %w", o.config.Address, err)
			}
			return wire.NewDetectionClient(conn).StreamDetections(ctx)
		}
	}

	session, err := stream.NewSession[telemetry.Detection](KindDetections, open, generator, cfg.Count, cfg.Rate, o.sessionOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating %s session: %w", KindDetections, err)
	}

	return func(ctx context.Context) stream.Result {
		defer func() { closeConn(conn) }()
		return session.Run(ctx)
	}, nil
}

func closeConn(conn *grpc.ClientConn) {
	if conn != nil {
		_ = conn.Close()
	}
}

func (o *Orchestrator) logResult(r stream.Result) {
	logger := o.logger.With(slog.String("stream", r.Kind))

	switch {
	case r.Err != nil:
		attrs := []any{slog.Int("sent", r.Sent), slog.Int("emitted", r.Emitted)}
		if st, ok := status.FromError(errors.Unwrap(r.Err)); ok {
			attrs = append(attrs, slog.String("code", st.Code().String()))
		}
		logger.Error(r.Err.Error(), attrs...)

	case r.OK():
		logger.Info("stream acknowledged",
			slog.Int("sent", r.Sent),
			slog.String("bytes", humanize.Bytes(uint64(r.Bytes))),
			slog.Duration("elapsed", r.Elapsed),
		)

	default:
		logger.Warn("stream rejected by endpoint", slog.Int("sent", r.Sent), slog.Bool("ok", false))
	}
}

func (o *Orchestrator) logSummary(elapsed time.Duration) {
	var sent int
	var bytes int64
	for _, r := range o.results {
		sent += r.Sent
		bytes += r.Bytes
	}

	var rate float64
	if elapsed > 0 {
		rate = float64(sent) / elapsed.Seconds()
	}

	o.logger.Info(fmt.Sprintf("streamed %s samples (%s) in %s at %s",
		humanize.Comma(int64(sent)),
		humanize.Bytes(uint64(bytes)),
		elapsed.Round(time.Millisecond),
		humanize.SIWithDigits(rate, 1, "samples/s"),
	))
}

// evaluate fails the run on any setup failure, or when no session succeeded
func (o *Orchestrator) evaluate() error {
	var errs []error
	var setupFailed bool
	for _, r := range o.results {
		if r.Err == nil {
			continue
		}
		errs = append(errs, r.Err)

		var setupErr *stream.SetupError
		if errors.As(r.Err, &setupErr) {
			setupFailed = true
		}
	}

	if setupFailed || len(errs) == len(o.results) {
		return &RunError{Errs: errs}
	}
	return nil
}
