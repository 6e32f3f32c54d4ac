package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	StateIdle State = iota
	StateOpen
	StateStreaming
	StateClosing
	StateClosed
)

// State is a step of the session lifecycle
type State int32

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Ack is the terminal acknowledgement returned by the endpoint for one stream
type Ack struct {
	OK bool
}

// Stream is an open client-streaming call
type Stream[T any] interface {
	// Send writes one sample to the stream.
	Send(sample T) error

	// CloseAndRecv signals end-of-stream and waits for the acknowledgement.
	CloseAndRecv() (Ack, error)
}

// Opener requests a new outbound stream from the transport.
// The stream lives as long as ctx.
type Opener[T any] func(ctx context.Context) (Stream[T], error)

// Generator derives the i-th sample of a session that started at t0
type Generator[T any] interface {
	Sample(i int, t0 uint64) T
}

// Result is the outcome of one session
type Result struct {
	Kind    string
	Emitted int           // samples handed to the stream by the scheduler
	Sent    int           // samples accepted by the transport
	Bytes   int64         // encoded payload bytes, when the transport reports them
	Ack     *Ack          // nil when the session failed
	Err     error         // *SetupError or *TransportError
	Elapsed time.Duration // from open request to completion
}

// OK reports whether the endpoint acknowledged the stream positively
func (r Result) OK() bool {
	return r.Err == nil && r.Ack != nil && r.Ack.OK
}

type settings struct {
	logger     *slog.Logger
	clock      Clock
	ackTimeout time.Duration
}

// Option configures a Session
type Option func(*settings)

// WithLogger sets the logger for the session
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithClock sets the clock used for timestamps and pacing
func WithClock(clock Clock) Option {
	return func(s *settings) {
		s.clock = clock
	}
}

// WithAckTimeout bounds the wait for the acknowledgement once the stream is closed.
// Zero, the default, waits indefinitely.
func WithAckTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.ackTimeout = d
	}
}

// Session owns the lifecycle of one outbound stream: it opens the stream, emits
// Count samples at the configured rate and resolves exactly once with the
// endpoint acknowledgement or a transport error.
//
// Emission is fire-and-forget: samples are queued and written by a dedicated
// sender goroutine, so the pacing loop never waits on the transport.
type Session[T any] struct {
	kind      string
	count     int
	period    time.Duration
	open      Opener[T]
	generator Generator[T]

	clock      Clock
	ackTimeout time.Duration
	logger     *slog.Logger

	state   atomic.Int32
	queue   chan T
	emitted int

	once   sync.Once
	done   chan struct{}
	result Result
}

// NewSession creates a session emitting count samples at hz samples per second
func NewSession[T any](kind string, open Opener[T], generator Generator[T], count int, hz float64, options ...Option) (*Session[T], error) {
	if count < 0 {
		return nil, fmt.Errorf("%s: %w: %d", kind, ErrInvalidCount, count)
	}
	if hz <= 0 {
		return nil, fmt.Errorf("%s: %w: %v", kind, ErrInvalidRate, hz)
	}
	if open == nil || generator == nil {
		return nil, fmt.Errorf("%s: opener and generator are required", kind)
	}

	st := settings{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		clock:  SystemClock,
	}
	for _, option := range options {
		option(&st)
	}

	return &Session[T]{
		kind:       kind,
		count:      count,
		period:     PeriodFromRate(hz),
		open:       open,
		generator:  generator,
		clock:      st.clock,
		ackTimeout: st.ackTimeout,
		logger:     st.logger.With(slog.String("stream", kind)),
		done:       make(chan struct{}),
	}, nil
}

// Kind returns the data kind streamed by the session
func (s *Session[T]) Kind() string {
	return s.kind
}

// Period returns the target pause between two emissions
func (s *Session[T]) Period() time.Duration {
	return s.period
}

// State returns the current lifecycle state
func (s *Session[T]) State() State {
	return State(s.state.Load())
}

// Done is closed once the session has resolved
func (s *Session[T]) Done() <-chan struct{} {
	return s.done
}

// Result blocks until the session has resolved and returns its outcome
func (s *Session[T]) Result() Result {
	<-s.done
	return s.result
}

// Run opens the stream, emits all samples and waits for the session to resolve.
// Cancelling ctx stops the pacing loop and aborts the stream.
func (s *Session[T]) Run(ctx context.Context) Result {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateOpen)) {
		return Result{Kind: s.kind, Err: fmt.Errorf("%s: %w", s.kind, ErrSessionUsed)}
	}

	start := s.clock.Now()
	t0 := NowNanos(s.clock)

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := s.open(streamCtx)
	if err != nil {
		cancel()
		s.logger.Error(fmt.Sprintf("failed to open stream: %s", err.Error()))
		s.resolve(Result{Err: &SetupError{Kind: s.kind, Err: err}}, start)
		return s.result
	}

	s.logger.Debug("stream opened", slog.Int("count", s.count), slog.Duration("period", s.period))

	s.queue = make(chan T, s.count) // emit never blocks
	go s.send(stream, cancel, start)

	scheduler := Scheduler{Count: s.count, Period: s.period, Clock: s.clock}
	if err = scheduler.Run(ctx, func(i int) {
		s.emit(s.generator.Sample(i, t0))
	}); err != nil {
		s.logger.Warn(fmt.Sprintf("emission interrupted: %s", err.Error()), slog.Int("emitted", s.emitted))
	}

	s.state.Store(int32(StateClosing))
	close(s.queue)

	<-s.done
	return s.result
}

func (s *Session[T]) emit(sample T) {
	s.state.CompareAndSwap(int32(StateOpen), int32(StateStreaming))
	s.queue <- sample
	s.emitted++
}

// send writes queued samples in order, then closes the stream and resolves the
// session with the acknowledgement.
func (s *Session[T]) send(stream Stream[T], cancel context.CancelFunc, start time.Time) {
	defer cancel()

	var sent int
	var sendErr error
	for sample := range s.queue {
		if sendErr != nil {
			continue // the stream is broken, drain the queue
		}
		if err := stream.Send(sample); err != nil {
			sendErr = err
			s.logger.Warn(fmt.Sprintf("send failed: %s", err.Error()), slog.Int("sent", sent))
			continue
		}
		sent++
	}

	var timedOut atomic.Bool
	if s.ackTimeout > 0 {
		timer := time.AfterFunc(s.ackTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
		defer timer.Stop()
	}

	ack, err := stream.CloseAndRecv()

	result := Result{Sent: sent}
	if sizer, ok := stream.(interface{ BytesSent() int64 }); ok {
		result.Bytes = sizer.BytesSent()
	}

	switch {
	case err != nil && timedOut.Load():
		result.Err = &TransportError{Kind: s.kind, Err: fmt.Errorf("%w after %s: %w", ErrAckTimeout, s.ackTimeout, err)}
	case err != nil:
		result.Err = &TransportError{Kind: s.kind, Err: err}
	case sendErr != nil && !errors.Is(sendErr, io.EOF):
		result.Err = &TransportError{Kind: s.kind, Err: sendErr}
	default:
		result.Ack = &ack
	}

	s.resolve(result, start)
}

// resolve completes the session; only the first call has an effect
func (s *Session[T]) resolve(r Result, start time.Time) {
	s.once.Do(func() {
		r.Kind = s.kind
		r.Emitted = s.emitted
		r.Elapsed = s.clock.Now().Sub(start)
		s.result = r
		s.state.Store(int32(StateClosed))
		close(s.done)
	})
}
