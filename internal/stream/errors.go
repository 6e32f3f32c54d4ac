package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrAckTimeout is returned when the endpoint does not acknowledge a closed stream in time
	ErrAckTimeout = errors.New("acknowledgement timed out")

	// ErrSessionUsed is returned when Run is called on a session more than once
	ErrSessionUsed = errors.New("session already started")

	// ErrInvalidRate is returned for a non-positive emission rate
	ErrInvalidRate = errors.New("rate must be positive")

	// ErrInvalidCount is returned for a negative sample count
	ErrInvalidCount = errors.New("sample count must not be negative")
)

// SetupError is returned when the outbound stream could not be opened.
// No sample has been emitted when a session fails with a SetupError.
type SetupError struct {
	Kind string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: opening stream: %s", e.Kind, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// TransportError is delivered through the session completion after the stream
// has been opened: a failed send, a failed acknowledgement or an ack timeout.
type TransportError struct {
	Kind string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: stream failed: %s", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
