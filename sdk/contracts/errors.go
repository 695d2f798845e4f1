package contracts

import (
	"errors"
	"fmt"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// Error definitions shared by the playback and the output sinks.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("operation not valid in the current state")
	ErrDisposed        = errors.New("playback is disposed")
	ErrOutputClosed    = errors.New("output is closed")
	ErrOutputPanic     = errors.New("output panicked")
)

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// DispatchError is reported when the output sink fails to send an event.
// Playback keeps going after a DispatchError.
type DispatchError struct {
	Message midi.Message  // Event that could not be sent.
	Time    time.Duration // Playback time the event belongs to.
	Err     error         // Error returned by the sink.
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("send %s at %s: %v", e.Message.String(), e.Time, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
