package contracts

import (
	"context"
	"time"
)

// Playback plays timed MIDI events to an output sink in real time.
type Playback interface {
	// Start starts or resumes playback without blocking.
	Start() error
	// Stop pauses playback, keeping the position, and applies the note stop policy.
	Stop() error
	// Play starts playback and blocks until it finishes, is stopped or ctx is done.
	Play(ctx context.Context) error

	// MoveToStart moves the position to the start of the play region.
	MoveToStart() error
	// MoveToTime moves the position to t, clamped to the play region.
	MoveToTime(t time.Duration) error
	// MoveForward shifts the position forward by step.
	MoveForward(step time.Duration) error
	// MoveBack shifts the position back by step, stopping at the region start.
	MoveBack(step time.Duration) error

	CurrentTime() (time.Duration, error)
	Duration() time.Duration
	// Region returns the play region. Without explicit bounds it is [0, Duration()].
	Region() (start, end time.Duration)
	State() State
	IsRunning() bool

	// TickClock produces one clock tick. It is how an externally clocked
	// playback (GeneratorManual) advances.
	TickClock() error

	Speed() float64
	SetSpeed(speed float64) error
	Loop() bool
	SetLoop(loop bool) error
	NoteStopPolicy() NoteStopPolicy
	SetNoteStopPolicy(policy NoteStopPolicy) error
	// SetTracking enables or disables restoring of a parameter kind on seek.
	SetTracking(kind TrackedParameter, enabled bool) error

	// Close stops playback and releases the clock. It is safe to call more than once.
	Close() error
}
