package contracts

import (
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// TimedEvent is a MIDI message positioned at an absolute tick.
type TimedEvent struct {
	Message midi.Message // Message to play.
	Tick    int64        // Absolute time in the input's native ticks.
}

// TempoMap converts tick time into wall-clock time at nominal speed.
type TempoMap interface {
	ToDuration(tick int64) time.Duration
}

// OutputSink receives every event the playback dispatches.
// Send is called synchronously from the playback's timer goroutine and should return promptly.
type OutputSink interface {
	Send(msg midi.Message) error
}

// Output is an OutputSink that owns a device handle.
type Output interface {
	OutputSink
	Close() error // Releases the device handle.
}

// PlayedEvent describes an event that reached the output sink.
type PlayedEvent struct {
	Message   midi.Message  // Message as it was sent.
	Time      time.Duration // Nominal playback time of the event.
	Tick      int64         // Source tick, or -1 for synthetic events.
	Synthetic bool          // True for catch-up, note interruption and note resume events.
}

// PlayedNote is a note that started or stopped sounding on the output.
type PlayedNote struct {
	Channel  uint8
	Key      uint8
	Velocity uint8         // Velocity of the message that started or ended the note.
	Time     time.Duration // Playback time of that message.
}

// EventCallback can rewrite a timeline event right before it is sent.
// Returning false drops the event.
type EventCallback func(msg midi.Message, tick int64, at time.Duration) (midi.Message, bool)

// NoteStopPolicy decides what happens to sounding notes when playback stops.
type NoteStopPolicy int

const (
	// Interrupt sends a Note Off for every sounding note.
	Interrupt NoteStopPolicy = iota
	// Hold leaves notes sounding on the device.
	Hold
	// Split sends Note Offs and re-sends the same Note Ons on the next start.
	Split
)

func (p NoteStopPolicy) String() string {
	switch p {
	case Interrupt:
		return "interrupt"
	case Hold:
		return "hold"
	case Split:
		return "split"
	}
	return "unknown"
}

// ParseNoteStopPolicy converts a policy name (interrupt, hold, split) into a NoteStopPolicy.
func ParseNoteStopPolicy(name string) (NoteStopPolicy, error) {
	for _, p := range []NoteStopPolicy{Interrupt, Hold, Split} {
		if p.String() == name {
			return p, nil
		}
	}
	return Interrupt, invalidArgument("unknown note stop policy %q", name)
}

// Valid reports whether p is one of the defined policies.
func (p NoteStopPolicy) Valid() bool {
	return p >= Interrupt && p <= Split
}

// State is the lifecycle state of a playback.
type State int

const (
	Idle State = iota
	Running
	Stopped
	Disposed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Disposed:
		return "disposed"
	}
	return "unknown"
}

// TrackedParameter is a set of parameter kinds restored on seek.
type TrackedParameter uint8

const (
	TrackProgram TrackedParameter = 1 << iota
	TrackPitchBend
	TrackControl

	TrackNone TrackedParameter = 0
	TrackAll                   = TrackProgram | TrackPitchBend | TrackControl
)

// Has reports whether every kind in k is part of t.
func (t TrackedParameter) Has(k TrackedParameter) bool {
	return t&k == k
}

// TickGeneratorKind selects the timer strategy that drives the playback clock.
type TickGeneratorKind int

const (
	// GeneratorRegular uses a Go ticker.
	GeneratorRegular TickGeneratorKind = iota
	// GeneratorHighPrecision uses the winmm multimedia timer on Windows and a spin-assisted timer elsewhere.
	GeneratorHighPrecision
	// GeneratorManual produces ticks only when Playback.TickClock is called.
	GeneratorManual
)

func (k TickGeneratorKind) String() string {
	switch k {
	case GeneratorRegular:
		return "regular"
	case GeneratorHighPrecision:
		return "high-precision"
	case GeneratorManual:
		return "manual"
	}
	return "unknown"
}

// ParseTickGeneratorKind converts a generator name (regular, high-precision, manual) into a TickGeneratorKind.
func ParseTickGeneratorKind(name string) (TickGeneratorKind, error) {
	for _, k := range []TickGeneratorKind{GeneratorRegular, GeneratorHighPrecision, GeneratorManual} {
		if k.String() == name {
			return k, nil
		}
	}
	return GeneratorRegular, invalidArgument("unknown tick generator %q", name)
}
