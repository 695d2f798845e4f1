// Package playback creates playbacks that send timed MIDI events to an output
// in real time.
package playback

import (
	scheduler "github.com/leandrodaf/midiplay/internal/playback"
	"github.com/leandrodaf/midiplay/sdk/contracts"
)

// NewPlayback creates a playback of streams, positioned at zero and not running.
// It applies default options and builds the timeline once; the input is copied.
//
// streams [][]contracts.TimedEvent: One or more event streams, merged by tick.
// tm contracts.TempoMap: Converts ticks into wall-clock time at nominal speed.
// out contracts.OutputSink: Receives every dispatched event. May be nil.
// opts ...contracts.Option: A variadic list of option functions to customize the playback.
//
// Returns:
//   - contracts.Playback: The playback, which must be closed when no longer needed.
//   - error: An error wrapping contracts.ErrInvalidArgument if the arguments or options are invalid.
func NewPlayback(streams [][]contracts.TimedEvent, tm contracts.TempoMap, out contracts.OutputSink, opts ...contracts.Option) (contracts.Playback, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	p, err := scheduler.New(scheduler.Config{
		Streams:  streams,
		TempoMap: tm,
		Output:   out,
		Options:  options,
	})
	if err != nil {
		return nil, err
	}

	options.Logger.Info("Playback ready",
		options.Logger.Field().Duration("duration", p.Duration()),
		options.Logger.Field().Float64("speed", options.Speed),
		options.Logger.Field().Bool("loop", options.Loop))
	return p, nil
}
