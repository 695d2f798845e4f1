package playback

import (
	"fmt"
	"math"

	"github.com/leandrodaf/midiplay/internal/clock"
	"github.com/leandrodaf/midiplay/internal/logger"
	"github.com/leandrodaf/midiplay/sdk/contracts"
)

// applyDefaultOptions sets default values for PlaybackOptions if not explicitly provided
// and rejects values the playback cannot work with.
//
// opts ...contracts.Option: A variadic list of option functions that can modify PlaybackOptions.
//
// Returns:
//   - contracts.PlaybackOptions: The finalized options with defaults applied.
//   - error: An error wrapping contracts.ErrInvalidArgument if an option value is invalid.
func applyDefaultOptions(opts ...contracts.Option) (contracts.PlaybackOptions, error) {
	options := &contracts.PlaybackOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Set defaults if options are not provided
	if options.Logger == nil {
		options.Logger = logger.NewZapLogger()
	}
	if !options.LogLevelSet() {
		options.LogLevel = contracts.InfoLevel
	}
	if !options.SpeedSet() {
		options.Speed = 1
	}
	if options.TickInterval == 0 {
		options.TickInterval = clock.DefaultInterval
	}
	if !options.TrackingSet() {
		options.TrackedParameters = contracts.TrackAll
	}

	if err := validate(options); err != nil {
		return contracts.PlaybackOptions{}, err
	}

	options.Logger.SetLevel(options.LogLevel)
	return *options, nil
}

func validate(o *contracts.PlaybackOptions) error {
	switch {
	case o.Speed <= 0 || math.IsNaN(o.Speed) || math.IsInf(o.Speed, 0):
		return fmt.Errorf("%w: speed must be positive, got %v", contracts.ErrInvalidArgument, o.Speed)
	case o.TickInterval < clock.MinInterval:
		return fmt.Errorf("%w: tick interval must be at least %s, got %s",
			contracts.ErrInvalidArgument, clock.MinInterval, o.TickInterval)
	case o.PlaybackStart < 0:
		return fmt.Errorf("%w: negative playback start %s", contracts.ErrInvalidArgument, o.PlaybackStart)
	case o.PlaybackEndSet() && o.PlaybackEnd <= o.PlaybackStart:
		return fmt.Errorf("%w: playback end %s is not after start %s",
			contracts.ErrInvalidArgument, o.PlaybackEnd, o.PlaybackStart)
	case !o.NoteStopPolicy.Valid():
		return fmt.Errorf("%w: unknown note stop policy %d", contracts.ErrInvalidArgument, o.NoteStopPolicy)
	case o.LoopPolicy != contracts.Interrupt && o.LoopPolicy != contracts.Hold:
		return fmt.Errorf("%w: loop policy must be interrupt or hold, got %s", contracts.ErrInvalidArgument, o.LoopPolicy)
	case o.TrackedParameters&^contracts.TrackAll != 0:
		return fmt.Errorf("%w: unknown tracked parameters %#x", contracts.ErrInvalidArgument, uint8(o.TrackedParameters))
	case o.LogLevel < contracts.DebugLevel || o.LogLevel > contracts.FatalLevel:
		return fmt.Errorf("%w: unknown log level %d", contracts.ErrInvalidArgument, o.LogLevel)
	}

	switch o.TickGenerator {
	case contracts.GeneratorRegular, contracts.GeneratorHighPrecision, contracts.GeneratorManual:
	default:
		return fmt.Errorf("%w: unknown tick generator %d", contracts.ErrInvalidArgument, o.TickGenerator)
	}
	return nil
}
