package midi

import (
	"fmt"

	"github.com/leandrodaf/midiplay/internal/logger"
	"github.com/leandrodaf/midiplay/sdk/contracts"
)

// applyDefaultOptions sets default values for OutputOptions if not explicitly provided.
//
// opts ...contracts.OutputOption: A variadic list of option functions that can modify OutputOptions.
//
// Returns:
//   - contracts.OutputOptions: A structure containing the finalized output options with defaults applied.
//   - error: An error if an option value is invalid.
func applyDefaultOptions(opts ...contracts.OutputOption) (contracts.OutputOptions, error) {
	options := &contracts.OutputOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Set defaults if options are not provided
	if options.Logger == nil {
		options.Logger = logger.NewZapLogger() // Default to a production logger
	}
	if options.LogLevel == 0 {
		options.LogLevel = contracts.InfoLevel // Default log level to InfoLevel
	}

	if options.CoreMIDIConfig == nil {
		options.CoreMIDIConfig = &contracts.CoreMIDIConfig{} // Default CoreMIDI config
	}
	if options.CoreMIDIConfig.ClientName == "" {
		options.CoreMIDIConfig.ClientName = "GO MIDI Playback"
	}
	if options.CoreMIDIConfig.PortName == "" {
		options.CoreMIDIConfig.PortName = "Output Port"
	}

	if options.DeviceID < 0 {
		return contracts.OutputOptions{}, fmt.Errorf("%w: negative device ID %d", contracts.ErrInvalidArgument, options.DeviceID)
	}

	options.Logger.SetLevel(options.LogLevel) // Set the logger to the specified log level
	return *options, nil
}
