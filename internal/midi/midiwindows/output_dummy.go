//go:build !windows
// +build !windows

package midiwindows

import (
	"fmt"

	"github.com/leandrodaf/midiplay/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
)

type dummyOutput struct {
	logger contracts.Logger
}

// NewOutput initializes a dummy MIDI output for non-Windows systems.
func NewOutput(options *contracts.OutputOptions) (contracts.Output, error) {
	options.Logger.Info("Using dummy MIDI output for non-Windows system")
	return &dummyOutput{
		logger: options.Logger,
	}, nil
}

func (o *dummyOutput) Send(msg midi.Message) error {
	o.logger.Warn("Send called on dummy MIDI output")
	return fmt.Errorf("MIDI functionality is not available on this platform")
}

func (o *dummyOutput) Close() error {
	return nil
}
