//go:build !darwin
// +build !darwin

package mididarwin

import (
	"fmt"

	"github.com/leandrodaf/midiplay/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
)

type DummyOutput struct {
	logger contracts.Logger
}

func NewOutput(options *contracts.OutputOptions) (contracts.Output, error) {
	options.Logger.Info("Using dummy MIDI output for non-macOS system")
	return &DummyOutput{
		logger: options.Logger,
	}, nil
}

func (o *DummyOutput) Send(msg midi.Message) error {
	o.logger.Warn("Send called on dummy MIDI output")
	return fmt.Errorf("MIDI functionality is not available on this platform")
}

func (o *DummyOutput) Close() error {
	return nil
}
