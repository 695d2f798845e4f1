// Package midiport sends playback output to a port of a registered gomidi driver.
package midiport

import (
	"fmt"
	"sync"

	"github.com/leandrodaf/midiplay/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Output wraps a gomidi output port.
type Output struct {
	logger contracts.Logger
	port   drivers.Out
	send   func(midi.Message) error
	mu     sync.Mutex
	closed bool
}

// New opens port if needed and returns an output writing to it.
func New(port drivers.Out, logger contracts.Logger) (*Output, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: nil port", contracts.ErrInvalidArgument)
	}
	send, err := midi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open port %s: %w", port, err)
	}
	logger.Info("MIDI port opened",
		logger.Field().Int("port", port.Number()),
		logger.Field().String("name", port.String()))
	return &Output{logger: logger, port: port, send: send}, nil
}

// Send writes msg to the port.
func (o *Output) Send(msg midi.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return contracts.ErrOutputClosed
	}
	return o.send(msg)
}

// Close closes the port. It is safe to call more than once.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	o.logger.Info("MIDI port closed", o.logger.Field().String("name", o.port.String()))
	return o.port.Close()
}
