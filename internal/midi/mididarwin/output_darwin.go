//go:build darwin
// +build darwin

package mididarwin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/midiplay/sdk/contracts"
	"github.com/youpy/go-coremidi"
	"gitlab.com/gomidi/midi/v2"
)

// Error definitions for CoreMIDI output issues.
var (
	ErrNoMIDIDevices     = errors.New("no MIDI destinations found")
	ErrInvalidMIDIDevice = errors.New("invalid MIDI device")
	ErrCreateOutputPort  = errors.New("error creating output port")
)

// Output sends messages to a CoreMIDI destination.
type Output struct {
	logger contracts.Logger
	client coremidi.Client
	port   coremidi.OutputPort
	dest   coremidi.Destination
	mu     sync.Mutex
	closed bool
}

// NewOutput connects to the destination selected by options.DeviceID.
func NewOutput(options *contracts.OutputOptions) (contracts.Output, error) {
	destinations, err := coremidi.AllDestinations()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI destinations: %w", err)
	}
	if len(destinations) == 0 {
		options.Logger.Warn(ErrNoMIDIDevices.Error())
		return nil, ErrNoMIDIDevices
	}
	if options.DeviceID < 0 || options.DeviceID >= len(destinations) {
		options.Logger.Error(ErrInvalidMIDIDevice.Error(), options.Logger.Field().Int("deviceID", options.DeviceID))
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidMIDIDevice, options.DeviceID, len(destinations))
	}

	client, err := coremidi.NewClient(options.CoreMIDIConfig.ClientName)
	if err != nil {
		return nil, err
	}
	port, err := coremidi.NewOutputPort(client, options.CoreMIDIConfig.PortName)
	if err != nil {
		options.Logger.Error(ErrCreateOutputPort.Error())
		return nil, fmt.Errorf("%w: %v", ErrCreateOutputPort, err)
	}

	dest := destinations[options.DeviceID]
	options.Logger.Info("MIDI destination selected",
		options.Logger.Field().Int("deviceID", options.DeviceID),
		options.Logger.Field().String("deviceName", dest.Name()))

	return &Output{
		logger: options.Logger,
		client: client,
		port:   port,
		dest:   dest,
	}, nil
}

// Send delivers msg as a single packet.
func (o *Output) Send(msg midi.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return contracts.ErrOutputClosed
	}
	packet := coremidi.NewPacket(msg, 0)
	if err := packet.Send(&o.port, &o.dest); err != nil {
		return fmt.Errorf("coremidi send: %w", err)
	}
	return nil
}

// Close stops accepting messages. It is safe to call more than once.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		o.logger.Info("MIDI output closed")
	}
	return nil
}
