//go:build windows
// +build windows

package midiwindows

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/leandrodaf/midiplay/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
	"go.uber.org/multierr"
	"golang.org/x/sys/windows"
)

// HMIDIOUT is a winmm MIDI output handle.
type HMIDIOUT windows.Handle

// Constants for midiOutOpen
const (
	CALLBACK_NULL = 0x00000000 // No callback
)

var errNoMIDIDevices = errors.New("no MIDI output devices found")

// Load the winmm.dll library and required functions
var (
	winmm                 = windows.NewLazySystemDLL("winmm.dll")
	procMidiOutGetNumDevs = winmm.NewProc("midiOutGetNumDevs")
	procMidiOutOpen       = winmm.NewProc("midiOutOpen")
	procMidiOutShortMsg   = winmm.NewProc("midiOutShortMsg")
	procMidiOutReset      = winmm.NewProc("midiOutReset")
	procMidiOutClose      = winmm.NewProc("midiOutClose")
)

// Output sends short messages to a winmm MIDI output device.
type Output struct {
	logger contracts.Logger
	handle HMIDIOUT
	mu     sync.Mutex
}

// NewOutput opens the MIDI output device selected by options.DeviceID
func NewOutput(options *contracts.OutputOptions) (contracts.Output, error) {
	r0, _, _ := procMidiOutGetNumDevs.Call()
	numDevices := int(r0)
	if numDevices == 0 {
		options.Logger.Warn(errNoMIDIDevices.Error())
		return nil, errNoMIDIDevices
	}
	if options.DeviceID < 0 || options.DeviceID >= numDevices {
		return nil, fmt.Errorf("%w: device %d of %d", contracts.ErrInvalidArgument, options.DeviceID, numDevices)
	}

	o := &Output{logger: options.Logger}
	r1, _, err := procMidiOutOpen.Call(
		uintptr(unsafe.Pointer(&o.handle)),
		uintptr(options.DeviceID),
		0,
		0,
		CALLBACK_NULL,
	)
	if r1 != 0 {
		options.Logger.Error(fmt.Sprintf("Failed to open MIDI output %d: %v", options.DeviceID, err))
		return nil, fmt.Errorf("failed to open MIDI output %d: mmresult %d", options.DeviceID, r1)
	}

	options.Logger.Info(fmt.Sprintf("MIDI output %d opened", options.DeviceID))
	return o, nil
}

// Send writes msg with midiOutShortMsg. System exclusive messages are not supported.
func (o *Output) Send(msg midi.Message) error {
	packed, err := packShortMsg(msg)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.handle == 0 {
		return contracts.ErrOutputClosed
	}
	if r1, _, _ := procMidiOutShortMsg.Call(uintptr(o.handle), uintptr(packed)); r1 != 0 {
		return fmt.Errorf("midiOutShortMsg: mmresult %d", r1)
	}
	return nil
}

// Close silences the device and releases the handle
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.handle == 0 {
		return nil
	}

	var err error
	if r1, _, _ := procMidiOutReset.Call(uintptr(o.handle)); r1 != 0 {
		err = multierr.Append(err, fmt.Errorf("midiOutReset: mmresult %d", r1))
	}
	if r1, _, _ := procMidiOutClose.Call(uintptr(o.handle)); r1 != 0 {
		err = multierr.Append(err, fmt.Errorf("midiOutClose: mmresult %d", r1))
	}
	o.handle = 0
	o.logger.Info("MIDI output closed")
	return err
}
