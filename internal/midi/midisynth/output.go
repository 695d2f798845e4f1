// Package midisynth feeds playback output into a meltysynth software synthesizer.
// Rendering audio stays with the caller, who pulls samples with Render.
package midisynth

import (
	"fmt"
	"sync"

	"github.com/leandrodaf/midiplay/sdk/contracts"
	"github.com/sinshu/go-meltysynth/meltysynth"
	"gitlab.com/gomidi/midi/v2"
)

// synthesizer is the part of *meltysynth.Synthesizer the output uses.
type synthesizer interface {
	ProcessMidiMessage(channel int32, command int32, data1 int32, data2 int32)
	NoteOffAll(immediate bool)
	Render(left []float32, right []float32)
}

// Output forwards channel messages to a synthesizer. Send and Render may be
// called from different goroutines.
type Output struct {
	logger contracts.Logger
	synth  synthesizer
	mu     sync.Mutex
	closed bool
}

// New returns an output driving synth.
func New(synth *meltysynth.Synthesizer, logger contracts.Logger) (*Output, error) {
	if synth == nil {
		return nil, fmt.Errorf("%w: nil synthesizer", contracts.ErrInvalidArgument)
	}
	return newOutput(synth, logger), nil
}

func newOutput(synth synthesizer, logger contracts.Logger) *Output {
	return &Output{logger: logger, synth: synth}
}

// Send forwards a channel message. System messages are dropped.
func (o *Output) Send(msg midi.Message) error {
	if len(msg) == 0 || msg[0] < 0x80 {
		return fmt.Errorf("%w: malformed message % X", contracts.ErrInvalidArgument, []byte(msg))
	}
	if msg[0] >= 0xF0 {
		o.logger.Debug("System message ignored by synthesizer", o.logger.Field().String("message", msg.String()))
		return nil
	}

	var data1, data2 int32
	if len(msg) > 1 {
		data1 = int32(msg[1])
	}
	if len(msg) > 2 {
		data2 = int32(msg[2])
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return contracts.ErrOutputClosed
	}
	o.synth.ProcessMidiMessage(int32(msg[0]&0x0F), int32(msg[0]&0xF0), data1, data2)
	return nil
}

// Render fills left and right with the next block of samples.
func (o *Output) Render(left, right []float32) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.synth.Render(left, right)
}

// Close releases every voice and stops accepting messages.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		o.synth.NoteOffAll(true)
	}
	return nil
}
