package midi

import (
	"github.com/leandrodaf/midiplay/internal/midi/midiport"
	"github.com/leandrodaf/midiplay/internal/midi/midisynth"
	"github.com/leandrodaf/midiplay/sdk/contracts"
	"github.com/sinshu/go-meltysynth/meltysynth"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// NewOutput opens the system MIDI output device chosen by the options.
// It applies default options and initializes the device output for the current OS.
//
// opts ...contracts.OutputOption: A variadic list of option functions to customize the output.
//
// Returns:
//   - contracts.Output: An output that must be closed when no longer needed.
//   - error: An error, if any occurred while opening the device.
func NewOutput(opts ...contracts.OutputOption) (contracts.Output, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	return NewDeviceOutput(&options)
}

// NewPortOutput sends to a port of a registered gomidi driver, such as rtmididrv.
func NewPortOutput(port drivers.Out, opts ...contracts.OutputOption) (contracts.Output, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	out, err := midiport.New(port, options.Logger)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SynthOutput is an output that drives a software synthesizer. Render pulls
// audio from it.
type SynthOutput interface {
	contracts.Output
	Render(left, right []float32)
}

// NewSynthOutput forwards channel messages to a meltysynth synthesizer.
func NewSynthOutput(synth *meltysynth.Synthesizer, opts ...contracts.OutputOption) (SynthOutput, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	out, err := midisynth.New(synth, options.Logger)
	if err != nil {
		return nil, err
	}
	return out, nil
}
