package midi

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/leandrodaf/midiplay/internal/midi/mididarwin"
	"github.com/leandrodaf/midiplay/internal/midi/midiwindows"
	"github.com/leandrodaf/midiplay/sdk/contracts"
)

// ErrUnsupportedOS is returned when the operating system has no device output.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// outputInitializers maps OS names to corresponding device output initializers.
var outputInitializers = map[string]func(*contracts.OutputOptions) (contracts.Output, error){
	"darwin":  mididarwin.NewOutput,  // macOS (Darwin) CoreMIDI output.
	"windows": midiwindows.NewOutput, // Windows winmm output.
}

// NewDeviceOutput initializes a device output based on the current operating system.
// It supports macOS (Darwin) and Windows, returning ErrUnsupportedOS elsewhere.
// Other systems can use NewPortOutput with a gomidi driver.
func NewDeviceOutput(opts *contracts.OutputOptions) (contracts.Output, error) {
	if initializer, exists := outputInitializers[runtime.GOOS]; exists {
		return initializer(opts)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, runtime.GOOS)
}
