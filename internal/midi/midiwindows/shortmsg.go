package midiwindows

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// ErrUnsupportedMessage is returned for messages that do not fit a short message.
var ErrUnsupportedMessage = errors.New("message cannot be sent as a short MIDI message")

// packShortMsg packs a channel or system common message into the dwMsg
// layout of midiOutShortMsg: status in the low byte, then data1 and data2.
func packShortMsg(msg midi.Message) (uint32, error) {
	if len(msg) == 0 || len(msg) > 3 || msg[0] < 0x80 || msg[0] == 0xF0 {
		return 0, fmt.Errorf("%w: % X", ErrUnsupportedMessage, []byte(msg))
	}
	var packed uint32
	for i, b := range msg {
		packed |= uint32(b) << (8 * i)
	}
	return packed, nil
}
