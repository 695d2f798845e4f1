// Package midifile turns Standard MIDI Files into playback input.
package midifile

import (
	"fmt"
	"io"
	"slices"

	"github.com/leandrodaf/midiplay/internal/tempo"
	"github.com/leandrodaf/midiplay/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Song is the playback input read from a file: one event stream per track
// and the tempo map of the file.
type Song struct {
	Streams    [][]contracts.TimedEvent
	TempoMap   contracts.TempoMap
	Resolution smf.MetricTicks
}

// Events returns the number of events across all streams.
func (s *Song) Events() int {
	n := 0
	for _, stream := range s.Streams {
		n += len(stream)
	}
	return n
}

// Load reads the Standard MIDI File at path.
func Load(path string) (*Song, error) {
	f, err := smf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return FromSMF(f)
}

// Read reads a Standard MIDI File from r.
func Read(r io.Reader) (*Song, error) {
	f, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read MIDI file: %w", err)
	}
	return FromSMF(f)
}

// FromSMF converts a parsed file. Channel messages become events; tempo meta
// events build the tempo map; everything else is dropped. Only metric time
// formats are supported.
func FromSMF(f *smf.SMF) (*Song, error) {
	resolution, ok := f.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported time format %v", contracts.ErrInvalidArgument, f.TimeFormat)
	}

	song := &Song{Resolution: resolution}
	var changes []tempo.Change

	for _, track := range f.Tracks {
		var abs int64
		var stream []contracts.TimedEvent
		for _, ev := range track {
			abs += int64(ev.Delta)

			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) {
				changes = append(changes, tempo.Change{Tick: abs, BPM: bpm})
				continue
			}
			if isChannelMessage(ev.Message) {
				stream = append(stream, contracts.TimedEvent{
					Message: midi.Message(slices.Clone(ev.Message)),
					Tick:    abs,
				})
			}
		}
		song.Streams = append(song.Streams, stream)
	}

	tm, err := tempo.New(resolution, changes)
	if err != nil {
		return nil, err
	}
	song.TempoMap = tm
	return song, nil
}

func isChannelMessage(msg smf.Message) bool {
	return len(msg) > 0 && msg[0] >= 0x80 && msg[0] < 0xF0
}
