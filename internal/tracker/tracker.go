// Package tracker follows program, pitch bend and controller values so a
// jump in playback position can bring the device to the state it would have
// reached by playing straight through.
package tracker

import (
	"iter"

	"github.com/leandrodaf/midiplay/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
)

// Values in effect before a channel has seen any message.
const (
	DefaultProgram   uint8  = 0
	DefaultPitchBend uint16 = 8192
	DefaultControl   uint8  = 0
)

const (
	channels    = 16
	controllers = 128
)

type slot[T comparable] struct {
	value T
	known bool
}

// Cache is the last value sent to the device for each parameter.
type Cache struct {
	programs [channels]slot[uint8]
	pitch    [channels]slot[uint16]
	controls [channels][controllers]slot[uint8]
}

// Program returns the cached program of ch.
func (c *Cache) Program(ch uint8) (uint8, bool) {
	s := c.programs[ch&0x0F]
	return s.value, s.known
}

// PitchBend returns the cached absolute pitch bend of ch.
func (c *Cache) PitchBend(ch uint8) (uint16, bool) {
	s := c.pitch[ch&0x0F]
	return s.value, s.known
}

// Control returns the cached value of controller ctl on ch.
func (c *Cache) Control(ch, ctl uint8) (uint8, bool) {
	s := c.controls[ch&0x0F][ctl&0x7F]
	return s.value, s.known
}

// Source yields the (tick, message) pairs a Tracker scans. It may be iterated more than once.
type Source = iter.Seq2[int64, midi.Message]

// Tracker holds value lines built from a timeline and the cache of what the
// device currently has.
type Tracker struct {
	src      Source
	kinds    contracts.TrackedParameter
	filter   [controllers]bool
	programs [channels]*ValueLine[uint8]
	pitch    [channels]*ValueLine[uint16]
	controls [channels][controllers]*ValueLine[uint8]
	cache    Cache
}

// New scans src once for every enabled kind. An empty controller list tracks
// every controller.
func New(src Source, kinds contracts.TrackedParameter, ctls []uint8) *Tracker {
	t := &Tracker{src: src}
	if len(ctls) == 0 {
		for i := range t.filter {
			t.filter[i] = true
		}
	}
	for _, c := range ctls {
		t.filter[c&0x7F] = true
	}
	for _, k := range []contracts.TrackedParameter{contracts.TrackProgram, contracts.TrackPitchBend, contracts.TrackControl} {
		if kinds.Has(k) {
			t.enable(k)
		}
	}
	return t
}

// Kinds returns the enabled kinds.
func (t *Tracker) Kinds() contracts.TrackedParameter { return t.kinds }

// Cache returns the current device state as far as the tracker knows it.
func (t *Tracker) Cache() *Cache { return &t.cache }

// SetEnabled turns tracking of kind on or off. Enabling rescans the source.
func (t *Tracker) SetEnabled(kind contracts.TrackedParameter, on bool) {
	for _, k := range []contracts.TrackedParameter{contracts.TrackProgram, contracts.TrackPitchBend, contracts.TrackControl} {
		if !kind.Has(k) {
			continue
		}
		switch {
		case on && !t.kinds.Has(k):
			t.enable(k)
		case !on && t.kinds.Has(k):
			t.disable(k)
		}
	}
}

func (t *Tracker) enable(kind contracts.TrackedParameter) {
	t.kinds |= kind
	if t.src == nil {
		return
	}
	for tick, msg := range t.src {
		var ch, a, b uint8
		switch kind {
		case contracts.TrackProgram:
			if msg.GetProgramChange(&ch, &a) {
				line := t.programs[ch]
				if line == nil {
					line = NewValueLine(DefaultProgram)
					t.programs[ch] = line
				}
				line.Set(tick, a)
			}
		case contracts.TrackPitchBend:
			var rel int16
			var abs uint16
			if msg.GetPitchBend(&ch, &rel, &abs) {
				line := t.pitch[ch]
				if line == nil {
					line = NewValueLine(DefaultPitchBend)
					t.pitch[ch] = line
				}
				line.Set(tick, abs)
			}
		case contracts.TrackControl:
			if msg.GetControlChange(&ch, &a, &b) && t.filter[a] {
				line := t.controls[ch][a]
				if line == nil {
					line = NewValueLine(DefaultControl)
					t.controls[ch][a] = line
				}
				line.Set(tick, b)
			}
		}
	}
}

func (t *Tracker) disable(kind contracts.TrackedParameter) {
	t.kinds &^= kind
	switch kind {
	case contracts.TrackProgram:
		t.programs = [channels]*ValueLine[uint8]{}
	case contracts.TrackPitchBend:
		t.pitch = [channels]*ValueLine[uint16]{}
	case contracts.TrackControl:
		t.controls = [channels][controllers]*ValueLine[uint8]{}
	}
}

// Observe records a message that reached the device.
func (t *Tracker) Observe(msg midi.Message) {
	var ch, a, b uint8
	var rel int16
	var abs uint16
	switch {
	case msg.GetProgramChange(&ch, &a):
		t.cache.programs[ch] = slot[uint8]{a, true}
	case msg.GetPitchBend(&ch, &rel, &abs):
		t.cache.pitch[ch] = slot[uint16]{abs, true}
	case msg.GetControlChange(&ch, &a, &b):
		t.cache.controls[ch][a] = slot[uint8]{b, true}
	}
}

// CatchUp returns the messages that bring the device to the state in effect
// right before tick, for every enabled kind. When pending is true the samples
// at tick are about to be played, so lines holding one are left alone. The
// caller sends the messages and passes each delivered one to Observe.
//
// Programs come first, then pitch bends, then controllers, each by channel.
func (t *Tracker) CatchUp(tick int64, pending bool) []midi.Message {
	return t.CatchUpKind(contracts.TrackAll, tick, pending)
}

// CatchUpKind is CatchUp restricted to kinds.
func (t *Tracker) CatchUpKind(kinds contracts.TrackedParameter, tick int64, pending bool) []midi.Message {
	var out []midi.Message
	kinds &= t.kinds

	if kinds.Has(contracts.TrackProgram) {
		for ch, line := range t.programs {
			if v, ok := catchUp(line, &t.cache.programs[ch], tick, pending); ok {
				out = append(out, midi.ProgramChange(uint8(ch), v))
			}
		}
	}
	if kinds.Has(contracts.TrackPitchBend) {
		for ch, line := range t.pitch {
			if v, ok := catchUp(line, &t.cache.pitch[ch], tick, pending); ok {
				out = append(out, midi.Pitchbend(uint8(ch), int16(v)-int16(DefaultPitchBend)))
			}
		}
	}
	if kinds.Has(contracts.TrackControl) {
		for ch := range t.controls {
			for ctl, line := range t.controls[ch] {
				if v, ok := catchUp(line, &t.cache.controls[ch][ctl], tick, pending); ok {
					out = append(out, midi.ControlChange(uint8(ch), uint8(ctl), v))
				}
			}
		}
	}
	return out
}

// catchUp decides whether line needs a message to reach its value before tick.
// An unknown cache slot is seeded silently when no sample precedes tick; a
// sample is always sent to it, even one equal to the default.
func catchUp[T comparable](line *ValueLine[T], s *slot[T], tick int64, pending bool) (T, bool) {
	var zero T
	if line == nil || (pending && line.HasAt(tick)) {
		return zero, false
	}
	v, sampled := line.SampleBefore(tick)
	if s.known {
		return v, s.value != v
	}
	if !sampled {
		*s = slot[T]{v, true}
		return zero, false
	}
	return v, true
}
