// Package notes keeps track of notes sounding on the device and implements
// what happens to them when playback stops.
package notes

import (
	"cmp"
	"maps"
	"slices"

	"github.com/leandrodaf/midiplay/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
)

// Identity is a sounding note. A second Note On for the same identity replaces the first.
type Identity struct {
	Channel uint8
	Key     uint8
}

func compareIdentity(a, b Identity) int {
	if c := cmp.Compare(a.Channel, b.Channel); c != 0 {
		return c
	}
	return cmp.Compare(a.Key, b.Key)
}

// Registry maps sounding notes to the Note On that started them.
type Registry struct {
	active map[Identity]midi.Message
	held   []midi.Message
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: map[Identity]midi.Message{}}
}

// Observe updates the registry with a message that reached the device.
func (r *Registry) Observe(msg midi.Message) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		if vel == 0 {
			delete(r.active, Identity{ch, key})
			return
		}
		r.active[Identity{ch, key}] = msg
	case msg.GetNoteOff(&ch, &key, &vel):
		delete(r.active, Identity{ch, key})
	}
}

// IsActive reports whether id is sounding.
func (r *Registry) IsActive(id Identity) bool {
	_, ok := r.active[id]
	return ok
}

// Active returns the sounding notes in channel then key order.
func (r *Registry) Active() []Identity {
	ids := slices.Collect(maps.Keys(r.active))
	slices.SortFunc(ids, compareIdentity)
	return ids
}

// Len returns the number of sounding notes.
func (r *Registry) Len() int { return len(r.active) }

// Stop empties the registry according to policy and returns the messages to
// send, Note Offs in channel then key order.
//
// Interrupt and Split both release every note; Split also remembers the Note
// Ons so Resume can start them again. Hold releases nothing.
func (r *Registry) Stop(policy contracts.NoteStopPolicy) []midi.Message {
	ids := r.Active()
	var offs []midi.Message

	switch policy {
	case contracts.Interrupt, contracts.Split:
		offs = make([]midi.Message, 0, len(ids))
		for _, id := range ids {
			offs = append(offs, midi.NoteOff(id.Channel, id.Key))
		}
		if policy == contracts.Split {
			r.held = r.held[:0]
			for _, id := range ids {
				r.held = append(r.held, r.active[id])
			}
		}
	}

	clear(r.active)
	return offs
}

// Resume returns the Note Ons held by the last Split stop, once.
func (r *Registry) Resume() []midi.Message {
	held := r.held
	r.held = nil
	return held
}

// Held returns the number of notes waiting for Resume.
func (r *Registry) Held() int { return len(r.held) }

// Forget drops held notes. A seek invalidates them.
func (r *Registry) Forget() {
	r.held = nil
}
