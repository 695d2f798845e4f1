package timeline

import (
	"math"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// Span is a note from its Note On to the matching Note Off.
type Span struct {
	On      midi.Message
	Channel uint8
	Key     uint8
	Start   time.Duration
	End     time.Duration // math.MaxInt64 when the note is never released.
}

type noteKey struct{ channel, key uint8 }

// buildSpans pairs Note Ons with Note Offs first-in first-out per channel and key.
func buildSpans(items []Item) []Span {
	var spans []Span
	open := map[noteKey][]int{}

	for _, it := range items {
		var ch, key, vel uint8
		switch {
		case it.Message.GetNoteOn(&ch, &key, &vel) && vel > 0:
			k := noteKey{ch, key}
			open[k] = append(open[k], len(spans))
			spans = append(spans, Span{
				On:      it.Message,
				Channel: ch,
				Key:     key,
				Start:   it.Time,
				End:     time.Duration(math.MaxInt64),
			})
		case it.Message.GetNoteOn(&ch, &key, &vel), it.Message.GetNoteOff(&ch, &key, &vel):
			k := noteKey{ch, key}
			if q := open[k]; len(q) > 0 {
				spans[q[0]].End = it.Time
				open[k] = q[1:]
			}
		}
	}
	return spans
}

// Spans returns every note span in start order.
func (t *Timeline) Spans() []Span { return t.spans }

// NotesAt returns the spans sounding across t, that is started before t and
// released after it, in start order.
func (t *Timeline) NotesAt(at time.Duration) []Span {
	var out []Span
	for _, s := range t.spans {
		if s.Start >= at {
			break
		}
		if s.End > at {
			out = append(out, s)
		}
	}
	return out
}
