// Package timeline merges event streams into one ordered list of playback
// items with precomputed wall-clock times.
package timeline

import (
	"iter"
	"math"
	"slices"
	"time"

	"github.com/leandrodaf/midiplay/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
)

// Item is an event ready to be dispatched at Time.
type Item struct {
	Message midi.Message
	Time    time.Duration
	Tick    int64
	rank    int8
}

// Ordering classes for items sharing a tick: system messages first, then
// channel messages that are not notes, then notes.
const (
	rankSystem int8 = iota
	rankChannel
	rankNote
)

// Timeline is immutable after Build.
type Timeline struct {
	items []Item
	spans []Span
}

// Build merges streams and converts ticks to time with tm. Empty messages are
// dropped and negative ticks are treated as zero. Items with equal ticks keep
// their input order within a rank.
func Build(streams [][]contracts.TimedEvent, tm contracts.TempoMap) *Timeline {
	n := 0
	for _, s := range streams {
		n += len(s)
	}

	items := make([]Item, 0, n)
	for _, s := range streams {
		for _, ev := range s {
			if len(ev.Message) == 0 {
				continue
			}
			tick := ev.Tick
			if tick < 0 {
				tick = 0
			}
			msg := midi.Message(slices.Clone([]byte(ev.Message)))
			items = append(items, Item{Message: msg, Tick: tick, rank: rankOf(msg)})
		}
	}

	slices.SortStableFunc(items, func(a, b Item) int {
		if a.Tick != b.Tick {
			if a.Tick < b.Tick {
				return -1
			}
			return 1
		}
		return int(a.rank) - int(b.rank)
	})

	var last time.Duration
	for i := range items {
		t := tm.ToDuration(items[i].Tick)
		if t < last {
			t = last
		}
		items[i].Time = t
		last = t
	}

	return &Timeline{items: items, spans: buildSpans(items)}
}

func rankOf(msg midi.Message) int8 {
	status := msg[0]
	switch {
	case status < 0x80 || status >= 0xF0:
		return rankSystem
	case status&0xF0 == 0x80 || status&0xF0 == 0x90:
		return rankNote
	}
	return rankChannel
}

// Items returns the ordered items. The slice must not be modified.
func (t *Timeline) Items() []Item { return t.items }

// Len returns the number of items.
func (t *Timeline) Len() int { return len(t.items) }

// Duration returns the time of the last item.
func (t *Timeline) Duration() time.Duration {
	if len(t.items) == 0 {
		return 0
	}
	return t.items[len(t.items)-1].Time
}

// DurationTicks returns the tick of the last item.
func (t *Timeline) DurationTicks() int64 {
	if len(t.items) == 0 {
		return 0
	}
	return t.items[len(t.items)-1].Tick
}

// Cursor walks a timeline. It is not safe for concurrent use.
type Cursor struct {
	tl  *Timeline
	pos int
}

// NewCursor returns a cursor at the first item.
func (t *Timeline) NewCursor() *Cursor {
	return &Cursor{tl: t}
}

// Reset moves the cursor back to the first item.
func (c *Cursor) Reset() { c.pos = 0 }

// AdvanceTo yields every pending item with Time <= now, in order. An item is
// consumed before it is yielded, so breaking out of the loop does not replay it.
func (c *Cursor) AdvanceTo(now time.Duration) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for c.pos < len(c.tl.items) && c.tl.items[c.pos].Time <= now {
			it := c.tl.items[c.pos]
			c.pos++
			if !yield(it) {
				return
			}
		}
	}
}

// Current returns the next pending item.
func (c *Cursor) Current() (Item, bool) {
	if c.pos >= len(c.tl.items) {
		return Item{}, false
	}
	return c.tl.items[c.pos], true
}

// MoveTo positions the cursor on the first item with Time >= t.
func (c *Cursor) MoveTo(t time.Duration) {
	c.pos, _ = slices.BinarySearchFunc(c.tl.items, t, func(it Item, t time.Duration) int {
		if it.Time < t {
			return -1
		}
		return 1
	})
}

// PendingTick returns the tick of the next pending item, or math.MaxInt64 when
// the cursor is exhausted.
func (c *Cursor) PendingTick() int64 {
	if c.pos >= len(c.tl.items) {
		return math.MaxInt64
	}
	return c.tl.items[c.pos].Tick
}

// Done reports whether every item has been consumed.
func (c *Cursor) Done() bool {
	return c.pos >= len(c.tl.items)
}

// Events yields the tick and message of every item in order.
func (t *Timeline) Events() iter.Seq2[int64, midi.Message] {
	return func(yield func(int64, midi.Message) bool) {
		for _, it := range t.items {
			if !yield(it.Tick, it.Message) {
				return
			}
		}
	}
}
