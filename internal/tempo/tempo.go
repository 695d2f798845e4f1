// Package tempo converts between ticks and wall-clock time for metric
// (pulses per quarter note) time divisions.
package tempo

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/leandrodaf/midiplay/sdk/contracts"
	"gitlab.com/gomidi/midi/v2/smf"
)

// DefaultBPM is in effect until the first tempo change.
const DefaultBPM = 120.0

// Change sets the tempo from Tick on.
type Change struct {
	Tick int64
	BPM  float64
}

type segment struct {
	tick      int64
	start     time.Duration
	nsPerTick float64
}

// Map is a piecewise linear tick to time conversion.
type Map struct {
	resolution smf.MetricTicks
	changes    []Change
	segments   []segment
}

var _ contracts.TempoMap = (*Map)(nil)

// New builds a map from tempo changes in any order. When several changes
// share a tick the last one wins.
func New(resolution smf.MetricTicks, changes []Change) (*Map, error) {
	if resolution == 0 {
		return nil, fmt.Errorf("%w: zero ticks per quarter note", contracts.ErrInvalidArgument)
	}
	for _, c := range changes {
		if c.BPM <= 0 || math.IsNaN(c.BPM) || math.IsInf(c.BPM, 0) {
			return nil, fmt.Errorf("%w: tempo %v at tick %d", contracts.ErrInvalidArgument, c.BPM, c.Tick)
		}
	}

	sorted := slices.Clone(changes)
	slices.SortStableFunc(sorted, func(a, b Change) int { return cmp.Compare(a.Tick, b.Tick) })

	m := &Map{resolution: resolution}
	m.add(Change{Tick: 0, BPM: DefaultBPM})
	for _, c := range sorted {
		m.add(Change{Tick: max(c.Tick, 0), BPM: c.BPM})
	}
	return m, nil
}

// Constant returns a map with a single tempo.
func Constant(resolution smf.MetricTicks, bpm float64) (*Map, error) {
	return New(resolution, []Change{{Tick: 0, BPM: bpm}})
}

func (m *Map) add(c Change) {
	seg := segment{tick: c.Tick, nsPerTick: float64(time.Minute) / (c.BPM * float64(m.resolution))}

	if n := len(m.segments); n > 0 {
		last := m.segments[n-1]
		if last.tick == c.Tick {
			m.segments[n-1].nsPerTick = seg.nsPerTick
			m.changes[n-1] = c
			return
		}
		seg.start = last.at(c.Tick)
	}
	m.segments = append(m.segments, seg)
	m.changes = append(m.changes, c)
}

func (s segment) at(tick int64) time.Duration {
	return s.start + time.Duration(math.Round(float64(tick-s.tick)*s.nsPerTick))
}

// Resolution returns the ticks per quarter note.
func (m *Map) Resolution() smf.MetricTicks { return m.resolution }

// Changes returns the effective tempo changes, starting at tick zero.
func (m *Map) Changes() []Change { return slices.Clone(m.changes) }

// ToDuration returns the time of tick at nominal speed. Negative ticks map to zero.
func (m *Map) ToDuration(tick int64) time.Duration {
	if tick <= 0 {
		return 0
	}
	i, found := slices.BinarySearchFunc(m.segments, tick, func(s segment, t int64) int { return cmp.Compare(s.tick, t) })
	if !found {
		i--
	}
	return m.segments[i].at(tick)
}

// ToTicks returns the last tick whose time is not after d.
func (m *Map) ToTicks(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	i, found := slices.BinarySearchFunc(m.segments, d, func(s segment, t time.Duration) int { return cmp.Compare(s.start, t) })
	if !found {
		i--
	}
	s := m.segments[i]
	tick := s.tick + int64(math.Round(float64(d-s.start)/s.nsPerTick))
	for tick > s.tick && s.at(tick) > d {
		tick--
	}
	for s.at(tick+1) <= d {
		tick++
	}
	return tick
}
