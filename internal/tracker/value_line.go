package tracker

import "slices"

// ValueLine is the history of one parameter over tick time.
type ValueLine[T comparable] struct {
	ticks  []int64
	values []T
	def    T
}

// NewValueLine returns an empty line whose value before the first sample is def.
func NewValueLine[T comparable](def T) *ValueLine[T] {
	return &ValueLine[T]{def: def}
}

// Set records v at tick. Samples at the same tick keep insertion order, so the
// last one wins.
func (l *ValueLine[T]) Set(tick int64, v T) {
	i := len(l.ticks)
	if i > 0 && l.ticks[i-1] > tick {
		i = l.upperBound(tick)
	}
	l.ticks = slices.Insert(l.ticks, i, tick)
	l.values = slices.Insert(l.values, i, v)
}

// ValueAt returns the last value set at or before tick, or the default.
func (l *ValueLine[T]) ValueAt(tick int64) T {
	i := l.upperBound(tick)
	if i == 0 {
		return l.def
	}
	return l.values[i-1]
}

// SampleBefore returns the last value set strictly before tick, or the
// default. The flag reports whether the value comes from a sample.
func (l *ValueLine[T]) SampleBefore(tick int64) (T, bool) {
	i := l.lowerBound(tick)
	if i == 0 {
		return l.def, false
	}
	return l.values[i-1], true
}

// HasAt reports whether a sample sits exactly at tick.
func (l *ValueLine[T]) HasAt(tick int64) bool {
	i := l.lowerBound(tick)
	return i < len(l.ticks) && l.ticks[i] == tick
}

// Default returns the value in effect before the first sample.
func (l *ValueLine[T]) Default() T { return l.def }

// Len returns the number of samples.
func (l *ValueLine[T]) Len() int { return len(l.ticks) }

// lowerBound returns the index of the first sample with tick >= t.
func (l *ValueLine[T]) lowerBound(t int64) int {
	i, _ := slices.BinarySearch(l.ticks, t)
	return i
}

// upperBound returns the index of the first sample with tick > t.
func (l *ValueLine[T]) upperBound(t int64) int {
	i, found := slices.BinarySearch(l.ticks, t)
	for found && i < len(l.ticks) && l.ticks[i] == t {
		i++
	}
	return i
}
