//go:build !windows
// +build !windows

package clock

// newHighPrecisionGenerator falls back to the spin-assisted loop where the
// winmm multimedia timer does not exist.
func newHighPrecisionGenerator() Generator {
	return newLoopGenerator(runSpin)
}
