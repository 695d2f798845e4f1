package clock

import "time"

// runTicker fires on a time.Ticker. Resolution is whatever the Go runtime
// timer gives, usually around a millisecond.
func runTicker(stop <-chan struct{}, interval time.Duration, fire func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if stopped(stop) {
				return
			}
			fire()
		}
	}
}
