package clock

import (
	"runtime"
	"time"
)

// spinWindow is how long before a deadline the loop stops sleeping and starts yielding.
const spinWindow = 500 * time.Microsecond

// runSpin sleeps until shortly before each deadline and yields the processor
// for the remainder. Deadlines advance by interval; a late tick moves the next
// deadline forward instead of firing a burst.
func runSpin(stop <-chan struct{}, interval time.Duration, fire func()) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	next := time.Now().Add(interval)
	for {
		if d := time.Until(next) - spinWindow; d > 0 {
			timer.Reset(d)
			select {
			case <-stop:
				return
			case <-timer.C:
			}
		}
		for time.Now().Before(next) {
			if stopped(stop) {
				return
			}
			runtime.Gosched()
		}
		if stopped(stop) {
			return
		}

		fire()

		next = next.Add(interval)
		if now := time.Now(); now.After(next) {
			next = now.Add(interval)
		}
	}
}
