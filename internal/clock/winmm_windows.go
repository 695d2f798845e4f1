//go:build windows
// +build windows

package clock

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiplay/sdk/contracts"
	"golang.org/x/sys/windows"
)

// Constants for timeSetEvent
const (
	TIME_PERIODIC          = 0x0001 // Timer fires every period
	TIME_CALLBACK_FUNCTION = 0x0000 // Callback is a function
	timerResolution        = 1      // Requested resolution in milliseconds
)

// Load the winmm.dll library and required functions
var (
	winmm               = windows.NewLazySystemDLL("winmm.dll")
	procTimeBeginPeriod = winmm.NewProc("timeBeginPeriod")
	procTimeEndPeriod   = winmm.NewProc("timeEndPeriod")
	procTimeSetEvent    = winmm.NewProc("timeSetEvent")
	procTimeKillEvent   = winmm.NewProc("timeKillEvent")
)

// Callbacks created by windows.NewCallback are never released, so a single
// one is shared and timers are looked up by the dwUser key.
var (
	callbackOnce sync.Once
	callbackPtr  uintptr

	timersMu  sync.Mutex
	timers    = map[uintptr]*mmTimer{}
	nextTimer uintptr
)

func timerCallback(_, _, user, _, _ uintptr) uintptr {
	timersMu.Lock()
	t := timers[user]
	timersMu.Unlock()

	if t != nil {
		t.fire()
	}
	return 0
}

// mmTimer is a periodic winmm multimedia timer.
type mmTimer struct {
	mu     sync.Mutex
	key    uintptr
	id     uintptr
	tick   func()
	active atomic.Bool
	closed bool
}

func newHighPrecisionGenerator() Generator {
	callbackOnce.Do(func() {
		callbackPtr = windows.NewCallback(timerCallback)
	})

	timersMu.Lock()
	nextTimer++
	t := &mmTimer{key: nextTimer}
	timers[t.key] = t
	timersMu.Unlock()
	return t
}

func (t *mmTimer) fire() {
	if !t.active.Load() {
		return
	}
	if tick := t.loadTick(); tick != nil {
		tick()
	}
}

func (t *mmTimer) loadTick() func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tick
}

func (t *mmTimer) Start(interval time.Duration, tick func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return contracts.ErrDisposed
	}
	if t.id != 0 {
		return nil
	}

	period := interval.Milliseconds()
	if period < 1 {
		period = 1
	}

	procTimeBeginPeriod.Call(timerResolution)
	t.tick = tick
	t.active.Store(true)
	r1, _, err := procTimeSetEvent.Call(
		uintptr(period),
		timerResolution,
		callbackPtr,
		t.key,
		TIME_PERIODIC|TIME_CALLBACK_FUNCTION,
	)
	if r1 == 0 {
		t.active.Store(false)
		procTimeEndPeriod.Call(timerResolution)
		return fmt.Errorf("timeSetEvent failed: %v", err)
	}
	t.id = r1
	return nil
}

// Stop kills the timer without waiting for a callback in flight. A callback
// that fires after Stop sees the timer inactive and returns.
func (t *mmTimer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

func (t *mmTimer) stopLocked() error {
	if t.id == 0 {
		return nil
	}
	t.active.Store(false)
	r1, _, err := procTimeKillEvent.Call(t.id)
	procTimeEndPeriod.Call(timerResolution)
	t.id = 0
	if r1 != 0 {
		return fmt.Errorf("timeKillEvent failed: %v", err)
	}
	return nil
}

func (t *mmTimer) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	err := t.stopLocked()
	t.tick = nil
	t.mu.Unlock()

	timersMu.Lock()
	delete(timers, t.key)
	timersMu.Unlock()
	return err
}
