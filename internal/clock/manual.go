package clock

import (
	"sync"
	"time"

	"github.com/leandrodaf/midiplay/sdk/contracts"
)

// Manual is a generator without a timer. Ticks come from Pulse, or from
// Clock.Tick when the owner drives the clock itself.
type Manual struct {
	mu      sync.Mutex
	tick    func()
	running bool
	closed  bool
}

func (m *Manual) Start(_ time.Duration, tick func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return contracts.ErrDisposed
	}
	m.tick = tick
	m.running = true
	return nil
}

func (m *Manual) Stop() error {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	return nil
}

func (m *Manual) Close() error {
	m.mu.Lock()
	m.running = false
	m.closed = true
	m.tick = nil
	m.mu.Unlock()
	return nil
}

// Pulse delivers one tick if the generator is running and reports whether it did.
func (m *Manual) Pulse() bool {
	m.mu.Lock()
	tick := m.tick
	running := m.running
	m.mu.Unlock()

	if !running || tick == nil {
		return false
	}
	tick()
	return true
}
