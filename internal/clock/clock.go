// Package clock provides the playback time base: a virtual clock that scales
// wall time by a speed factor and a tick generator that wakes the player.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/leandrodaf/midiplay/sdk/contracts"
)

const (
	// DefaultInterval is the nominal time between ticks.
	DefaultInterval = time.Millisecond
	// MinInterval is the smallest interval a clock accepts.
	MinInterval = time.Millisecond
)

// Config configures a Clock.
type Config struct {
	Interval  time.Duration
	Generator Generator
	// OnTick is called from the generator on every tick. It must not be nil.
	OnTick func()
	// Now returns monotonic wall time. Defaults to time since the clock was created.
	Now func() time.Duration
}

// Clock keeps virtual playback time.
//
// While running, CurrentTime = base + (now - anchor) * speed. While stopped
// the time is frozen. A speed change re-anchors so the time stays continuous.
type Clock struct {
	mu       sync.Mutex
	gen      Generator
	interval time.Duration
	onTick   func()
	now      func() time.Duration

	speed   float64
	base    time.Duration
	anchor  time.Duration
	running bool
	closed  bool
}

// New creates a stopped clock at time zero and speed 1.
func New(cfg Config) (*Clock, error) {
	if cfg.OnTick == nil {
		return nil, fmt.Errorf("%w: OnTick is required", contracts.ErrInvalidArgument)
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Interval < MinInterval {
		return nil, fmt.Errorf("%w: interval %s is below %s", contracts.ErrInvalidArgument, cfg.Interval, MinInterval)
	}
	if cfg.Generator == nil {
		cfg.Generator = newLoopGenerator(runTicker)
	}
	if cfg.Now == nil {
		epoch := time.Now()
		cfg.Now = func() time.Duration { return time.Since(epoch) }
	}

	return &Clock{
		gen:      cfg.Generator,
		interval: cfg.Interval,
		onTick:   cfg.OnTick,
		now:      cfg.Now,
		speed:    1,
	}, nil
}

// Start resumes virtual time and the generator. Starting a running clock is a no-op.
func (c *Clock) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return contracts.ErrDisposed
	}
	if c.running {
		return nil
	}

	c.anchor = c.now()
	c.running = true
	if err := c.gen.Start(c.tickInterval(), c.onTick); err != nil {
		c.running = false
		return err
	}
	return nil
}

// Stop freezes virtual time and stops the generator.
func (c *Clock) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return contracts.ErrDisposed
	}
	return c.stopLocked()
}

func (c *Clock) stopLocked() error {
	if !c.running {
		return nil
	}
	c.base = c.currentLocked()
	c.running = false
	return c.gen.Stop()
}

// Restart resets the time to zero and starts the clock.
func (c *Clock) Restart() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return contracts.ErrDisposed
	}
	if err := c.stopLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.base = 0
	c.mu.Unlock()

	return c.Start()
}

// CurrentTime returns the virtual time.
func (c *Clock) CurrentTime() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, contracts.ErrDisposed
	}
	return c.currentLocked(), nil
}

func (c *Clock) currentLocked() time.Duration {
	if !c.running {
		return c.base
	}
	elapsed := c.now() - c.anchor
	if elapsed < 0 {
		elapsed = 0
	}
	return c.base + time.Duration(float64(elapsed)*c.speed)
}

// SetCurrentTime moves the virtual time to t without changing the running state.
func (c *Clock) SetCurrentTime(t time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return contracts.ErrDisposed
	}
	if t < 0 {
		return fmt.Errorf("%w: negative time %s", contracts.ErrInvalidArgument, t)
	}
	c.base = t
	c.anchor = c.now()
	return nil
}

// Speed returns the speed factor.
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// SetSpeed changes the speed factor. The virtual time does not jump, and a
// running generator is restarted with the new tick interval.
func (c *Clock) SetSpeed(speed float64) error {
	if !(speed > 0) {
		return fmt.Errorf("%w: speed must be positive, got %v", contracts.ErrInvalidArgument, speed)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return contracts.ErrDisposed
	}
	if speed == c.speed {
		return nil
	}

	c.base = c.currentLocked()
	c.anchor = c.now()
	c.speed = speed

	if !c.running {
		return nil
	}
	if err := c.gen.Stop(); err != nil {
		return err
	}
	return c.gen.Start(c.tickInterval(), c.onTick)
}

// tickInterval scales the nominal interval so ticks per unit of virtual time stay constant.
func (c *Clock) tickInterval() time.Duration {
	d := time.Duration(float64(c.interval) / c.speed)
	if d < MinInterval {
		d = MinInterval
	}
	return d
}

// IsRunning reports whether virtual time advances.
func (c *Clock) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Tick delivers one tick synchronously if the clock is running. It is how an
// externally clocked owner advances a clock built on the Manual generator.
func (c *Clock) Tick() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return contracts.ErrDisposed
	}
	running := c.running
	c.mu.Unlock()

	if running {
		c.onTick()
	}
	return nil
}

// Close stops the clock and releases the generator. Further calls return ErrDisposed.
func (c *Clock) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.base = c.currentLocked()
	c.running = false
	c.closed = true
	c.mu.Unlock()

	return c.gen.Close()
}
