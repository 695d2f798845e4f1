package clock

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiplay/sdk/contracts"
)

// Generator produces periodic ticks on its own goroutine or native timer thread.
//
// Starting a started generator and stopping a stopped one are no-ops. Stop never
// waits for a tick in flight, since that tick may be blocked on a lock held by
// the caller. Close waits for the timer goroutine to exit unless a tick is
// running at that moment.
type Generator interface {
	Start(interval time.Duration, tick func()) error
	Stop() error
	Close() error
}

// NewGenerator returns the generator strategy for kind.
func NewGenerator(kind contracts.TickGeneratorKind) (Generator, error) {
	switch kind {
	case contracts.GeneratorRegular:
		return newLoopGenerator(runTicker), nil
	case contracts.GeneratorHighPrecision:
		return newHighPrecisionGenerator(), nil
	case contracts.GeneratorManual:
		return &Manual{}, nil
	}
	return nil, fmt.Errorf("%w: unknown tick generator %d", contracts.ErrInvalidArgument, kind)
}

// runFunc drives ticks until stop is closed.
type runFunc func(stop <-chan struct{}, interval time.Duration, fire func())

// loopGenerator runs a runFunc on a goroutine per Start.
type loopGenerator struct {
	mu      sync.Mutex
	run     runFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup
	ticking atomic.Int32
	closed  bool
}

func newLoopGenerator(run runFunc) *loopGenerator {
	return &loopGenerator{run: run}
}

func (g *loopGenerator) Start(interval time.Duration, tick func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return contracts.ErrDisposed
	}
	if g.stopCh != nil {
		return nil
	}

	stop := make(chan struct{})
	g.stopCh = stop
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.run(stop, interval, func() {
			g.ticking.Add(1)
			defer g.ticking.Add(-1)
			tick()
		})
	}()
	return nil
}

func (g *loopGenerator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopCh != nil {
		close(g.stopCh)
		g.stopCh = nil
	}
	return nil
}

func (g *loopGenerator) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	if g.stopCh != nil {
		close(g.stopCh)
		g.stopCh = nil
	}
	g.mu.Unlock()

	if g.ticking.Load() == 0 {
		g.wg.Wait()
	}
	return nil
}

// stopped reports whether stop has been closed.
func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
