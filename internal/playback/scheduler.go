// Package playback implements the scheduler that plays a timeline to an
// output sink in real time.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leandrodaf/midiplay/internal/clock"
	"github.com/leandrodaf/midiplay/internal/notes"
	"github.com/leandrodaf/midiplay/internal/timeline"
	"github.com/leandrodaf/midiplay/internal/tracker"
	"github.com/leandrodaf/midiplay/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
	"go.uber.org/multierr"
)

// Config holds everything a Scheduler is built from. Options must already
// carry defaults; sdk/playback applies them.
type Config struct {
	Streams  [][]contracts.TimedEvent
	TempoMap contracts.TempoMap
	Output   contracts.OutputSink // May be nil.
	Options  contracts.PlaybackOptions

	// Generator overrides the generator chosen by Options.TickGenerator.
	Generator clock.Generator
	// Now overrides the wall clock.
	Now func() time.Duration
}

// Scheduler is the playback state machine. All state is guarded by mu, which
// the timer goroutine and the public methods both take. Hooks are queued
// while mu is held and run after it is released.
type Scheduler struct {
	mu      sync.Mutex
	log     contracts.Logger
	out     contracts.OutputSink
	hooks   contracts.Hooks
	onEvent contracts.EventCallback

	tl      *timeline.Timeline
	cursor  *timeline.Cursor
	clock   *clock.Clock
	tracker *tracker.Tracker
	notes   *notes.Registry

	state       contracts.State
	loop        bool
	policy      contracts.NoteStopPolicy
	loopPolicy  contracts.NoteStopPolicy
	trackNotes  bool
	closeOutput bool

	// Play region, clamped to the timeline. limit is the latest time an event
	// plays at; an explicit end before the last event excludes events at end.
	from, to time.Duration
	limit    time.Duration
	finished bool

	runDone chan struct{}
	pending []func()
	started []contracts.PlayedNote
	ended   []contracts.PlayedNote
}

var _ contracts.Playback = (*Scheduler)(nil)

// New builds a scheduler in the Idle state at position zero.
func New(cfg Config) (*Scheduler, error) {
	if cfg.TempoMap == nil {
		return nil, fmt.Errorf("%w: tempo map is required", contracts.ErrInvalidArgument)
	}
	opts := cfg.Options
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", contracts.ErrInvalidArgument)
	}

	gen := cfg.Generator
	if gen == nil {
		var err error
		if gen, err = clock.NewGenerator(opts.TickGenerator); err != nil {
			return nil, err
		}
	}

	tl := timeline.Build(cfg.Streams, cfg.TempoMap)
	s := &Scheduler{
		log:         opts.Logger,
		out:         cfg.Output,
		hooks:       opts.Hooks,
		onEvent:     opts.EventCallback,
		tl:          tl,
		cursor:      tl.NewCursor(),
		tracker:     tracker.New(tl.Events(), opts.TrackedParameters, opts.TrackedControllers),
		notes:       notes.NewRegistry(),
		state:       contracts.Idle,
		loop:        opts.Loop,
		policy:      opts.NoteStopPolicy,
		loopPolicy:  opts.LoopPolicy,
		trackNotes:  opts.TrackNotes,
		closeOutput: opts.CloseOutput,
	}
	s.from = min(max(opts.PlaybackStart, 0), tl.Duration())
	s.to, s.limit = tl.Duration(), tl.Duration()
	if opts.PlaybackEndSet() && opts.PlaybackEnd < s.to {
		s.to = max(opts.PlaybackEnd, s.from)
		s.limit = s.to - 1
	}

	c, err := clock.New(clock.Config{
		Interval:  opts.TickInterval,
		Generator: gen,
		OnTick:    s.onTick,
		Now:       cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	if err := c.SetSpeed(opts.Speed); err != nil {
		return nil, err
	}
	s.clock = c

	s.log.Debug("Playback created",
		s.log.Field().Int("events", tl.Len()),
		s.log.Field().Duration("duration", tl.Duration()),
		s.log.Field().Duration("region_start", s.from),
		s.log.Field().Duration("region_end", s.to),
		s.log.Field().String("generator", opts.TickGenerator.String()))
	return s, nil
}

// unlock releases mu and runs the hooks queued while it was held.
func (s *Scheduler) unlock() {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, f := range pending {
		f()
	}
}

func (s *Scheduler) notify(hook func()) {
	if hook != nil {
		s.pending = append(s.pending, hook)
	}
}

func (s *Scheduler) checkAlive() error {
	if s.state == contracts.Disposed {
		return contracts.ErrDisposed
	}
	return nil
}

// deliver sends msg to the output. A panicking output is reported as an error
// so the timer goroutine survives it.
func (s *Scheduler) deliver(msg midi.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", contracts.ErrOutputPanic, r)
		}
	}()
	return s.out.Send(msg)
}

// send dispatches msg and, if the sink accepted it, records it in the note
// registry and the value cache.
func (s *Scheduler) send(msg midi.Message, at time.Duration, tick int64, synthetic bool) bool {
	if s.out != nil {
		if err := s.deliver(msg); err != nil {
			derr := &contracts.DispatchError{Message: msg, Time: at, Err: err}
			s.log.Error("Failed to send MIDI event",
				s.log.Field().String("message", msg.String()),
				s.log.Field().Duration("time", at),
				s.log.Field().Error("error", err))
			if h := s.hooks.OnError; h != nil {
				s.notify(func() { h(derr) })
			}
			return false
		}
	}

	s.collectNote(msg, at, synthetic)
	s.notes.Observe(msg)
	s.tracker.Observe(msg)

	s.log.Debug("MIDI event sent",
		s.log.Field().String("message", msg.String()),
		s.log.Field().Duration("time", at),
		s.log.Field().Bool("synthetic", synthetic))
	if h := s.hooks.OnEventPlayed; h != nil {
		ev := contracts.PlayedEvent{Message: msg, Time: at, Tick: tick, Synthetic: synthetic}
		s.notify(func() { h(ev) })
	}
	return true
}

func (s *Scheduler) sendSynthetic(msgs []midi.Message, at time.Duration) {
	for _, msg := range msgs {
		s.send(msg, at, -1, true)
	}
	s.flushNotes()
}

// collectNote records msg for the note hooks if it starts a note or ends one
// that is sounding. It must run before the registry observes msg. Synthetic
// Note Offs come from the registry, which has already released those notes.
func (s *Scheduler) collectNote(msg midi.Message, at time.Duration, synthetic bool) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteOn(&ch, &key, &vel) && vel > 0:
		s.started = append(s.started, contracts.PlayedNote{Channel: ch, Key: key, Velocity: vel, Time: at})
	case msg.GetNoteOff(&ch, &key, &vel) || msg.GetNoteOn(&ch, &key, &vel):
		if synthetic || s.notes.IsActive(notes.Identity{Channel: ch, Key: key}) {
			s.ended = append(s.ended, contracts.PlayedNote{Channel: ch, Key: key, Velocity: vel, Time: at})
		}
	}
}

// flushNotes queues the note hooks for the notes collected so far, ended
// notes first.
func (s *Scheduler) flushNotes() {
	if len(s.ended) > 0 {
		if h := s.hooks.OnNotesFinished; h != nil {
			ended := s.ended
			s.notify(func() { h(ended) })
		}
		s.ended = nil
	}
	if len(s.started) > 0 {
		if h := s.hooks.OnNotesStarted; h != nil {
			started := s.started
			s.notify(func() { h(started) })
		}
		s.started = nil
	}
}

// catchUpPoint returns the tick the device state must match for position at,
// and whether the events at that tick are due right at at.
func (s *Scheduler) catchUpPoint(at time.Duration) (int64, bool) {
	it, ok := s.cursor.Current()
	return s.cursor.PendingTick(), ok && it.Time <= at
}

// catchUp restores tracked parameters for position at.
func (s *Scheduler) catchUp(at time.Duration) {
	tick, pending := s.catchUpPoint(at)
	s.sendSynthetic(s.tracker.CatchUp(tick, pending), at)
}

// retrigger starts notes whose span crosses at and that are not sounding yet.
func (s *Scheduler) retrigger(at time.Duration) {
	if !s.trackNotes {
		return
	}
	for _, span := range s.tl.NotesAt(at) {
		if s.notes.IsActive(notes.Identity{Channel: span.Channel, Key: span.Key}) {
			continue
		}
		s.send(span.On, at, -1, true)
	}
	s.flushNotes()
}

func (s *Scheduler) endRun() {
	if s.runDone != nil {
		close(s.runDone)
		s.runDone = nil
	}
}

func (s *Scheduler) now() time.Duration {
	t, err := s.clock.CurrentTime()
	if err != nil {
		return 0
	}
	return t
}

func (s *Scheduler) onTick() {
	s.mu.Lock()
	defer s.unlock()

	if s.state != contracts.Running {
		return
	}

	now := s.now()
	s.drain(min(now, s.limit))
	if now < s.to {
		return
	}

	if s.loop && s.tl.Len() > 0 {
		s.repeat(now)
		return
	}
	s.finish()
}

// drain dispatches every item due at now.
func (s *Scheduler) drain(now time.Duration) {
	for it := range s.cursor.AdvanceTo(now) {
		msg := it.Message
		if s.onEvent != nil {
			var ok bool
			if msg, ok = s.onEvent(msg, it.Tick, it.Time); !ok || len(msg) == 0 {
				continue
			}
		}
		s.send(msg, it.Time, it.Tick, false)
		s.flushNotes()
	}
}

// repeat starts the next loop cycle at the region start. Time past the region
// end carries into the new cycle.
func (s *Scheduler) repeat(now time.Duration) {
	policy := s.loopPolicy
	if policy == contracts.Split {
		policy = contracts.Interrupt
	}
	s.sendSynthetic(s.notes.Stop(policy), s.to)

	carry := now - s.to
	if carry < 0 || s.to == s.from {
		carry = 0
	}
	at := s.from + carry
	s.cursor.MoveTo(s.from)
	_ = s.clock.SetCurrentTime(at)
	s.catchUp(at)
	s.retrigger(s.from)

	s.log.Info("Playback loop restarted", s.log.Field().Duration("carry", carry))
	s.notify(s.hooks.OnRepeatStarted)
	s.drain(min(at, s.limit))
}

func (s *Scheduler) finish() {
	_ = s.clock.Stop()
	s.sendSynthetic(s.notes.Stop(contracts.Interrupt), s.to)
	s.state = contracts.Stopped
	s.finished = true
	s.endRun()

	s.log.Info("Playback finished")
	s.notify(s.hooks.OnFinished)
}

// Start starts playback from the current position. A playback that ran to the
// end, or was never moved into the play region, starts at the region start.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.unlock()

	_, err := s.start()
	return err
}

func (s *Scheduler) start() (<-chan struct{}, error) {
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	if s.state == contracts.Running {
		return nil, fmt.Errorf("%w: playback is already running", contracts.ErrInvalidState)
	}

	if s.finished || s.now() < s.from {
		if err := s.rewind(); err != nil {
			return nil, err
		}
	}

	at := s.now()
	s.sendSynthetic(s.notes.Resume(), at)
	s.retrigger(at)

	if err := s.clock.Start(); err != nil {
		return nil, err
	}
	s.state = contracts.Running
	done := make(chan struct{})
	s.runDone = done

	s.log.Info("Playback started", s.log.Field().Duration("position", at))
	s.notify(s.hooks.OnStarted)
	return done, nil
}

// rewind moves a stopped playback to the region start.
func (s *Scheduler) rewind() error {
	s.notes.Forget()
	s.cursor.MoveTo(s.from)
	if err := s.clock.SetCurrentTime(s.from); err != nil {
		return err
	}
	s.catchUp(s.from)
	s.finished = false
	return nil
}

// Stop pauses playback and applies the note stop policy.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.unlock()

	if err := s.checkAlive(); err != nil {
		return err
	}
	if s.state != contracts.Running {
		return fmt.Errorf("%w: playback is not running", contracts.ErrInvalidState)
	}

	if err := s.clock.Stop(); err != nil {
		return err
	}
	at := s.now()
	s.sendSynthetic(s.notes.Stop(s.policy), at)
	s.state = contracts.Stopped
	s.endRun()

	s.log.Info("Playback stopped",
		s.log.Field().Duration("position", at),
		s.log.Field().String("policy", s.policy.String()))
	s.notify(s.hooks.OnStopped)
	return nil
}

// Play starts playback and blocks until it finishes, is stopped or closed, or
// ctx is done. Cancelling ctx stops playback and returns ctx.Err().
func (s *Scheduler) Play(ctx context.Context) error {
	s.mu.Lock()
	done, err := s.start()
	s.unlock()
	if err != nil {
		return err
	}

	select {
	case <-done:
		if s.State() == contracts.Disposed {
			return contracts.ErrDisposed
		}
		return nil
	case <-ctx.Done():
		if err := s.Stop(); err != nil && !errors.Is(err, contracts.ErrInvalidState) && !errors.Is(err, contracts.ErrDisposed) {
			return multierr.Append(ctx.Err(), err)
		}
		return ctx.Err()
	}
}

// MoveToStart moves the position to the region start.
func (s *Scheduler) MoveToStart() error {
	return s.MoveToTime(s.from)
}

// MoveToTime moves the position to t. Targets outside the play region are clamped.
func (s *Scheduler) MoveToTime(t time.Duration) error {
	s.mu.Lock()
	defer s.unlock()

	if err := s.checkAlive(); err != nil {
		return err
	}
	return s.moveTo(t)
}

// MoveForward moves the position forward by step.
func (s *Scheduler) MoveForward(step time.Duration) error {
	if step < 0 {
		return fmt.Errorf("%w: negative step %s", contracts.ErrInvalidArgument, step)
	}

	s.mu.Lock()
	defer s.unlock()

	if err := s.checkAlive(); err != nil {
		return err
	}
	return s.moveTo(s.now() + step)
}

// MoveBack moves the position back by step, stopping at the region start.
func (s *Scheduler) MoveBack(step time.Duration) error {
	if step < 0 {
		return fmt.Errorf("%w: negative step %s", contracts.ErrInvalidArgument, step)
	}

	s.mu.Lock()
	defer s.unlock()

	if err := s.checkAlive(); err != nil {
		return err
	}
	return s.moveTo(s.now() - step)
}

func (s *Scheduler) moveTo(target time.Duration) error {
	target = min(max(target, s.from), s.to)

	running := s.state == contracts.Running
	if running {
		if err := s.clock.Stop(); err != nil {
			return err
		}
		s.sendSynthetic(s.notes.Stop(s.policy), s.now())
	}
	s.notes.Forget()
	s.finished = false

	s.cursor.MoveTo(target)
	if err := s.clock.SetCurrentTime(target); err != nil {
		return err
	}
	s.catchUp(target)

	s.log.Info("Playback moved", s.log.Field().Duration("position", target))

	if !running {
		return nil
	}
	s.retrigger(target)
	return s.clock.Start()
}

// CurrentTime returns the playback position.
func (s *Scheduler) CurrentTime() (time.Duration, error) {
	s.mu.Lock()
	defer s.unlock()

	if err := s.checkAlive(); err != nil {
		return 0, err
	}
	return s.now(), nil
}

// Duration returns the time of the last event.
func (s *Scheduler) Duration() time.Duration {
	return s.tl.Duration()
}

// Region returns the play region.
func (s *Scheduler) Region() (start, end time.Duration) {
	return s.from, s.to
}

// State returns the lifecycle state.
func (s *Scheduler) State() contracts.State {
	s.mu.Lock()
	defer s.unlock()
	return s.state
}

// IsRunning reports whether the playback is running.
func (s *Scheduler) IsRunning() bool {
	return s.State() == contracts.Running
}

// TickClock delivers one clock tick synchronously.
func (s *Scheduler) TickClock() error {
	s.mu.Lock()
	err := s.checkAlive()
	s.unlock()
	if err != nil {
		return err
	}
	return s.clock.Tick()
}

// Speed returns the speed factor.
func (s *Scheduler) Speed() float64 {
	return s.clock.Speed()
}

// SetSpeed changes the speed factor without moving the position.
func (s *Scheduler) SetSpeed(speed float64) error {
	s.mu.Lock()
	defer s.unlock()

	if err := s.checkAlive(); err != nil {
		return err
	}
	if err := s.clock.SetSpeed(speed); err != nil {
		return err
	}
	s.log.Info("Playback speed changed", s.log.Field().Float64("speed", speed))
	return nil
}

// Loop reports whether looping is enabled.
func (s *Scheduler) Loop() bool {
	s.mu.Lock()
	defer s.unlock()
	return s.loop
}

// SetLoop enables or disables looping.
func (s *Scheduler) SetLoop(loop bool) error {
	s.mu.Lock()
	defer s.unlock()

	if err := s.checkAlive(); err != nil {
		return err
	}
	s.loop = loop
	return nil
}

// NoteStopPolicy returns what Stop does with sounding notes.
func (s *Scheduler) NoteStopPolicy() contracts.NoteStopPolicy {
	s.mu.Lock()
	defer s.unlock()
	return s.policy
}

// SetNoteStopPolicy changes what Stop does with sounding notes.
func (s *Scheduler) SetNoteStopPolicy(policy contracts.NoteStopPolicy) error {
	if !policy.Valid() {
		return fmt.Errorf("%w: unknown note stop policy %d", contracts.ErrInvalidArgument, policy)
	}

	s.mu.Lock()
	defer s.unlock()

	if err := s.checkAlive(); err != nil {
		return err
	}
	s.policy = policy
	return nil
}

// SetTracking turns restoring of kind on or off. Turning a kind on sends its
// catch-up for the current position right away.
func (s *Scheduler) SetTracking(kind contracts.TrackedParameter, enabled bool) error {
	if kind == contracts.TrackNone || kind&^contracts.TrackAll != 0 {
		return fmt.Errorf("%w: unknown tracked parameter %d", contracts.ErrInvalidArgument, kind)
	}

	s.mu.Lock()
	defer s.unlock()

	if err := s.checkAlive(); err != nil {
		return err
	}
	s.tracker.SetEnabled(kind, enabled)
	if enabled {
		at := s.now()
		tick, pending := s.catchUpPoint(at)
		s.sendSynthetic(s.tracker.CatchUpKind(kind, tick, pending), at)
	}
	return nil
}

// Close stops playback, releases the clock and, if configured, closes the
// output. Calling Close again does nothing.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.state == contracts.Disposed {
		s.unlock()
		return nil
	}

	var err error
	if s.state == contracts.Running {
		err = multierr.Append(err, s.clock.Stop())
	}
	s.sendSynthetic(s.notes.Stop(contracts.Interrupt), s.now())
	s.notes.Forget()
	s.state = contracts.Disposed
	s.endRun()
	s.log.Info("Playback closed")
	s.unlock()

	err = multierr.Append(err, s.clock.Close())
	if s.closeOutput {
		if out, ok := s.out.(contracts.Output); ok {
			err = multierr.Append(err, out.Close())
		}
	}
	return err
}
