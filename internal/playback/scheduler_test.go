package playback

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/leandrodaf/midiplay/internal/logger"
	"github.com/leandrodaf/midiplay/sdk/contracts"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"gitlab.com/gomidi/midi/v2"
)

type msPerTick struct{}

func (msPerTick) ToDuration(tick int64) time.Duration { return time.Duration(tick) * time.Millisecond }

type recorder struct {
	mu     sync.Mutex
	msgs   []midi.Message
	fail   func(midi.Message) error
	closed int
}

func (r *recorder) Send(msg midi.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		if err := r.fail(msg); err != nil {
			return err
		}
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	return nil
}

// take returns and clears the recorded messages.
func (r *recorder) take() []midi.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.msgs
	r.msgs = nil
	return out
}

type wall struct {
	mu sync.Mutex
	t  time.Duration
}

func (w *wall) now() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.t
}

func (w *wall) advance(d time.Duration) {
	w.mu.Lock()
	w.t += d
	w.mu.Unlock()
}

type harness struct {
	*Scheduler
	out  *recorder
	wall *wall
}

// step advances wall time and delivers one tick.
func (h *harness) step(t *testing.T, d time.Duration) []midi.Message {
	t.Helper()
	h.wall.advance(d)
	if err := h.TickClock(); err != nil {
		t.Fatalf("TickClock: %v", err)
	}
	return h.out.take()
}

func ev(tick int64, msg midi.Message) contracts.TimedEvent {
	return contracts.TimedEvent{Message: msg, Tick: tick}
}

func newHarness(t *testing.T, events []contracts.TimedEvent, opts ...contracts.Option) *harness {
	t.Helper()

	options := contracts.PlaybackOptions{
		Logger:            logger.NewNopLogger(),
		Speed:             1,
		TickInterval:      time.Millisecond,
		TickGenerator:     contracts.GeneratorManual,
		TrackedParameters: contracts.TrackAll,
	}
	for _, opt := range opts {
		opt(&options)
	}

	out := &recorder{}
	w := &wall{}
	s, err := New(Config{
		Streams:  [][]contracts.TimedEvent{events},
		TempoMap: msPerTick{},
		Output:   out,
		Options:  options,
		Now:      w.now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return &harness{Scheduler: s, out: out, wall: w}
}

func messagesEqual(a, b []midi.Message) bool {
	return slices.EqualFunc(a, b, func(x, y midi.Message) bool { return slices.Equal(x, y) })
}

func expectMessages(t *testing.T, got []midi.Message, want ...midi.Message) {
	t.Helper()
	if !messagesEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

var melody = []contracts.TimedEvent{
	ev(0, midi.NoteOn(0, 60, 100)),
	ev(100, midi.NoteOff(0, 60)),
	ev(100, midi.NoteOn(0, 62, 100)),
	ev(200, midi.NoteOff(0, 62)),
}

func TestPlaysEventsWhenDue(t *testing.T) {
	finished := 0
	h := newHarness(t, melody, contracts.WithOnFinished(func() { finished++ }))

	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	expectMessages(t, h.step(t, 0), midi.NoteOn(0, 60, 100))
	expectMessages(t, h.step(t, 99*time.Millisecond))
	expectMessages(t, h.step(t, time.Millisecond), midi.NoteOff(0, 60), midi.NoteOn(0, 62, 100))
	expectMessages(t, h.step(t, 150*time.Millisecond), midi.NoteOff(0, 62))

	if h.State() != contracts.Stopped {
		t.Fatalf("state = %s", h.State())
	}
	if finished != 1 {
		t.Fatalf("OnFinished called %d times", finished)
	}
}

func TestStopPolicies(t *testing.T) {
	cases := []struct {
		policy contracts.NoteStopPolicy
		onStop []midi.Message
		onPlay []midi.Message
	}{
		{contracts.Interrupt, []midi.Message{midi.NoteOff(0, 60)}, nil},
		{contracts.Hold, nil, nil},
		{contracts.Split, []midi.Message{midi.NoteOff(0, 60)}, []midi.Message{midi.NoteOn(0, 60, 100)}},
	}
	for _, tc := range cases {
		t.Run(tc.policy.String(), func(t *testing.T) {
			h := newHarness(t, melody, contracts.WithNoteStopPolicy(tc.policy))
			_ = h.Start()
			h.step(t, 50*time.Millisecond)

			if err := h.Stop(); err != nil {
				t.Fatalf("Stop: %v", err)
			}
			expectMessages(t, h.out.take(), tc.onStop...)

			if err := h.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			expectMessages(t, h.out.take(), tc.onPlay...)
		})
	}
}

func TestStopKeepsPosition(t *testing.T) {
	h := newHarness(t, melody)
	_ = h.Start()
	h.step(t, 50*time.Millisecond)
	_ = h.Stop()
	h.out.take()

	h.wall.advance(time.Second)
	if got, _ := h.CurrentTime(); got != 50*time.Millisecond {
		t.Fatalf("position moved while stopped: %s", got)
	}
	_ = h.Start()
	expectMessages(t, h.step(t, 50*time.Millisecond), midi.NoteOff(0, 60), midi.NoteOn(0, 62, 100))
}

func TestSeekRestoresParameters(t *testing.T) {
	h := newHarness(t, []contracts.TimedEvent{
		ev(0, midi.ProgramChange(0, 10)),
		ev(0, midi.ControlChange(0, 7, 100)),
		ev(100, midi.ProgramChange(0, 20)),
		ev(100, midi.ControlChange(0, 7, 60)),
		ev(300, midi.NoteOn(0, 60, 100)),
	})
	_ = h.Start()
	h.step(t, 0)
	h.step(t, 150*time.Millisecond)
	_ = h.Stop()
	h.out.take()

	if err := h.MoveToTime(50 * time.Millisecond); err != nil {
		t.Fatalf("MoveToTime: %v", err)
	}
	expectMessages(t, h.out.take(), midi.ProgramChange(0, 10), midi.ControlChange(0, 7, 100))

	if err := h.MoveToTime(50 * time.Millisecond); err != nil {
		t.Fatalf("MoveToTime: %v", err)
	}
	expectMessages(t, h.out.take())

	if err := h.MoveToTime(200 * time.Millisecond); err != nil {
		t.Fatalf("MoveToTime: %v", err)
	}
	expectMessages(t, h.out.take(), midi.ProgramChange(0, 20), midi.ControlChange(0, 7, 60))
}

func TestSeekToSampleTickLeavesLineToPlayback(t *testing.T) {
	h := newHarness(t, []contracts.TimedEvent{
		ev(0, midi.ProgramChange(0, 10)),
		ev(100, midi.ProgramChange(0, 20)),
	})
	_ = h.MoveToTime(100 * time.Millisecond)
	expectMessages(t, h.out.take())

	_ = h.Start()
	expectMessages(t, h.step(t, 0), midi.ProgramChange(0, 20))
}

func TestSeekWhileRunning(t *testing.T) {
	h := newHarness(t, melody, contracts.WithTrackNotes(true))
	_ = h.Start()
	h.step(t, 10*time.Millisecond)

	if err := h.MoveToTime(150 * time.Millisecond); err != nil {
		t.Fatalf("MoveToTime: %v", err)
	}
	expectMessages(t, h.out.take(), midi.NoteOff(0, 60), midi.NoteOn(0, 62, 100))
	if !h.IsRunning() {
		t.Fatal("seek should keep the playback running")
	}
	if got, _ := h.CurrentTime(); got != 150*time.Millisecond {
		t.Fatalf("position = %s", got)
	}
	expectMessages(t, h.step(t, 50*time.Millisecond), midi.NoteOff(0, 62))
}

func TestSeekClampsAndValidates(t *testing.T) {
	h := newHarness(t, melody)

	_ = h.MoveToTime(time.Hour)
	if got, _ := h.CurrentTime(); got != 200*time.Millisecond {
		t.Fatalf("seek beyond the end landed at %s", got)
	}
	_ = h.MoveBack(time.Hour)
	if got, _ := h.CurrentTime(); got != 0 {
		t.Fatalf("seek before zero landed at %s", got)
	}
	_ = h.MoveForward(30 * time.Millisecond)
	if got, _ := h.CurrentTime(); got != 30*time.Millisecond {
		t.Fatalf("MoveForward landed at %s", got)
	}
	_ = h.MoveToStart()
	if got, _ := h.CurrentTime(); got != 0 {
		t.Fatalf("MoveToStart landed at %s", got)
	}

	if err := h.MoveForward(-time.Second); !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Fatalf("MoveForward(-1s) = %v", err)
	}
	if err := h.MoveBack(-time.Second); !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Fatalf("MoveBack(-1s) = %v", err)
	}
}

func TestLoopCarriesOvershoot(t *testing.T) {
	repeats := 0
	h := newHarness(t, []contracts.TimedEvent{
		ev(0, midi.NoteOn(0, 60, 100)),
		ev(100, midi.NoteOff(0, 60)),
	}, contracts.WithLoop(true), contracts.WithOnRepeatStarted(func() { repeats++ }))

	_ = h.Start()
	h.step(t, 0)
	got := h.step(t, 130*time.Millisecond)
	expectMessages(t, got, midi.NoteOff(0, 60), midi.NoteOn(0, 60, 100))

	if repeats != 1 {
		t.Fatalf("OnRepeatStarted called %d times", repeats)
	}
	if now, _ := h.CurrentTime(); now != 30*time.Millisecond {
		t.Fatalf("overshoot not carried, position %s", now)
	}
	if h.State() != contracts.Running {
		t.Fatalf("state = %s", h.State())
	}
}

func TestLoopInterruptsSoundingNotes(t *testing.T) {
	h := newHarness(t, []contracts.TimedEvent{
		ev(0, midi.NoteOn(0, 60, 100)),
		ev(100, midi.ControlChange(0, 1, 1)),
	}, contracts.WithLoop(true))

	_ = h.Start()
	h.step(t, 0)
	expectMessages(t, h.step(t, 100*time.Millisecond),
		midi.ControlChange(0, 1, 1),
		midi.NoteOff(0, 60),
		midi.ControlChange(0, 1, 0),
		midi.NoteOn(0, 60, 100),
	)
}

func TestStartAfterFinishRewinds(t *testing.T) {
	h := newHarness(t, melody)
	_ = h.Start()
	h.step(t, time.Second)
	h.out.take()

	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got, _ := h.CurrentTime(); got != 0 {
		t.Fatalf("expected rewind to 0, got %s", got)
	}
	expectMessages(t, h.step(t, 0), midi.NoteOn(0, 60, 100))
}

func TestStateErrors(t *testing.T) {
	h := newHarness(t, melody)

	if err := h.Stop(); !errors.Is(err, contracts.ErrInvalidState) {
		t.Fatalf("Stop while idle = %v", err)
	}
	_ = h.Start()
	if err := h.Start(); !errors.Is(err, contracts.ErrInvalidState) {
		t.Fatalf("second Start = %v", err)
	}
	if err := h.SetSpeed(0); !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Fatalf("SetSpeed(0) = %v", err)
	}
	if err := h.SetNoteStopPolicy(contracts.NoteStopPolicy(9)); !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Fatalf("SetNoteStopPolicy(9) = %v", err)
	}
	if err := h.SetTracking(contracts.TrackNone, true); !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Fatalf("SetTracking(none) = %v", err)
	}
}

func TestSinkFailureIsReportedAndPlaybackContinues(t *testing.T) {
	boom := errors.New("device unplugged")
	var reported []error

	h := newHarness(t, melody,
		contracts.WithOnError(func(err error) { reported = append(reported, err) }),
	)
	h.out.fail = func(msg midi.Message) error {
		var ch, key, vel uint8
		if msg.GetNoteOn(&ch, &key, &vel) && key == 60 {
			return boom
		}
		return nil
	}

	_ = h.Start()
	h.step(t, 0)
	expectMessages(t, h.step(t, 100*time.Millisecond), midi.NoteOff(0, 60), midi.NoteOn(0, 62, 100))

	if len(reported) != 1 {
		t.Fatalf("expected 1 error, got %d", len(reported))
	}
	var derr *contracts.DispatchError
	if !errors.As(reported[0], &derr) || !errors.Is(derr, boom) || derr.Time != 0 {
		t.Fatalf("unexpected error %v", reported[0])
	}

	_ = h.Stop()
	expectMessages(t, h.out.take(), midi.NoteOff(0, 62))
}

func TestEventCallbackRewritesAndDrops(t *testing.T) {
	h := newHarness(t, melody, contracts.WithEventCallback(
		func(msg midi.Message, tick int64, _ time.Duration) (midi.Message, bool) {
			var ch, key, vel uint8
			if msg.GetNoteOn(&ch, &key, &vel) && key == 62 {
				return nil, false
			}
			if msg.GetNoteOn(&ch, &key, &vel) {
				return midi.NoteOn(ch, key+12, vel), true
			}
			return msg, true
		},
	))

	_ = h.Start()
	expectMessages(t, h.step(t, 0), midi.NoteOn(0, 72, 100))
	expectMessages(t, h.step(t, 100*time.Millisecond), midi.NoteOff(0, 60))
}

func TestPlayedEventsAndHooks(t *testing.T) {
	var mu sync.Mutex
	var log []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			log = append(log, s)
			mu.Unlock()
		}
	}

	var played []contracts.PlayedEvent
	var h *harness
	h = newHarness(t, melody,
		contracts.WithOnStarted(record("started")),
		contracts.WithOnStopped(record("stopped")),
		contracts.WithOnFinished(func() {
			// Hooks run outside the lock, so calling back in is fine.
			_ = h.State()
			record("finished")()
		}),
		contracts.WithOnEventPlayed(func(e contracts.PlayedEvent) { played = append(played, e) }),
	)

	_ = h.Start()
	h.step(t, 0)
	_ = h.Stop()
	_ = h.Start()
	h.step(t, time.Second)

	want := []string{"started", "stopped", "started", "finished"}
	if !slices.Equal(log, want) {
		t.Fatalf("hooks = %v, want %v", log, want)
	}
	if len(played) == 0 || played[0].Tick != 0 || played[0].Synthetic {
		t.Fatalf("unexpected first played event %+v", played)
	}
	if off := played[1]; !off.Synthetic || off.Tick != -1 {
		t.Fatalf("stop Note Off should be synthetic, got %+v", off)
	}
}

func TestSpeedScalesTime(t *testing.T) {
	h := newHarness(t, melody, contracts.WithSpeed(2))
	_ = h.Start()
	h.step(t, 0)
	expectMessages(t, h.step(t, 50*time.Millisecond), midi.NoteOff(0, 60), midi.NoteOn(0, 62, 100))

	if err := h.SetSpeed(0.5); err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}
	if got, _ := h.CurrentTime(); got != 100*time.Millisecond {
		t.Fatalf("speed change moved the position to %s", got)
	}
	if h.Speed() != 0.5 {
		t.Fatalf("speed = %v", h.Speed())
	}
}

func TestSetTrackingSendsCatchUp(t *testing.T) {
	h := newHarness(t, []contracts.TimedEvent{
		ev(0, midi.Pitchbend(0, 500)),
		ev(100, midi.NoteOn(0, 60, 100)),
	}, contracts.WithTrackedParameters(contracts.TrackNone))

	_ = h.MoveToTime(50 * time.Millisecond)
	expectMessages(t, h.out.take())

	if err := h.SetTracking(contracts.TrackPitchBend, true); err != nil {
		t.Fatalf("SetTracking: %v", err)
	}
	expectMessages(t, h.out.take(), midi.Pitchbend(0, 500))
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t, melody, contracts.WithCloseOutput(true))
	_ = h.Start()
	h.step(t, 0)

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	expectMessages(t, h.out.take(), midi.NoteOff(0, 60))
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if h.out.closed != 1 {
		t.Fatalf("output closed %d times", h.out.closed)
	}
	if h.State() != contracts.Disposed {
		t.Fatalf("state = %s", h.State())
	}
	for name, err := range map[string]error{
		"Start":     h.Start(),
		"MoveTo":    h.MoveToTime(0),
		"TickClock": h.TickClock(),
		"SetLoop":   h.SetLoop(true),
	} {
		if !errors.Is(err, contracts.ErrDisposed) {
			t.Errorf("%s after Close = %v", name, err)
		}
	}
}

func TestPlayBlocksUntilFinished(t *testing.T) {
	h := newHarness(t, melody)

	done := make(chan error, 1)
	go func() { done <- h.Play(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for !h.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("Play did not start")
		}
		time.Sleep(time.Millisecond)
	}
	h.step(t, time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Play = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not return after the last event")
	}
}

func TestPlayReturnsOnCancel(t *testing.T) {
	h := newHarness(t, melody)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Play(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Play = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Play ignored cancellation")
	}
	if h.IsRunning() {
		t.Fatal("playback still running after cancellation")
	}
}

func TestEmptyTimelineFinishesEvenWhenLooping(t *testing.T) {
	finished := false
	h := newHarness(t, nil, contracts.WithLoop(true), contracts.WithOnFinished(func() { finished = true }))

	_ = h.Start()
	h.step(t, time.Millisecond)
	if !finished || h.State() != contracts.Stopped {
		t.Fatalf("empty playback should finish, state %s", h.State())
	}
}

func TestNilOutputReportsThroughHooks(t *testing.T) {
	var played int
	options := contracts.PlaybackOptions{
		Logger:        logger.NewNopLogger(),
		Speed:         1,
		TickGenerator: contracts.GeneratorManual,
		Hooks:         contracts.Hooks{OnEventPlayed: func(contracts.PlayedEvent) { played++ }},
	}
	s, err := New(Config{
		Streams:  [][]contracts.TimedEvent{melody},
		TempoMap: msPerTick{},
		Options:  options,
		Now:      func() time.Duration { return time.Second },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	_ = s.Start()
	_ = s.TickClock()
	if played != 1 {
		t.Fatalf("expected the event at zero to be reported, got %d", played)
	}
}

func TestSeekIntoGapRestoresProgram(t *testing.T) {
	h := newHarness(t, []contracts.TimedEvent{
		ev(0, midi.ProgramChange(0, 5)),
		ev(0, midi.NoteOn(0, 60, 100)),
		ev(100, midi.NoteOff(0, 60)),
	})

	if err := h.MoveToTime(50 * time.Millisecond); err != nil {
		t.Fatalf("MoveToTime: %v", err)
	}
	expectMessages(t, h.out.take(), midi.ProgramChange(0, 5))

	_ = h.Start()
	expectMessages(t, h.step(t, 0))
	expectMessages(t, h.step(t, 49*time.Millisecond))
	expectMessages(t, h.step(t, time.Millisecond), midi.NoteOff(0, 60))
}

func TestLoopMatchesSinglePass(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("after k cycles and t more the cycle holds what one pass plays by t", prop.ForAll(
		func(ticks []int64, end int64, cycles int, permille int) bool {
			events := make([]contracts.TimedEvent, 0, len(ticks)+1)
			for i, tick := range ticks {
				events = append(events, ev(tick%end, midi.ControlChange(0, uint8(i%120), uint8(i%128))))
			}
			events = append(events, ev(end, midi.ControlChange(1, 1, 1)))

			var played []midi.Message
			h := newHarness(t, events,
				contracts.WithLoop(true),
				contracts.WithOnEventPlayed(func(ev contracts.PlayedEvent) {
					if !ev.Synthetic {
						played = append(played, ev.Message)
					}
				}))

			length := time.Duration(end) * time.Millisecond
			rest := length * time.Duration(permille) / 1000

			_ = h.Start()
			for range cycles {
				h.step(t, length)
			}
			h.step(t, rest)

			pass := slices.Clone(events)
			slices.SortStableFunc(pass, func(a, b contracts.TimedEvent) int { return cmp.Compare(a.Tick, b.Tick) })
			var prefix []midi.Message
			for _, e := range pass {
				if time.Duration(e.Tick)*time.Millisecond <= rest {
					prefix = append(prefix, e.Message)
				}
			}

			if len(played) != cycles*len(events)+len(prefix) {
				return false
			}
			return messagesEqual(played[len(played)-len(prefix):], prefix)
		},
		gen.SliceOf(gen.Int64Range(0, 1000)),
		gen.Int64Range(1, 1000),
		gen.IntRange(1, 3),
		gen.IntRange(0, 999),
	))

	properties.TestingRun(t)
}

func TestNewRejectsZeroSpeed(t *testing.T) {
	_, err := New(Config{
		TempoMap: msPerTick{},
		Options: contracts.PlaybackOptions{
			Logger:        logger.NewNopLogger(),
			TickGenerator: contracts.GeneratorManual,
		},
	})
	if !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Fatalf("New without a speed = %v, want ErrInvalidArgument", err)
	}
}

func TestMoveToStartResetsParameters(t *testing.T) {
	h := newHarness(t, []contracts.TimedEvent{
		ev(0, midi.NoteOn(0, 60, 100)),
		ev(50, midi.ProgramChange(0, 10)),
		ev(50, midi.Pitchbend(0, 1000)),
		ev(50, midi.ControlChange(0, 7, 90)),
		ev(100, midi.NoteOff(0, 60)),
	})
	_ = h.Start()
	h.step(t, 0)
	h.step(t, 100*time.Millisecond)
	if h.State() != contracts.Stopped {
		t.Fatalf("state = %s", h.State())
	}

	if err := h.MoveToStart(); err != nil {
		t.Fatalf("MoveToStart: %v", err)
	}
	expectMessages(t, h.out.take(),
		midi.ProgramChange(0, 0),
		midi.Pitchbend(0, 0),
		midi.ControlChange(0, 7, 0),
	)

	_ = h.Start()
	expectMessages(t, h.step(t, 0), midi.NoteOn(0, 60, 100))
}

var regionSong = []contracts.TimedEvent{
	ev(0, midi.ProgramChange(0, 3)),
	ev(0, midi.NoteOn(0, 60, 100)),
	ev(100, midi.NoteOff(0, 60)),
	ev(100, midi.NoteOn(0, 62, 100)),
	ev(150, midi.NoteOff(0, 62)),
	ev(200, midi.NoteOn(0, 64, 100)),
	ev(300, midi.NoteOff(0, 64)),
}

func TestRegionLimitsPlaybackAndLoop(t *testing.T) {
	repeats := 0
	h := newHarness(t, regionSong,
		contracts.WithPlaybackStart(100*time.Millisecond),
		contracts.WithPlaybackEnd(200*time.Millisecond),
		contracts.WithLoop(true),
		contracts.WithOnRepeatStarted(func() { repeats++ }),
	)

	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	expectMessages(t, h.out.take(), midi.ProgramChange(0, 3))
	if got, _ := h.CurrentTime(); got != 100*time.Millisecond {
		t.Fatalf("Start should jump to the region start, got %s", got)
	}

	expectMessages(t, h.step(t, 0), midi.NoteOff(0, 60), midi.NoteOn(0, 62, 100))
	expectMessages(t, h.step(t, 50*time.Millisecond), midi.NoteOff(0, 62))

	// The Note On at the region end is not played; the loop restarts at 100ms
	// and carries the 10ms overshoot.
	expectMessages(t, h.step(t, 60*time.Millisecond), midi.NoteOff(0, 60), midi.NoteOn(0, 62, 100))
	if repeats != 1 {
		t.Fatalf("OnRepeatStarted called %d times", repeats)
	}
	if got, _ := h.CurrentTime(); got != 110*time.Millisecond {
		t.Fatalf("position after loop = %s", got)
	}

	_ = h.SetLoop(false)
	expectMessages(t, h.step(t, 50*time.Millisecond), midi.NoteOff(0, 62))
	expectMessages(t, h.step(t, 50*time.Millisecond))
	if h.State() != contracts.Stopped {
		t.Fatalf("playback should finish at the region end, state %s", h.State())
	}

	_ = h.Start()
	if got, _ := h.CurrentTime(); got != 100*time.Millisecond {
		t.Fatalf("Start after finish should rewind to the region start, got %s", got)
	}
}

func TestRegionClampsSeek(t *testing.T) {
	h := newHarness(t, regionSong,
		contracts.WithPlaybackStart(100*time.Millisecond),
		contracts.WithPlaybackEnd(200*time.Millisecond),
	)

	if from, to := h.Region(); from != 100*time.Millisecond || to != 200*time.Millisecond {
		t.Fatalf("Region = %s..%s", from, to)
	}
	if h.Duration() != 300*time.Millisecond {
		t.Fatalf("Duration = %s", h.Duration())
	}

	cases := []struct {
		move func() error
		want time.Duration
	}{
		{func() error { return h.MoveToTime(0) }, 100 * time.Millisecond},
		{func() error { return h.MoveToTime(time.Hour) }, 200 * time.Millisecond},
		{func() error { return h.MoveBack(time.Hour) }, 100 * time.Millisecond},
		{func() error { return h.MoveForward(30 * time.Millisecond) }, 130 * time.Millisecond},
		{h.MoveToStart, 100 * time.Millisecond},
	}
	for i, tc := range cases {
		if err := tc.move(); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
		if got, _ := h.CurrentTime(); got != tc.want {
			t.Fatalf("move %d landed at %s, want %s", i, got, tc.want)
		}
	}
}

func TestRegionDefaultsToWholeTimeline(t *testing.T) {
	h := newHarness(t, melody)
	if from, to := h.Region(); from != 0 || to != 200*time.Millisecond {
		t.Fatalf("Region = %s..%s", from, to)
	}
}

func TestNoteHooks(t *testing.T) {
	var calls []string
	record := func(kind string) func([]contracts.PlayedNote) {
		return func(ns []contracts.PlayedNote) {
			for _, n := range ns {
				calls = append(calls, fmt.Sprintf("%s %d@%s", kind, n.Key, n.Time))
			}
		}
	}
	h := newHarness(t, melody,
		contracts.WithNoteStopPolicy(contracts.Split),
		contracts.WithOnNotesStarted(record("on")),
		contracts.WithOnNotesFinished(record("off")),
	)

	_ = h.Start()
	h.step(t, 0)
	h.step(t, 100*time.Millisecond)
	h.step(t, 50*time.Millisecond)
	_ = h.Stop()
	_ = h.Start()
	h.step(t, 50*time.Millisecond)

	want := []string{
		"on 60@0s",
		"off 60@100ms",
		"on 62@100ms",
		"off 62@150ms",
		"on 62@150ms",
		"off 62@200ms",
	}
	if !slices.Equal(calls, want) {
		t.Fatalf("note hooks = %v, want %v", calls, want)
	}
}

func TestNoteHooksIgnoreSilentNoteOff(t *testing.T) {
	finished := 0
	h := newHarness(t, []contracts.TimedEvent{
		ev(0, midi.NoteOff(0, 60)),
		ev(10, midi.NoteOn(0, 61, 0)),
	}, contracts.WithOnNotesFinished(func(ns []contracts.PlayedNote) { finished += len(ns) }))

	_ = h.Start()
	h.step(t, 0)
	h.step(t, 10*time.Millisecond)
	if finished != 0 {
		t.Fatalf("Note Off for a silent key reported %d finished notes", finished)
	}
}

func TestPanickingOutputIsReportedAndPlaybackContinues(t *testing.T) {
	var reported []error
	h := newHarness(t, melody,
		contracts.WithOnError(func(err error) { reported = append(reported, err) }),
	)
	h.out.fail = func(msg midi.Message) error {
		var ch, key, vel uint8
		if msg.GetNoteOn(&ch, &key, &vel) && key == 60 {
			panic("driver crashed")
		}
		return nil
	}

	_ = h.Start()
	expectMessages(t, h.step(t, 0))
	expectMessages(t, h.step(t, 100*time.Millisecond), midi.NoteOff(0, 60), midi.NoteOn(0, 62, 100))

	if len(reported) != 1 {
		t.Fatalf("expected 1 error, got %d", len(reported))
	}
	var derr *contracts.DispatchError
	if !errors.As(reported[0], &derr) || !errors.Is(derr, contracts.ErrOutputPanic) {
		t.Fatalf("unexpected error %v", reported[0])
	}
	if !h.IsRunning() {
		t.Fatal("playback stopped after the output panicked")
	}
}
