package contracts

import "time"

// Hooks are notified about playback activity. They run on the goroutine that
// caused the activity, after the playback lock has been released, in the order
// the activity happened.
type Hooks struct {
	OnStarted       func()
	OnStopped       func()
	OnFinished      func()
	OnRepeatStarted func()
	OnEventPlayed   func(PlayedEvent)
	OnError         func(error)

	// OnNotesStarted and OnNotesFinished receive the notes a single event,
	// or a batch of stop, resume or seek messages, started or ended.
	OnNotesStarted  func([]PlayedNote)
	OnNotesFinished func([]PlayedNote)
}

// PlaybackOptions defines the configuration of a playback.
type PlaybackOptions struct {
	Logger             Logger            // Logger for transport changes and sink failures.
	LogLevel           LogLevel          // Level of logging to use.
	Speed              float64           // Initial speed, 1 is nominal.
	Loop               bool              // Restart from the region start after the region end.
	PlaybackStart      time.Duration     // Start of the region to play.
	PlaybackEnd        time.Duration     // End of the region to play, used when set.
	NoteStopPolicy     NoteStopPolicy    // What Stop does with sounding notes.
	LoopPolicy         NoteStopPolicy    // What a loop restart does with sounding notes (Interrupt or Hold).
	TrackedParameters  TrackedParameter  // Parameter kinds restored on seek.
	TrackedControllers []uint8           // Controllers restored on seek; empty means all.
	TrackNotes         bool              // Re-trigger notes spanning the position on start and seek.
	TickInterval       time.Duration     // Nominal interval between clock ticks.
	TickGenerator      TickGeneratorKind // Timer strategy.
	EventCallback      EventCallback     // Optional rewrite hook for timeline events.
	CloseOutput        bool              // Close the sink (if it is an Output) when the playback is closed.
	Hooks              Hooks

	trackingSet bool
	logLevelSet bool
	speedSet    bool
	endSet      bool
}

// TrackingSet reports whether WithTrackedParameters was applied.
func (o *PlaybackOptions) TrackingSet() bool { return o.trackingSet }

// LogLevelSet reports whether WithLogLevel was applied.
func (o *PlaybackOptions) LogLevelSet() bool { return o.logLevelSet }

// SpeedSet reports whether WithSpeed was applied.
func (o *PlaybackOptions) SpeedSet() bool { return o.speedSet }

// PlaybackEndSet reports whether WithPlaybackEnd was applied.
func (o *PlaybackOptions) PlaybackEndSet() bool { return o.endSet }

// Option is a function that modifies PlaybackOptions.
type Option func(*PlaybackOptions)

// WithLogger sets the logger for the playback.
func WithLogger(l Logger) Option {
	return func(opts *PlaybackOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the playback.
func WithLogLevel(level LogLevel) Option {
	return func(opts *PlaybackOptions) {
		opts.LogLevel = level
		opts.logLevelSet = true
	}
}

// WithSpeed sets the initial playback speed.
func WithSpeed(speed float64) Option {
	return func(opts *PlaybackOptions) {
		opts.Speed = speed
		opts.speedSet = true
	}
}

// WithLoop enables or disables looping.
func WithLoop(loop bool) Option {
	return func(opts *PlaybackOptions) {
		opts.Loop = loop
	}
}

// WithPlaybackStart sets where the play region begins. Start after the end,
// MoveToStart and loop restarts go there.
func WithPlaybackStart(start time.Duration) Option {
	return func(opts *PlaybackOptions) {
		opts.PlaybackStart = start
	}
}

// WithPlaybackEnd sets where the play region ends. Events after it are not
// played; the playback finishes or loops when the position reaches it.
func WithPlaybackEnd(end time.Duration) Option {
	return func(opts *PlaybackOptions) {
		opts.PlaybackEnd = end
		opts.endSet = true
	}
}

// WithNoteStopPolicy sets what Stop does with sounding notes.
func WithNoteStopPolicy(policy NoteStopPolicy) Option {
	return func(opts *PlaybackOptions) {
		opts.NoteStopPolicy = policy
	}
}

// WithLoopPolicy sets what a loop restart does with notes sounding across the loop boundary.
func WithLoopPolicy(policy NoteStopPolicy) Option {
	return func(opts *PlaybackOptions) {
		opts.LoopPolicy = policy
	}
}

// WithTrackedParameters sets the parameter kinds restored on seek.
func WithTrackedParameters(kinds TrackedParameter) Option {
	return func(opts *PlaybackOptions) {
		opts.TrackedParameters = kinds
		opts.trackingSet = true
	}
}

// WithTrackedControllers restricts control change tracking to the given controller numbers.
func WithTrackedControllers(controllers ...uint8) Option {
	return func(opts *PlaybackOptions) {
		opts.TrackedControllers = append([]uint8(nil), controllers...)
	}
}

// WithTrackNotes enables re-triggering of notes that span the position on start and seek.
func WithTrackNotes(track bool) Option {
	return func(opts *PlaybackOptions) {
		opts.TrackNotes = track
	}
}

// WithTickInterval sets the nominal clock interval. It must be at least one millisecond.
func WithTickInterval(interval time.Duration) Option {
	return func(opts *PlaybackOptions) {
		opts.TickInterval = interval
	}
}

// WithTickGenerator selects the timer strategy.
func WithTickGenerator(kind TickGeneratorKind) Option {
	return func(opts *PlaybackOptions) {
		opts.TickGenerator = kind
	}
}

// WithEventCallback installs a hook that can rewrite or drop timeline events.
func WithEventCallback(cb EventCallback) Option {
	return func(opts *PlaybackOptions) {
		opts.EventCallback = cb
	}
}

// WithCloseOutput makes Close also close the output sink.
func WithCloseOutput(closeOutput bool) Option {
	return func(opts *PlaybackOptions) {
		opts.CloseOutput = closeOutput
	}
}

// WithHooks replaces all notification hooks at once.
func WithHooks(h Hooks) Option {
	return func(opts *PlaybackOptions) {
		opts.Hooks = h
	}
}

// WithOnEventPlayed is notified for every event that reached the sink.
func WithOnEventPlayed(f func(PlayedEvent)) Option {
	return func(opts *PlaybackOptions) {
		opts.Hooks.OnEventPlayed = f
	}
}

// WithOnError is notified for every sink failure. Playback continues.
func WithOnError(f func(error)) Option {
	return func(opts *PlaybackOptions) {
		opts.Hooks.OnError = f
	}
}

// WithOnStarted is notified after the playback started running.
func WithOnStarted(f func()) Option {
	return func(opts *PlaybackOptions) {
		opts.Hooks.OnStarted = f
	}
}

// WithOnStopped is notified after Stop.
func WithOnStopped(f func()) Option {
	return func(opts *PlaybackOptions) {
		opts.Hooks.OnStopped = f
	}
}

// WithOnFinished is notified when the last event has been played and looping is off.
func WithOnFinished(f func()) Option {
	return func(opts *PlaybackOptions) {
		opts.Hooks.OnFinished = f
	}
}

// WithOnRepeatStarted is notified when a loop cycle starts again.
func WithOnRepeatStarted(f func()) Option {
	return func(opts *PlaybackOptions) {
		opts.Hooks.OnRepeatStarted = f
	}
}

// WithOnNotesStarted is notified with the notes that started sounding.
func WithOnNotesStarted(f func([]PlayedNote)) Option {
	return func(opts *PlaybackOptions) {
		opts.Hooks.OnNotesStarted = f
	}
}

// WithOnNotesFinished is notified with the notes that stopped sounding.
func WithOnNotesFinished(f func([]PlayedNote)) Option {
	return func(opts *PlaybackOptions) {
		opts.Hooks.OnNotesFinished = f
	}
}

// CoreMIDIConfig holds configuration for CoreMIDI.
type CoreMIDIConfig struct {
	ClientName string // Name of the MIDI client.
	PortName   string // Name of the output port.
}

// OutputOptions defines the configuration of a device output.
type OutputOptions struct {
	Logger         Logger          // Logger for device events.
	LogLevel       LogLevel        // Level of logging to use.
	DeviceID       int             // Index of the destination device.
	CoreMIDIConfig *CoreMIDIConfig // Configuration specific to CoreMIDI.
}

// OutputOption is a function that modifies OutputOptions.
type OutputOption func(*OutputOptions)

// WithOutputLogger sets the logger for the output.
func WithOutputLogger(l Logger) OutputOption {
	return func(opts *OutputOptions) {
		opts.Logger = l
	}
}

// WithOutputLogLevel sets the logging level for the output.
func WithOutputLogLevel(level LogLevel) OutputOption {
	return func(opts *OutputOptions) {
		opts.LogLevel = level
	}
}

// WithDeviceID selects the destination device by index.
func WithDeviceID(id int) OutputOption {
	return func(opts *OutputOptions) {
		opts.DeviceID = id
	}
}

// WithCoreMIDIConfig sets the CoreMIDI configuration for the output.
func WithCoreMIDIConfig(config CoreMIDIConfig) OutputOption {
	return func(opts *OutputOptions) {
		opts.CoreMIDIConfig = &config
	}
}
