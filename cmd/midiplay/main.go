// Command midiplay plays a Standard MIDI File to a MIDI output.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"github.com/leandrodaf/midiplay/internal/logger"
	"github.com/leandrodaf/midiplay/sdk/contracts"
	"github.com/leandrodaf/midiplay/sdk/midi"
	"github.com/leandrodaf/midiplay/sdk/midifile"
	"github.com/leandrodaf/midiplay/sdk/playback"
)

type config struct {
	file       string
	port       string
	device     int
	system     bool
	speed      float64
	loop       bool
	from, to   time.Duration
	policy     contracts.NoteStopPolicy
	generator  contracts.TickGeneratorKind
	interval   time.Duration
	trackNotes bool
	level      contracts.LogLevel
	logFile    string
	tui        bool
}

func parseFlags(args []string) (config, error) {
	var (
		cfg       config
		policy    string
		generator string
		level     string
	)

	fs := flag.NewFlagSet("midiplay", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: midiplay [flags] <file.mid>\n\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&cfg.port, "port", "", "output port name or index (rtmidi); first port when empty")
	fs.BoolVar(&cfg.system, "system", false, "use the system output (CoreMIDI or winmm) instead of rtmidi")
	fs.IntVar(&cfg.device, "device", 0, "system output device index")
	fs.Float64Var(&cfg.speed, "speed", 1, "playback speed")
	fs.BoolVar(&cfg.loop, "loop", false, "restart from the beginning after the last event")
	fs.DurationVar(&cfg.from, "from", 0, "start of the region to play")
	fs.DurationVar(&cfg.to, "to", 0, "end of the region to play; the end of the file when zero")
	fs.StringVar(&policy, "policy", "interrupt", "what stop does with sounding notes: interrupt, hold or split")
	fs.StringVar(&generator, "timer", "high-precision", "tick generator: regular or high-precision")
	fs.DurationVar(&cfg.interval, "interval", time.Millisecond, "clock tick interval")
	fs.BoolVar(&cfg.trackNotes, "track-notes", true, "restart notes that span the position after a seek")
	fs.StringVar(&level, "log-level", "warn", "log level: debug, info, warn, error")
	fs.StringVar(&cfg.logFile, "log-file", "", "write logs to this file instead of stderr")
	fs.BoolVar(&cfg.tui, "tui", true, "interactive transport")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return cfg, errors.New("expected exactly one MIDI file")
	}
	cfg.file = fs.Arg(0)

	var err error
	if cfg.policy, err = contracts.ParseNoteStopPolicy(policy); err != nil {
		return cfg, err
	}
	if cfg.generator, err = contracts.ParseTickGeneratorKind(generator); err != nil {
		return cfg, err
	}
	if cfg.generator == contracts.GeneratorManual {
		return cfg, fmt.Errorf("%w: the manual generator needs an external clock", contracts.ErrInvalidArgument)
	}
	if cfg.level, err = contracts.ParseLogLevel(level); err != nil {
		return cfg, err
	}
	if cfg.from < 0 || (cfg.to != 0 && cfg.to <= cfg.from) {
		return cfg, fmt.Errorf("%w: region %s..%s", contracts.ErrInvalidArgument, cfg.from, cfg.to)
	}
	return cfg, nil
}

// findPort picks an rtmidi output by index or by a case-insensitive name fragment.
func findPort(ports []drivers.Out, query string) (drivers.Out, error) {
	if len(ports) == 0 {
		return nil, errors.New("no MIDI output ports")
	}
	if query == "" {
		return ports[0], nil
	}
	if i, err := strconv.Atoi(query); err == nil {
		if i < 0 || i >= len(ports) {
			return nil, fmt.Errorf("port index %d out of range (%d ports)", i, len(ports))
		}
		return ports[i], nil
	}

	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.String()
		if strings.Contains(strings.ToLower(p.String()), strings.ToLower(query)) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no output port matches %q; available: %s", query, strings.Join(names, ", "))
}

func openOutput(cfg config, log contracts.Logger) (contracts.Output, error) {
	if cfg.system {
		return midi.NewOutput(
			contracts.WithOutputLogger(log),
			contracts.WithOutputLogLevel(cfg.level),
			contracts.WithDeviceID(cfg.device),
		)
	}

	port, err := findPort(gomidi.GetOutPorts(), cfg.port)
	if err != nil {
		return nil, err
	}
	return midi.NewPortOutput(port,
		contracts.WithOutputLogger(log),
		contracts.WithOutputLogLevel(cfg.level),
	)
}

func run(cfg config) error {
	log := logger.NewZapLogger()
	if cfg.logFile != "" {
		log.SetDestination(contracts.FileLog, cfg.logFile)
	}

	song, err := midifile.Load(cfg.file)
	if err != nil {
		return err
	}

	out, err := openOutput(cfg, log)
	if err != nil {
		return err
	}

	events := make(chan tea.Msg, 16)
	notify := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
		}
	}

	opts := []contracts.Option{
		contracts.WithLogger(log),
		contracts.WithLogLevel(cfg.level),
		contracts.WithSpeed(cfg.speed),
		contracts.WithLoop(cfg.loop),
		contracts.WithNoteStopPolicy(cfg.policy),
		contracts.WithTickGenerator(cfg.generator),
		contracts.WithTickInterval(cfg.interval),
		contracts.WithTrackNotes(cfg.trackNotes),
		contracts.WithCloseOutput(true),
		contracts.WithOnFinished(func() { notify(finishedMsg{}) }),
		contracts.WithOnRepeatStarted(func() { notify(repeatMsg{}) }),
		contracts.WithOnError(func(err error) { notify(errorMsg{err}) }),
		contracts.WithPlaybackStart(cfg.from),
	}
	if cfg.to > 0 {
		opts = append(opts, contracts.WithPlaybackEnd(cfg.to))
	}

	p, err := playback.NewPlayback(song.Streams, song.TempoMap, out, opts...)
	if err != nil {
		_ = out.Close()
		return err
	}
	defer p.Close()

	if cfg.tui {
		m := newModel(p, cfg.file, song, events)
		_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Playing %s (%s)\n", cfg.file, p.Duration())
	if err := p.Play(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
