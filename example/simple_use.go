package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/leandrodaf/midiplay/internal/logger"
	"github.com/leandrodaf/midiplay/sdk/contracts"
	"github.com/leandrodaf/midiplay/sdk/midi"
	"github.com/leandrodaf/midiplay/sdk/midifile"
	"github.com/leandrodaf/midiplay/sdk/playback"
)

func main() {
	log := logger.NewZapLogger()

	if len(os.Args) < 2 {
		fmt.Println("usage: simple_use <file.mid>")
		return
	}

	song, err := midifile.Load(os.Args[1])
	if err != nil {
		log.Error("Failed to load MIDI file", log.Field().Error("error", err))
		return
	}

	out, err := midi.NewOutput(
		contracts.WithOutputLogger(log),
		contracts.WithDeviceID(0),
	)
	if err != nil {
		log.Error("Failed to open MIDI output", log.Field().Error("error", err))
		return
	}

	p, err := playback.NewPlayback(song.Streams, song.TempoMap, out,
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.InfoLevel),
		contracts.WithNoteStopPolicy(contracts.Interrupt),
		contracts.WithCloseOutput(true),
		contracts.WithOnEventPlayed(func(ev contracts.PlayedEvent) {
			log.Debug("MIDI Event",
				log.Field().Duration("Time", ev.Time),
				log.Field().String("Message", ev.Message.String()),
				log.Field().Bool("Synthetic", ev.Synthetic),
			)
		}),
	)
	if err != nil {
		log.Error("Failed to create playback", log.Field().Error("error", err))
		_ = out.Close()
		return
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Playing %s (%s)... Press Ctrl+C to stop.\n", os.Args[1], p.Duration())
	if err := p.Play(ctx); err != nil && ctx.Err() == nil {
		log.Error("Playback failed", log.Field().Error("error", err))
	}
}
