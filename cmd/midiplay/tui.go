package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/leandrodaf/midiplay/sdk/contracts"
	"github.com/leandrodaf/midiplay/sdk/midifile"
)

const (
	seekStep   = 5 * time.Second
	speedStep  = 0.25
	refresh    = 100 * time.Millisecond
	barWidth   = 40
	maxSpeed   = 4.0
	minSpeed   = speedStep
	statusKeep = 3 * time.Second
)

type refreshMsg time.Time

type finishedMsg struct{}

type repeatMsg struct{}

type errorMsg struct{ err error }

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	stateStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	filledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

type model struct {
	p        contracts.Playback
	file     string
	events   int
	tracks   int
	incoming <-chan tea.Msg

	status   string
	statusAt time.Time
	err      error
	cycles   int
}

func newModel(p contracts.Playback, file string, song *midifile.Song, incoming <-chan tea.Msg) model {
	return model{
		p:        p,
		file:     file,
		events:   song.Events(),
		tracks:   len(song.Streams),
		incoming: incoming,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func listen(incoming <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-incoming }
}

func (m model) Init() tea.Cmd {
	if err := m.p.Start(); err != nil {
		return func() tea.Msg { return errorMsg{err} }
	}
	return tea.Batch(tick(), listen(m.incoming))
}

func (m model) setStatus(format string, args ...any) model {
	m.status = fmt.Sprintf(format, args...)
	m.statusAt = time.Now()
	return m
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case refreshMsg:
		if m.status != "" && time.Since(m.statusAt) > statusKeep {
			m.status = ""
		}
		return m, tick()

	case finishedMsg:
		return m.setStatus("finished"), listen(m.incoming)

	case repeatMsg:
		m.cycles++
		return m, listen(m.incoming)

	case errorMsg:
		m.err = msg.err
		return m, listen(m.incoming)
	}
	return m, nil
}

func (m model) handleKey(key string) (tea.Model, tea.Cmd) {
	var err error
	switch key {
	case "q", "ctrl+c", "esc":
		if m.p.IsRunning() {
			_ = m.p.Stop()
		}
		return m, tea.Quit

	case " ", "p":
		if m.p.IsRunning() {
			err = m.p.Stop()
		} else {
			err = m.p.Start()
		}

	case "left", "h":
		err = m.p.MoveBack(seekStep)

	case "right", "l":
		err = m.p.MoveForward(seekStep)

	case "home", "0":
		err = m.p.MoveToStart()

	case "+", "=":
		speed := min(m.p.Speed()+speedStep, maxSpeed)
		if err = m.p.SetSpeed(speed); err == nil {
			m = m.setStatus("speed %.2fx", speed)
		}

	case "-", "_":
		speed := max(m.p.Speed()-speedStep, minSpeed)
		if err = m.p.SetSpeed(speed); err == nil {
			m = m.setStatus("speed %.2fx", speed)
		}

	case "r":
		loop := !m.p.Loop()
		if err = m.p.SetLoop(loop); err == nil {
			m = m.setStatus("loop %t", loop)
		}

	case "s":
		next := (m.p.NoteStopPolicy() + 1) % (contracts.Split + 1)
		if err = m.p.SetNoteStopPolicy(next); err == nil {
			m = m.setStatus("stop policy %s", next)
		}
	}

	if err != nil {
		m.err = err
	}
	return m, nil
}

func (m model) progress(pos, total time.Duration) string {
	filled := 0
	if total > 0 {
		filled = int(float64(barWidth) * float64(pos) / float64(total))
	}
	filled = min(max(filled, 0), barWidth)
	return filledStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", barWidth-filled))
}

func formatDuration(d time.Duration) string {
	d = d.Round(100 * time.Millisecond)
	return fmt.Sprintf("%d:%04.1f", int(d.Minutes()), (d % time.Minute).Seconds())
}

func (m model) View() string {
	pos, _ := m.p.CurrentTime()
	total := m.p.Duration()

	var b strings.Builder
	b.WriteString(titleStyle.Render("midiplay") + "  " + m.file + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d tracks, %d events", m.tracks, m.events)) + "\n\n")

	b.WriteString(m.progress(pos, total) + "  ")
	b.WriteString(fmt.Sprintf("%s / %s\n\n", formatDuration(pos), formatDuration(total)))

	b.WriteString(stateStyle.Render(m.p.State().String()))
	b.WriteString(fmt.Sprintf("  speed %.2fx  loop %t  policy %s", m.p.Speed(), m.p.Loop(), m.p.NoteStopPolicy()))
	if m.cycles > 0 {
		b.WriteString(fmt.Sprintf("  cycle %d", m.cycles+1))
	}
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(dimStyle.Render(m.status) + "\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	}

	b.WriteString("\n" + dimStyle.Render("space play/stop  ←/→ seek  0 start  +/- speed  r loop  s policy  q quit") + "\n")
	return b.String()
}
