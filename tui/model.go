package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-midiplay/midi"
	"go-midiplay/output"
	"go-midiplay/player"
	"go-midiplay/playlist"
	"go-midiplay/theme"
)

const (
	seekStep   = 5 * time.Second
	volumeStep = 8.0 / 127
	tickRate   = 200 * time.Millisecond
	barWidth   = 40
)

type Model struct {
	Transport *player.Transport
	Queue     *playlist.Playlist
	Out       *output.Switch
	Ports     *output.Watcher // may be nil
	Theme     *theme.Theme

	// OnVolume, if set, sees every volume change
	OnVolume func(gain float64)
	// OnPorts, if set, sees every port snapshot and may return a status line
	OnPorts func(output.Ports) string

	updates  chan struct{}
	cursor   int
	status   string
	ports    output.Ports
	quitting bool
}

type UpdateMsg struct{}

type TickMsg time.Time

type PortsMsg output.Ports

func NewModel(tr *player.Transport, q *playlist.Playlist, out *output.Switch, ports *output.Watcher, th *theme.Theme) Model {
	return Model{
		Transport: tr,
		Queue:     q,
		Out:       out,
		Ports:     ports,
		Theme:     th,
		updates:   make(chan struct{}, 1),
		cursor:    max(q.Current(), 0),
	}
}

// Notify asks for a redraw. Safe to call from any goroutine, never blocks.
func (m Model) Notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

func ListenForUpdates(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-updates
		return UpdateMsg{}
	}
}

func ListenForPorts(w *output.Watcher) tea.Cmd {
	if w == nil {
		return nil
	}
	return func() tea.Msg {
		p, ok := <-w.Events()
		if !ok {
			return nil
		}
		return PortsMsg(p)
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.updates),
		ListenForPorts(m.Ports),
		tick(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case UpdateMsg:
		if cur := m.Queue.Current(); cur >= 0 {
			m.cursor = cur
		}
		return m, ListenForUpdates(m.updates)

	case TickMsg:
		return m, tick()

	case PortsMsg:
		m.ports = output.Ports(msg)
		m.status = fmt.Sprintf("ports: %d midi, %d serial", len(m.ports.MIDI), len(m.ports.Serial))
		if m.OnPorts != nil {
			if s := m.OnPorts(m.ports); s != "" {
				m.status = s
			}
		}
		return m, ListenForPorts(m.Ports)
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	tr := m.Transport
	items := len(m.Queue.Items())

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		tr.Stop()
		return m, tea.Quit

	case " ":
		m.report(m.Queue.Toggle())

	case "s":
		tr.Stop()
		m.status = "stopped"

	case "r":
		tr.Rewind()

	case "n":
		m.report(m.Queue.Next())

	case "p":
		m.report(m.Queue.Prev())

	case "left":
		tr.Seek(tr.Position() - seekStep)

	case "right":
		tr.Seek(tr.Position() + seekStep)

	case "+", "=":
		m.setVolume(tr.Volume() + volumeStep)

	case "-", "_":
		m.setVolume(tr.Volume() - volumeStep)

	case "j", "down":
		if m.cursor < items-1 {
			m.cursor++
		}

	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}

	case "enter":
		m.report(m.Queue.PlayIndex(m.cursor))

	case "x":
		tr.Silence()
		m.status = "all sound off"

	case "X":
		for ch := range midi.NumChannels {
			m.Out.Send(midi.ResetAllControllers(byte(ch)))
		}
		m.status = "controllers reset"
	}

	if cur := m.Queue.Current(); cur >= 0 && (key == "n" || key == "p" || key == " ") {
		m.cursor = cur
	}
	return m, nil
}

func (m *Model) setVolume(g float64) {
	m.Transport.SetVolume(g)
	g = m.Transport.Volume()
	if m.OnVolume != nil {
		m.OnVolume(g)
	}
	m.status = fmt.Sprintf("volume %d", int(g*127+0.5))
}

func (m *Model) report(err error) {
	switch {
	case err == nil:
		m.status = ""
	case errors.Is(err, playlist.ErrEndOfQueue):
		m.status = "end of queue"
	case errors.Is(err, playlist.ErrEmpty):
		m.status = "queue is empty - pass .mid files on the command line"
	default:
		m.status = err.Error()
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	th := m.Theme
	tr := m.Transport

	headerStyle := lipgloss.NewStyle().Foreground(th.Accent()).Bold(true)
	fgStyle := lipgloss.NewStyle().Foreground(th.FG())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	activeStyle := lipgloss.NewStyle().Foreground(th.Active())
	warnStyle := lipgloss.NewStyle().Foreground(th.Warning())

	state := tr.State()
	sym := th.Symbols.Stop
	switch state {
	case player.Playing:
		sym = th.Symbols.Play
	case player.Paused:
		sym = th.Symbols.Pause
	}

	title := m.Queue.Title()
	if title == "" {
		title = "-"
	}
	pos, dur := tr.Position(), tr.Duration()

	header := headerStyle.Render(fmt.Sprintf("midiplay  %c %s", sym, strings.ToUpper(state.String())))
	nowPlaying := fgStyle.Render(fmt.Sprintf("%s  %s / %s  vol %d", title, fmtTime(pos), fmtTime(dur), int(tr.Volume()*127+0.5)))
	bar := activeStyle.Render(progressBar(pos, dur, barWidth, th.Symbols.BarFull, th.Symbols.BarEmpty))
	out := dimStyle.Render("out: " + m.Out.String())

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(nowPlaying)
	b.WriteString("\n")
	b.WriteString(bar)
	b.WriteString("\n")
	b.WriteString(out)
	b.WriteString("\n\n")

	current := m.Queue.Current()
	for i, path := range m.Queue.Items() {
		mark := ' '
		if i == current {
			mark = th.Symbols.Current
		}
		cursor := ' '
		if i == m.cursor {
			cursor = th.Symbols.Cursor
		}
		row := fmt.Sprintf("%c%c %2d  %s", cursor, mark, i+1, filepath.Base(path))
		switch {
		case i == current:
			b.WriteString(activeStyle.Render(row))
		case i == m.cursor:
			b.WriteString(fgStyle.Render(row))
		default:
			b.WriteString(dimStyle.Render(row))
		}
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render(m.status))
	}
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("space:play/pause  s:stop  r:rewind  n/p:next/prev  ←/→:seek  +/-:vol  j/k enter:pick  x:silence  q:quit"))

	return b.String()
}

// fmtTime renders m:ss
func fmtTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func progressBar(pos, dur time.Duration, width int, full, empty rune) string {
	n := 0
	if dur > 0 {
		n = int(int64(width) * int64(min(pos, dur)) / int64(dur))
	}
	return strings.Repeat(string(full), n) + strings.Repeat(string(empty), width-n)
}
