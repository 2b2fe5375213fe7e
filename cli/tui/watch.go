package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/heliwatch/session"
	"github.com/justapithecus/heliwatch/sink"
)

// tickInterval drives the header clock and status refresh.
const tickInterval = time.Second

// defaultWidth is used until the terminal reports its size.
const defaultWidth = 100

const timeLayout = "2006-01-02 15:04:05"

// Session is the part of *session.Controller the screen drives.
type Session interface {
	Status() session.Status
	TogglePause() bool
	ToggleConnect(ctx context.Context) error
}

// Display renders helicorder rows. *sink.Helicorder implements it.
type Display interface {
	Render(width int) []string
	Amplitude() sink.Amplitude
	SetAmplitude(a sink.Amplitude)
}

// StartFunc backfills and connects. It runs once, from Init.
type StartFunc func(ctx context.Context) error

type tickMsg time.Time

type startDoneMsg struct{ err error }

type toggleDoneMsg struct{ err error }

// keyMap defines key bindings.
type keyMap struct {
	Pause   key.Binding
	Connect key.Binding
	Amp     key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Pause: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause/play"),
	),
	Connect: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "disconnect/reconnect"),
	),
	Amp: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "amplitude"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// WatchModel is a Bubble Tea model for a live session.
type WatchModel struct {
	ctx     context.Context
	session Session
	display Display
	start   StartFunc

	clock    time.Time
	status   session.Status
	startErr error
	notice   string
	width    int
	quitting bool
}

// NewWatchModel creates a watch model. start may be nil when the session
// was started before the screen opened.
func NewWatchModel(ctx context.Context, s Session, d Display, start StartFunc) WatchModel {
	return WatchModel{
		ctx:     ctx,
		session: s,
		display: d,
		start:   start,
		clock:   time.Now(),
		status:  s.Status(),
	}
}

// StartErr returns the error of the initial backfill and connect, if any.
func (m WatchModel) StartErr() error {
	return m.startErr
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	cmds := []tea.Cmd{tick()}
	if m.start != nil {
		ctx, start := m.ctx, m.start
		cmds = append(cmds, func() tea.Msg {
			return startDoneMsg{err: start(ctx)}
		})
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.clock = time.Time(msg)
		m.status = m.session.Status()
		return m, tick()

	case startDoneMsg:
		m.startErr = msg.err
		m.status = m.session.Status()
		return m, nil

	case toggleDoneMsg:
		m.notice = ""
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.notice = msg.err.Error()
		}
		m.status = m.session.Status()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Pause):
			m.session.TogglePause()
			m.status = m.session.Status()
			return m, nil
		case key.Matches(msg, keys.Amp):
			m.display.SetAmplitude(m.display.Amplitude().Next())
			return m, nil
		case key.Matches(msg, keys.Connect):
			// The handshake may block; run it off the update loop.
			ctx, s := m.ctx, m.session
			return m, func() tea.Msg {
				return toggleDoneMsg{err: s.ToggleConnect(ctx)}
			}
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	// Border and padding take four columns.
	rows := m.display.Render(width - 4)
	b.WriteString(BoxStyle.Render(TraceStyle.Render(strings.Join(rows, "\n"))))
	b.WriteString("\n")

	b.WriteString(HelpStyle.Render(fmt.Sprintf("%s %s • %s %s • %s %s • %s %s",
		keys.Pause.Help().Key, keys.Pause.Help().Desc,
		keys.Connect.Help().Key, keys.Connect.Help().Desc,
		keys.Amp.Help().Key, keys.Amp.Help().Desc,
		keys.Quit.Help().Key, keys.Quit.Help().Desc)))
	return b.String()
}

func (m WatchModel) renderHeader() string {
	st := m.status
	var b strings.Builder

	b.WriteString(TitleStyle.Render(st.Channel.String()))
	if st.ServerID != "" {
		b.WriteString("  " + LabelStyle.UnsetWidth().Render(st.ServerID))
	}
	b.WriteString("\n")

	field := func(label, value string) {
		b.WriteString(LabelStyle.Render(label) + " " + value + "\n")
	}

	field("Window", ValueStyle.Render(fmt.Sprintf("%s - %s UTC",
		st.Window.Start.UTC().Format(timeLayout),
		st.Window.End.UTC().Format(timeLayout))))
	field("Clock", ValueStyle.Render(m.clock.UTC().Format(timeLayout)+" UTC"))
	field("State", stateLine(st))
	field("Packets", ValueStyle.Render(fmt.Sprintf("%d", st.Packets)))
	field("Amp", ValueStyle.Render(m.display.Amplitude().String()))
	if !st.Marker.IsZero() {
		field("Marker", ValueStyle.Render(st.Marker.UTC().Format(timeLayout)))
	}

	lastErr := st.LastError
	if m.notice != "" {
		lastErr = m.notice
	}
	if lastErr != "" {
		field("Error", ErrorStyle.Render(lastErr))
	}
	return b.String()
}

func stateLine(st session.Status) string {
	state := st.State.String()
	line := StateStyle(state).Render(state)
	if st.Paused {
		line += " " + StateStyle("paused").Render("(paused)")
	}
	if st.Degraded {
		line += " " + StateStyle("degraded").Render("[degraded]")
	}
	return line
}

// Run runs the watch screen until the user quits or ctx is done.
// The returned model carries the start result.
func Run(ctx context.Context, m WatchModel) (WatchModel, error) {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if fm, ok := final.(WatchModel); ok {
		m = fm
	}
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return m, nil
	}
	return m, err
}
