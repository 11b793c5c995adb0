package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/keycast/keycast/internal/tui/client"
	"github.com/keycast/keycast/internal/tui/theme"
	"github.com/keycast/keycast/internal/tui/views/eventlog"
	"github.com/keycast/keycast/internal/tui/views/status"
)

const statusInterval = 5 * time.Second

type statusMsg struct {
	status *client.Status
	err    error
}

type triggerMsg struct {
	ack *client.Ack
	err error
}

type statusTickMsg struct{}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	input     textinput.Model
	events    eventlog.Model
	statusBar status.Model

	// Connection state.
	connected bool
}

// New creates the root model. url is shown in the status bar.
func New(ws *client.WSClient, http *client.HTTPClient, url string) Model {
	ctx, cancel := context.WithCancel(context.Background())

	ti := textinput.New()
	ti.Placeholder = "type a message"
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Focus()

	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		input:     ti,
		events:    eventlog.New(),
		statusBar: status.New(url),
	}
}

// Init starts the WebSocket connection and the status poll.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.ws.Listen(m.ctx), m.fetchStatus(), textinput.Blink)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.input.Width = max(msg.Width-6, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.events.Note("sys", "connected")
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		if msg.Err != nil {
			m.events.Note("err", "disconnected: "+msg.Err.Error())
		}
		return m, m.ws.Listen(m.ctx)

	case client.WSEventMsg:
		m.recordEvent(msg.Event)
		return m, m.ws.ReadLoop(m.ctx)

	case statusMsg:
		m.statusBar.Err = msg.err
		if msg.err == nil {
			m.statusBar.Server = msg.status
		}
		return m, tea.Tick(statusInterval, func(time.Time) tea.Msg { return statusTickMsg{} })

	case statusTickMsg:
		return m, m.fetchStatus()

	case triggerMsg:
		if msg.err != nil {
			m.events.Note("err", "trigger failed: "+msg.err.Error())
		} else {
			m.events.Note("sys", fmt.Sprintf("trigger %s: %s", msg.ack.Status, msg.ack.Content))
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) recordEvent(ev client.Event) {
	m.statusBar.Received++
	source := ev.Line
	if source == "" && len(ev.Sender) >= 8 {
		source = ev.Sender[:8]
	}
	m.events.Add(eventlog.Entry{
		Time:    ev.Received,
		Origin:  ev.Origin,
		Source:  source,
		Message: ev.Payload,
	})
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		if m.ws != nil {
			m.ws.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Send):
		text := m.input.Value()
		if text == "" {
			return m, nil
		}
		if err := m.ws.Send(text); err != nil {
			m.events.Note("err", "send failed: "+err.Error())
			return m, nil
		}
		m.input.Reset()
		return m, nil

	case key.Matches(msg, m.keys.Trigger):
		text := m.input.Value()
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		return m, m.trigger(text)

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchStatus()

	case key.Matches(msg, m.keys.ScrollUp):
		m.events.ScrollUp(5)
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.events.ScrollDown(5)
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.input.Reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) fetchStatus() tea.Cmd {
	httpClient := m.http
	ctx := m.ctx
	return func() tea.Msg {
		if httpClient == nil {
			return nil
		}
		s, err := httpClient.GetStatus(ctx)
		return statusMsg{status: s, err: err}
	}
}

func (m Model) trigger(text string) tea.Cmd {
	httpClient := m.http
	ctx := m.ctx
	return func() tea.Msg {
		ack, err := httpClient.Trigger(ctx, text)
		return triggerMsg{ack: ack, err: err}
	}
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	bar := m.statusBar.View()
	help := theme.StyleDimmed.Render("  enter:send  ctrl+t:send via http  pgup/pgdn:scroll  ctrl+r:refresh  ctrl+c:quit")
	input := theme.StyleBorder.Width(max(m.width-2, 20)).Render(m.input.View())

	logHeight := m.height - lipgloss.Height(bar) - lipgloss.Height(input) - lipgloss.Height(help)

	sections := []string{bar}
	if !m.connected {
		sections = append(sections, m.renderDisconnected())
		logHeight--
	}
	sections = append(sections, m.events.View(m.width, logHeight), input, help)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDisconnected() string {
	return lipgloss.NewStyle().
		Foreground(theme.ColorDanger).
		Bold(true).
		Render("  DISCONNECTED  Reconnecting...")
}
