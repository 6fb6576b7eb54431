package cli

import (
	"context"
	"strings"
	"time"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
)

// changedMsg reports that the coordinator state moved.
type changedMsg struct{}

// outcomeMsg carries the result of an action run off the update loop.
type outcomeMsg outcome

// consoleModel is the bubbletea model for the full-screen console.
type consoleModel struct {
	ctx      context.Context
	desk     *desk
	input    textinput.Model
	theme    Theme
	focus    string
	feedback string
	problem  string
	width    int
	height   int
	quitting bool
}

func newConsoleModel(ctx context.Context, d *desk) consoleModel {
	in := textinput.New()
	in.CharLimit = 2000
	in.Focus()

	m := consoleModel{
		ctx:   ctx,
		desk:  d,
		input: in,
		theme: defaultTheme,
		focus: d.validFocus(""),
	}
	m.syncComposer()
	return m
}

// syncComposer points the composer at the focused session's state. The input
// keeps focus so commands can still be typed when replies are not allowed.
func (m *consoleModel) syncComposer() {
	_, m.input.Placeholder = m.desk.composer(m.focus)
}

// Init starts listening for coordinator changes.
func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(
		waitForChange(m.desk.coord.Changes()),
		textinput.Blink,
	)
}

// Update handles messages and returns the updated model.
func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(max(msg.Width-4, 10))
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			m.focus = m.nextFocus()
			m.syncComposer()
			return m, nil
		case "enter":
			return m.submit()
		}

	case changedMsg:
		m.focus = m.desk.validFocus(m.focus)
		m.syncComposer()
		return m, waitForChange(m.desk.coord.Changes())

	case outcomeMsg:
		m.focus = msg.focus
		m.feedback = msg.feedback
		m.problem = ""
		if msg.err != nil {
			m.problem = msg.err.Error()
		}
		m.syncComposer()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit parses the composer line and runs it in the background.
func (m consoleModel) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return m, nil
	}
	a, err := parseInput(line)
	if err != nil {
		m.input.Reset()
		m.problem = err.Error()
		return m, nil
	}
	// a reply that cannot be sent stays in the composer
	if open, _ := m.desk.composer(m.focus); a.kind == actionSend && !open {
		if s, ok := m.desk.coord.Session(m.focus); ok {
			m.problem = composerProblem(s).Error()
			return m, nil
		}
	}
	m.input.Reset()
	if a.kind == actionQuit {
		m.quitting = true
		return m, tea.Quit
	}

	m.problem = ""
	m.feedback = ""
	d, ctx, focus := m.desk, m.ctx, m.focus
	return m, func() tea.Msg {
		return outcomeMsg(d.run(ctx, a, focus))
	}
}

// nextFocus cycles through the open sessions.
func (m consoleModel) nextFocus() string {
	sessions := m.desk.coord.Sessions()
	if len(sessions) == 0 {
		return ""
	}
	for i, s := range sessions {
		if s.ID == m.focus {
			return sessions[(i+1)%len(sessions)].ID
		}
	}
	return sessions[0].ID
}

// View renders the console.
func (m consoleModel) View() tea.View {
	v := tea.NewView(m.renderContent())
	v.AltScreen = !m.quitting
	return v
}

// renderContent builds the display string.
func (m consoleModel) renderContent() string {
	if m.quitting {
		return m.theme.hintStyle().Render("Closing console...") + "\n"
	}

	coord := m.desk.coord
	sessions := coord.Sessions()
	var b strings.Builder

	who := m.desk.identity
	b.WriteString(m.theme.titleStyle().Render("agentdesk") + " ")
	b.WriteString(m.theme.agentStyle().Render(who.DisplayName))
	b.WriteString(m.theme.hintStyle().Render(" (" + who.AgentID + ")"))
	b.WriteString("\n\n")

	b.WriteString(m.theme.renderQueue(coord.QueuePage(), coord.QueueConnected(), time.Now()))
	b.WriteString("\n")
	b.WriteString(m.theme.renderTabs(sessions, m.focus, coord.Capacity()))
	b.WriteString("\n\n")

	if s, ok := coord.Session(m.focus); ok {
		b.WriteString(m.theme.titleStyle().Render(s.CustomerName()))
		b.WriteString(" " + m.theme.labelStyle(s).Render(s.StatusText) + "\n")
		b.WriteString(m.theme.renderTimeline(s, who.AgentID, m.timelineRows()))
		if s.ErrorText != "" {
			b.WriteString(m.theme.errorStyle().Render("  "+s.ErrorText) + "\n")
		}
		if s.IsSending {
			b.WriteString(m.theme.hintStyle().Render("  sending...") + "\n")
		}
	} else {
		b.WriteString(m.theme.hintStyle().Render("No chat selected. Accept a waiting customer with /accept N.") + "\n")
	}

	b.WriteString("\n")
	if notice := coord.Notice(); notice != "" {
		b.WriteString(m.theme.errorStyle().Render(notice) + "\n")
	}
	if m.problem != "" {
		b.WriteString(m.theme.errorStyle().Render(m.problem) + "\n")
	} else if m.feedback != "" {
		b.WriteString(m.theme.statusStyle().Render(m.feedback) + "\n")
	}

	b.WriteString(m.input.View() + "\n")
	b.WriteString(m.theme.hintStyle().Render("Enter to send, Tab to switch chats, /help for commands, Ctrl+C to quit"))
	return b.String()
}

// timelineRows is how many messages fit under the fixed parts of the screen.
func (m consoleModel) timelineRows() int {
	if m.height == 0 {
		return 20
	}
	return max(m.height-18-len(m.desk.coord.QueuePage().Entries), 5)
}

// waitForChange blocks until the coordinator signals a change.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}
