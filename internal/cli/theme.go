package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/raphaelgruber/agentdesk/internal/queue"
	"github.com/raphaelgruber/agentdesk/internal/session"
)

// Theme holds the color scheme for the console.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
	Accent  lipgloss.Color
	Agent   lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
	Accent:  lipgloss.Color("#FFAF00"), // amber
	Agent:   lipgloss.Color("#AF87FF"), // lavender
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
}

func (t Theme) agentStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Agent).Bold(true)
}

func (t Theme) tabStyle(active bool) lipgloss.Style {
	if active {
		return lipgloss.NewStyle().Foreground(t.Accent).Bold(true).Underline(true)
	}
	return lipgloss.NewStyle().Foreground(t.Status)
}

// labelStyle colors a session status label.
func (t Theme) labelStyle(s session.Session) lipgloss.Style {
	switch {
	case s.Stage == session.StageActive:
		return t.successStyle()
	case s.StatusLabel == session.LabelFailed || s.StatusLabel == session.LabelDisconnected:
		return t.errorStyle()
	default:
		return t.hintStyle()
	}
}

// renderQueue lists the current queue page, numbered for /accept.
func (t Theme) renderQueue(page queue.Page, live bool, now time.Time) string {
	var b strings.Builder

	state := t.hintStyle().Render("polling")
	if live {
		state = t.successStyle().Render("live")
	}
	b.WriteString(t.titleStyle().Render(fmt.Sprintf("Waiting (%d)", page.Total)))
	b.WriteString(" " + state)
	if page.TotalPages > 1 {
		b.WriteString(t.hintStyle().Render(fmt.Sprintf("  page %d/%d", page.Index+1, page.TotalPages)))
	}
	b.WriteString("\n")

	if len(page.Entries) == 0 {
		b.WriteString(t.hintStyle().Render("  No customers waiting.") + "\n")
		return b.String()
	}
	for i, e := range page.Entries {
		line := fmt.Sprintf("  %d. %s", i+1, e.ConversationID)
		if e.Channel != "" {
			line += " [" + e.Channel + "]"
		}
		if e.EnqueuedAt != nil {
			line += t.hintStyle().Render("  " + formatWait(now.Sub(*e.EnqueuedAt)))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// renderTabs shows one numbered tab per session.
func (t Theme) renderTabs(sessions []session.Session, focus string, capacity int) string {
	var b strings.Builder
	b.WriteString(t.titleStyle().Render(fmt.Sprintf("Chats %d/%d", len(sessions), capacity)))
	for i, s := range sessions {
		b.WriteString("  ")
		b.WriteString(t.tabStyle(s.ID == focus).Render(fmt.Sprintf("%d %s", i+1, s.CustomerName())))
		b.WriteString(" " + t.labelStyle(s).Render(s.StatusLabel))
	}
	return b.String()
}

// renderTimeline renders the last limit messages of s.
func (t Theme) renderTimeline(s session.Session, agentID string, limit int) string {
	var b strings.Builder
	msgs := s.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	if len(msgs) == 0 {
		b.WriteString(t.hintStyle().Render("  No messages yet.") + "\n")
	}
	for _, m := range msgs {
		b.WriteString(t.renderMessage(m, agentID) + "\n")
	}
	return b.String()
}

func (t Theme) renderMessage(m models.Message, agentID string) string {
	stamp := t.hintStyle().Render(m.Timestamp.Local().Format("15:04"))
	if m.IsSystem() {
		return fmt.Sprintf("  %s %s", stamp, t.hintStyle().Render("· "+m.Content))
	}
	return fmt.Sprintf("  %s %s %s", stamp, t.senderName(m, agentID), m.Content)
}

func (t Theme) senderName(m models.Message, agentID string) string {
	if m.SenderType() == models.ParticipantAgent {
		if m.Sender.ID == agentID {
			return t.agentStyle().Render("You:")
		}
		return t.agentStyle().Render(m.Sender.Name("Agent") + ":")
	}
	return t.statusStyle().Render(m.Sender.Name("Customer") + ":")
}
