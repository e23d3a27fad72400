package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"project_handoff/internal/entities"
	"project_handoff/internal/timeline"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	speakerStyles = map[entities.Speaker]lipgloss.Style{
		entities.SpeakerUser:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		entities.SpeakerBot:   lipgloss.NewStyle().Foreground(lipgloss.Color("135")).Bold(true),
		entities.SpeakerAdmin: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	}
)

func renderOwnership(s entities.OwnershipState) string {
	owner := "bot"
	if s.AdminTakeover {
		owner = "admin"
		if by := s.HeldBy(); by != "" {
			owner += " " + by
		}
	}
	bot := "on"
	if !s.BotEnabled {
		bot = "off"
	}
	return metaStyle.Render(fmt.Sprintf("owner: %s | bot replies: %s", owner, bot))
}

func renderEntry(e timeline.Entry) string {
	who := string(e.Speaker)
	if e.Speaker == entities.SpeakerAdmin && e.AdminID != "" {
		who += " (" + e.AdminID + ")"
	}
	var b strings.Builder
	b.WriteString(timestampStyle.Render(e.Timestamp.Local().Format("15:04:05")))
	b.WriteString(" ")
	b.WriteString(speakerStyles[e.Speaker].Render(who))
	b.WriteString(" ")
	b.WriteString(e.Text)
	if e.Pending {
		b.WriteString(" " + pendingStyle.Render("sending..."))
	}
	if e.Undelivered {
		b.WriteString(" " + errorStyle.Render("not delivered"))
	}
	return b.String()
}

// renderView renders a conversation. tail > 0 keeps only the newest entries.
func renderView(userID string, state entities.OwnershipState, entries []timeline.Entry, tail int) string {
	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	lines := []string{headerStyle.Render(userID), renderOwnership(state)}
	if len(entries) == 0 {
		lines = append(lines, metaStyle.Render("no messages yet"))
	}
	for _, e := range entries {
		lines = append(lines, renderEntry(e))
	}
	return strings.Join(lines, "\n")
}
