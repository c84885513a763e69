package commands

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	accentColor = lipgloss.Color("#00ff9f")
	dimColor    = lipgloss.Color("#6e7681")

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(1, 3)

	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	dimStyle   = lipgloss.NewStyle().Foreground(dimColor)
)

// renderCodeBanner renders the pairing code box shown when the relay
// issues (or reissues) a code.
func renderCodeBanner(code, url string) string {
	body := fmt.Sprintf("%s  %s\n\n%s\n%s",
		labelStyle.Render("Pairing code:"),
		lipgloss.NewStyle().Bold(true).Render(code),
		dimStyle.Render("Open in browser to start talking:"),
		url)
	return bannerStyle.Render(body)
}
