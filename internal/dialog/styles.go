package dialog

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
)

var (
	cAccent = lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#5FAFFF"}
	cDim    = lipgloss.AdaptiveColor{Light: "#6C6C6C", Dark: "#8A8A8A"}
	cGood   = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#56D364"}
	cWarn   = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#E3B341"}

	styleFrame = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cAccent).
			Padding(1, 2)

	styleTitle    = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	styleDim      = lipgloss.NewStyle().Foreground(cDim)
	styleVersion  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	styleWarn     = lipgloss.NewStyle().Foreground(cWarn)
	styleHelpKey  = lipgloss.NewStyle().Bold(true)
	styleHelpDesc = lipgloss.NewStyle().Foreground(cDim)
	styleToast    = lipgloss.NewStyle().Italic(true).Foreground(cGood)
)

// notesRenderer renders release notes as markdown at the given width,
// falling back to plain word wrapping when styling is unavailable.
func notesRenderer(width int) func(string) string {
	fallback := func(input string) string {
		return wordwrap.String(input, width)
	}

	if termenv.EnvColorProfile() == termenv.Ascii {
		return fallback
	}
	style := "dark"
	if !termenv.HasDarkBackground() {
		style = "light"
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := renderer.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}
