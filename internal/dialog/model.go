package dialog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"calibrator/internal/orchestrator"
	"calibrator/internal/release"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	minNotesLines = 3
	toastDuration = 2 * time.Second
)

type toastExpiredMsg struct{ id int }

// model is the bubbletea model behind the Terminal decider.
type model struct {
	info    release.ReleaseInfo
	product string
	keys    KeyMap
	backup  bool

	notes    viewport.Model
	render   func(width int) func(string) string
	width    int
	height   int
	ready    bool
	done     bool
	decision orchestrator.Decision

	toast   string
	toastID int

	copyURL func(string) error
	openURL func(string) error
}

func newModel(product string, info release.ReleaseInfo, backup bool, copyURL, openURL func(string) error) model {
	if product == "" {
		product = "the application"
	}
	m := model{
		info:    info,
		product: product,
		keys:    DefaultKeyMap(),
		backup:  backup,
		render:  notesRenderer,
		copyURL: copyURL,
		openURL: openURL,
	}
	m.resize(defaultWidth, defaultHeight)
	return m
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case toastExpiredMsg:
		if msg.id == m.toastID {
			m.toast = ""
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.ForceClose), key.Matches(msg, m.keys.Reject):
			m.done = true
			m.decision = orchestrator.Decision{Choice: orchestrator.Reject, BackupConfigs: m.backup}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Accept):
			m.done = true
			m.decision = orchestrator.Decision{Choice: orchestrator.Accept, BackupConfigs: m.backup}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Backup):
			m.backup = !m.backup
			return m, nil
		case key.Matches(msg, m.keys.Copy):
			return m.withToast(m.copyLink())
		case key.Matches(msg, m.keys.Open):
			return m.withToast(m.openPage())
		}
	}

	var cmd tea.Cmd
	m.notes, cmd = m.notes.Update(msg)
	return m, cmd
}

func (m model) withToast(text string) (tea.Model, tea.Cmd) {
	if text == "" {
		return m, nil
	}
	m.toastID++
	m.toast = text
	id := m.toastID
	return m, tea.Tick(toastDuration, func(time.Time) tea.Msg { return toastExpiredMsg{id: id} })
}

func (m model) copyLink() string {
	if m.info.ReleaseURL == "" || m.copyURL == nil {
		return ""
	}
	if err := m.copyURL(m.info.ReleaseURL); err != nil {
		return "Clipboard unavailable"
	}
	return "Release link copied to clipboard"
}

func (m model) openPage() string {
	if m.info.ReleaseURL == "" || m.openURL == nil {
		return ""
	}
	if err := m.openURL(m.info.ReleaseURL); err != nil {
		return "Could not open a browser"
	}
	return "Opening release page..."
}

// resize lays the notes viewport out inside the frame.
func (m *model) resize(width, height int) {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	m.width, m.height = width, height

	// Frame border (2) and padding (4) around the content.
	inner := max(20, width-6)
	// Header, versions, blank, backup line, blank, footer, frame.
	notesHeight := max(minNotesLines, height-12)

	notes := strings.TrimSpace(m.info.ReleaseNotes)
	if notes == "" {
		notes = "_No release notes were published for this version._"
	}
	rendered := m.render(inner)(notes)

	if !m.ready {
		m.notes = viewport.New(inner, notesHeight)
		m.ready = true
	} else {
		m.notes.Width, m.notes.Height = inner, notesHeight
	}
	m.notes.SetContent(rendered)
}

func (m model) View() string {
	if m.done {
		return ""
	}
	inner := m.notes.Width

	var b strings.Builder
	b.WriteString(styleTitle.Render(ansi.Truncate("A new version of "+m.product+" is available", inner, "…")))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s   %s %s",
		styleDim.Render("Installed:"), m.info.CurrentVersion,
		styleDim.Render("Latest:"), styleVersion.Render(m.info.LatestVersion))
	if !m.info.PublishedAt.IsZero() {
		b.WriteString(styleDim.Render("  (" + m.info.PublishedAt.Format("2006-01-02") + ")"))
	}
	b.WriteString("\n")
	if m.info.Ambiguous {
		b.WriteString(styleWarn.Render(ansi.Truncate("Version numbers could not be compared; offered because the release tag differs.", inner, "…")))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.notes.View())
	b.WriteString("\n\n")

	box := "[ ]"
	if m.backup {
		box = "[x]"
	}
	b.WriteString(box + " Back up my configuration and calibration files")
	b.WriteString("\n\n")
	b.WriteString(m.help())
	if m.toast != "" {
		b.WriteString("\n")
		b.WriteString(styleToast.Render(m.toast))
	}

	return styleFrame.Width(inner + 4).Render(b.String())
}

func (m model) help() string {
	parts := make([]string, 0, len(m.keys.ShortHelp()))
	for _, kb := range m.keys.ShortHelp() {
		h := kb.Help()
		parts = append(parts, styleHelpKey.Render(h.Key)+" "+styleHelpDesc.Render(h.Desc))
	}
	line := strings.Join(parts, styleDim.Render(" • "))
	if lipgloss.Width(line) > m.notes.Width {
		line = ansi.Truncate(line, m.notes.Width, "…")
	}
	return line
}
