package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	primaryColor = lipgloss.Color("#7D56F4")
	dimColor     = lipgloss.Color("#6272A4")

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	percentStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	containerStyle = lipgloss.NewStyle().
			Padding(0, 2)
)

// downloadModel is the bubbletea model for the download bar.
type downloadModel struct {
	progress progress.Model
	percent  float64
	done     bool

	updates chan downloadUpdate
}

type downloadUpdate struct {
	percent float64
	done    bool
}

type downloadMsg downloadUpdate

func newDownloadModel() *downloadModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)
	return &downloadModel{
		progress: p,
		updates:  make(chan downloadUpdate, 16),
	}
}

func (m *downloadModel) Init() tea.Cmd {
	return m.waitForUpdate()
}

func (m *downloadModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return downloadMsg(<-m.updates)
	}
}

func (m *downloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case downloadMsg:
		m.percent = msg.percent
		if msg.done {
			m.done = true
			return m, tea.Quit
		}
		return m, tea.Batch(m.progress.SetPercent(m.percent), m.waitForUpdate())

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *downloadModel) View() string {
	if m.done {
		return ""
	}
	line := labelStyle.Render("Downloading update ") +
		m.progress.View() +
		percentStyle.Render(fmt.Sprintf(" %3.0f%%", m.percent*100))
	return containerStyle.Render(line)
}

// send drops updates when the program falls behind; only the latest
// fraction matters.
func (m *downloadModel) send(u downloadUpdate) {
	select {
	case m.updates <- u:
	default:
	}
}

// downloadProgress shows a progress bar on the first report and removes
// it when the download completes or Stop is called.
type downloadProgress struct {
	w io.Writer

	mu      sync.Mutex
	program *tea.Program
	model   *downloadModel
	done    chan struct{}
	stopped bool
}

func newDownloadProgress(w io.Writer) *downloadProgress {
	return &downloadProgress{w: w}
}

// Report implements archive.ProgressFunc.
func (d *downloadProgress) Report(fraction float64) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.program == nil {
		d.model = newDownloadModel()
		d.program = tea.NewProgram(
			d.model,
			tea.WithOutput(d.w),
			tea.WithInput(nil),
			tea.WithoutSignalHandler(),
		)
		d.done = make(chan struct{})
		go func(p *tea.Program, done chan struct{}) {
			_, _ = p.Run()
			close(done)
		}(d.program, d.done)
	}
	d.model.send(downloadUpdate{percent: fraction})
	d.mu.Unlock()

	if fraction >= 1 {
		d.Stop()
	}
}

// Stop removes the bar. Safe to call more than once.
func (d *downloadProgress) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	program, model, done := d.program, d.model, d.done
	d.mu.Unlock()

	if program == nil {
		return
	}
	// Blocking send so the final state is not dropped.
	select {
	case model.updates <- downloadUpdate{percent: 1, done: true}:
	case <-done:
	case <-time.After(200 * time.Millisecond):
	}
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		program.Kill()
	}
}
