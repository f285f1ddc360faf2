// Package dialog asks the user whether to install an available update.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/skratchdot/open-golang/open"

	"calibrator/internal/debug"
	"calibrator/internal/orchestrator"
	"calibrator/internal/release"
)

// ErrNoDecision is returned when the dialog ends without an answer.
var ErrNoDecision = errors.New("update dialog closed without a decision")

// Function variables to allow overriding in tests.
var (
	copyToClipboard = clipboard.WriteAll
	openBrowser     = open.Run
	runProgram      = func(m tea.Model, opts ...tea.ProgramOption) (tea.Model, error) {
		return tea.NewProgram(m, opts...).Run()
	}
)

// Terminal is an interactive Decider drawn in the terminal.
type Terminal struct {
	Product       string
	BackupDefault bool
	Input         io.Reader // defaults to the program's stdin
	Output        io.Writer // defaults to the program's stdout

	// SaveBackupDefault, when set, persists the backup checkbox whenever
	// the user changes it from BackupDefault.
	SaveBackupDefault func(bool) error
}

// Decide shows the dialog and blocks until the user answers.
func (t *Terminal) Decide(ctx context.Context, info release.ReleaseInfo) (orchestrator.Decision, error) {
	m := newModel(t.Product, info, t.BackupDefault, copyToClipboard, openBrowser)

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if t.Input != nil {
		opts = append(opts, tea.WithInput(t.Input))
	}
	if t.Output != nil {
		opts = append(opts, tea.WithOutput(t.Output))
	}

	final, err := runProgram(m, opts...)
	if err != nil {
		return orchestrator.Decision{}, fmt.Errorf("run update dialog: %w", err)
	}
	fm, ok := final.(model)
	if !ok || !fm.done {
		return orchestrator.Decision{}, ErrNoDecision
	}

	if fm.decision.BackupConfigs != t.BackupDefault && t.SaveBackupDefault != nil {
		if err := t.SaveBackupDefault(fm.decision.BackupConfigs); err != nil {
			debug.Warn("could not save backup preference", "err", err)
		}
	}
	debug.Info("update decision", "choice", fm.decision.Choice, "backup", fm.decision.BackupConfigs)
	return fm.decision, nil
}

// Auto answers without asking. It is used for --yes and for sessions
// without a terminal.
type Auto struct {
	Choice orchestrator.Choice
	Backup bool
	Out    io.Writer // optional notice stream
}

// Decide returns the fixed answer.
func (a Auto) Decide(_ context.Context, info release.ReleaseInfo) (orchestrator.Decision, error) {
	if a.Out != nil {
		if a.Choice == orchestrator.Accept {
			_, _ = fmt.Fprintf(a.Out, "[Updater] Installing version %s.\n", info.LatestVersion)
		} else {
			_, _ = fmt.Fprintf(a.Out, "[Updater] Version %s is available: %s\n", info.LatestVersion, info.ReleaseURL)
		}
	}
	return orchestrator.Decision{Choice: a.Choice, BackupConfigs: a.Backup}, nil
}
