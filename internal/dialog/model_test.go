package dialog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"calibrator/internal/orchestrator"
	"calibrator/internal/release"
)

func testInfo() release.ReleaseInfo {
	return release.ReleaseInfo{
		Available:      true,
		CurrentVersion: "1.0.0",
		LatestVersion:  "1.2.0",
		LatestTag:      "v1.2.0",
		ReleaseNotes:   "## Changes\n\n- Faster corner detection\n- Fixed crash on startup",
		ReleaseURL:     "https://github.com/aiigoradam/camera-calibrator/releases/tag/v1.2.0",
		PublishedAt:    time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC),
	}
}

func plainModel(info release.ReleaseInfo, backup bool) model {
	m := newModel("CameraCalibrator", info, backup, nil, nil)
	m.render = func(int) func(string) string { return func(s string) string { return s } }
	m.resize(80, 24)
	return m
}

func press(t *testing.T, m model, keys ...string) (model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "ctrl+c":
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, c := m.Update(msg)
		m, cmd = next.(model), c
	}
	return m, cmd
}

func TestKeysProduceDecisions(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		backup bool
		want   orchestrator.Decision
	}{
		{"u accepts", []string{"u"}, true, orchestrator.Decision{Choice: orchestrator.Accept, BackupConfigs: true}},
		{"enter accepts", []string{"enter"}, false, orchestrator.Decision{Choice: orchestrator.Accept}},
		{"s skips", []string{"s"}, true, orchestrator.Decision{Choice: orchestrator.Reject, BackupConfigs: true}},
		{"esc skips", []string{"esc"}, true, orchestrator.Decision{Choice: orchestrator.Reject, BackupConfigs: true}},
		{"ctrl+c skips", []string{"ctrl+c"}, false, orchestrator.Decision{Choice: orchestrator.Reject}},
		{"toggle then accept", []string{"b", "u"}, true, orchestrator.Decision{Choice: orchestrator.Accept}},
		{"double toggle", []string{"b", "b", "enter"}, true, orchestrator.Decision{Choice: orchestrator.Accept, BackupConfigs: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, cmd := press(t, plainModel(testInfo(), tt.backup), tt.keys...)
			if !m.done {
				t.Fatal("model should be done")
			}
			if m.decision != tt.want {
				t.Errorf("decision = %+v, want %+v", m.decision, tt.want)
			}
			if cmd == nil {
				t.Fatal("expected quit command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Error("expected tea.QuitMsg")
			}
		})
	}
}

func TestViewShowsVersionsAndBackup(t *testing.T) {
	m := plainModel(testInfo(), true)
	view := ansi.Strip(m.View())

	for _, want := range []string{"CameraCalibrator", "1.0.0", "1.2.0", "2026-02-03", "[x] Back up", "Faster corner detection", "update now"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	m, _ = press(t, m, "b")
	if view := ansi.Strip(m.View()); !strings.Contains(view, "[ ] Back up") {
		t.Errorf("toggle not rendered:\n%s", view)
	}
}

func TestViewFlagsAmbiguousOffer(t *testing.T) {
	info := testInfo()
	info.Ambiguous = true
	info.ReleaseNotes = ""
	view := ansi.Strip(plainModel(info, false).View())

	if !strings.Contains(view, "could not be compared") {
		t.Errorf("ambiguous warning missing:\n%s", view)
	}
	if !strings.Contains(view, "No release notes") {
		t.Errorf("empty notes placeholder missing:\n%s", view)
	}
}

func TestCopyAndOpen(t *testing.T) {
	var copied, opened string
	m := plainModel(testInfo(), false)
	m.copyURL = func(s string) error { copied = s; return nil }
	m.openURL = func(s string) error { opened = s; return nil }

	m, cmd := press(t, m, "c")
	if copied != testInfo().ReleaseURL {
		t.Errorf("copied %q", copied)
	}
	if !strings.Contains(m.toast, "copied") || cmd == nil {
		t.Errorf("toast = %q", m.toast)
	}
	if m.done {
		t.Error("copy should not end the dialog")
	}

	m, _ = press(t, m, "o")
	if opened != testInfo().ReleaseURL {
		t.Errorf("opened %q", opened)
	}

	// An expired toast from an earlier id is ignored.
	next, _ := m.Update(toastExpiredMsg{id: m.toastID - 1})
	if next.(model).toast == "" {
		t.Error("stale expiry cleared the current toast")
	}
	next, _ = next.Update(toastExpiredMsg{id: m.toastID})
	if next.(model).toast != "" {
		t.Error("toast should clear on expiry")
	}
}

func TestCopyFailureShowsToast(t *testing.T) {
	m := plainModel(testInfo(), false)
	m.copyURL = func(string) error { return errors.New("no clipboard") }

	m, _ = press(t, m, "c")
	if m.toast != "Clipboard unavailable" {
		t.Errorf("toast = %q", m.toast)
	}
}

func TestWindowResize(t *testing.T) {
	m := plainModel(testInfo(), false)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(model)
	if m.notes.Width != 114 || m.notes.Height != 28 {
		t.Errorf("viewport = %dx%d", m.notes.Width, m.notes.Height)
	}
}

func TestTerminalDecide(t *testing.T) {
	orig := runProgram
	t.Cleanup(func() { runProgram = orig })

	var saved []bool
	term := &Terminal{
		Product:           "CameraCalibrator",
		BackupDefault:     true,
		SaveBackupDefault: func(v bool) error { saved = append(saved, v); return nil },
	}

	runProgram = func(m tea.Model, _ ...tea.ProgramOption) (tea.Model, error) {
		mm, _ := press(t, m.(model), "b", "u")
		return mm, nil
	}
	d, err := term.Decide(context.Background(), testInfo())
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if d.Choice != orchestrator.Accept || d.BackupConfigs {
		t.Errorf("decision = %+v", d)
	}
	if len(saved) != 1 || saved[0] {
		t.Errorf("saved preference = %v, want [false]", saved)
	}

	runProgram = func(m tea.Model, _ ...tea.ProgramOption) (tea.Model, error) {
		return m, errors.New("could not open a new TTY")
	}
	if _, err := term.Decide(context.Background(), testInfo()); err == nil {
		t.Error("program failure should be an error")
	}

	runProgram = func(m tea.Model, _ ...tea.ProgramOption) (tea.Model, error) {
		return m, nil
	}
	if _, err := term.Decide(context.Background(), testInfo()); !errors.Is(err, ErrNoDecision) {
		t.Errorf("err = %v, want ErrNoDecision", err)
	}
}

func TestAuto(t *testing.T) {
	var out strings.Builder
	d, err := Auto{Choice: orchestrator.Accept, Backup: true, Out: &out}.Decide(context.Background(), testInfo())
	if err != nil {
		t.Fatal(err)
	}
	if d.Choice != orchestrator.Accept || !d.BackupConfigs {
		t.Errorf("decision = %+v", d)
	}
	if !strings.Contains(out.String(), "Installing version 1.2.0") {
		t.Errorf("notice = %q", out.String())
	}
}
