// Package guard keeps the update check to once per logical application run.
//
// A run can span several process incarnations when the host restarts
// itself, so the guard lives outside the process: an environment flag that
// restarted children inherit, plus a marker file keyed by a run identifier
// for incarnations that do not share the environment.
package guard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"calibrator/internal/debug"
)

// Environment variables shared by every incarnation of a run.
const (
	EnvChecked       = "CALIBRATOR_UPDATE_CHECKED"
	EnvReloaderChild = "CALIBRATOR_RELOADER_CHILD"
	EnvRunID         = "CALIBRATOR_RUN_ID"
)

const markerPrefix = "update-checked-"

// Guard answers whether this run may still check for updates.
type Guard struct {
	// Dir holds the marker files. Empty means DefaultDir().
	Dir string

	getenv func(string) string
	setenv func(string, string) error
}

// New returns a guard storing markers in dir.
func New(dir string) *Guard {
	return &Guard{Dir: dir, getenv: os.Getenv, setenv: os.Setenv}
}

// DefaultDir is $XDG_RUNTIME_DIR/calibrator when set, else a directory under
// the system temp dir.
func DefaultDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return filepath.Join(dir, "calibrator")
	}
	return filepath.Join(os.TempDir(), "calibrator-run")
}

func (g *Guard) dir() string {
	if g.Dir != "" {
		return g.Dir
	}
	return DefaultDir()
}

// RunID returns the identifier of the current logical run, minting one and
// exporting it to the environment when this is the first incarnation.
// Values that are not UUIDs are replaced.
func (g *Guard) RunID() string {
	if id := strings.TrimSpace(g.getenv(EnvRunID)); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
		debug.Warn("ignoring malformed run id", "value", id)
	}
	id := uuid.NewString()
	if err := g.setenv(EnvRunID, id); err != nil {
		debug.Warn("export run id", "err", err)
	}
	return id
}

// MarkerPath is the marker file for the current run.
func (g *Guard) MarkerPath() string {
	return filepath.Join(g.dir(), markerPrefix+g.RunID())
}

// ShouldCheck reports whether the update check has not yet run in this
// logical run.
func (g *Guard) ShouldCheck() bool {
	if isTrue(g.getenv(EnvChecked)) {
		debug.Log("update guard: environment flag set")
		return false
	}
	if isTrue(g.getenv(EnvReloaderChild)) {
		debug.Log("update guard: running as reloader child")
		return false
	}
	if _, err := os.Stat(g.MarkerPath()); err == nil {
		debug.Log("update guard: marker present")
		return false
	}
	return true
}

// MarkChecked records that the check ran. The environment flag is set even
// when the marker cannot be written.
func (g *Guard) MarkChecked() error {
	if err := g.setenv(EnvChecked, "true"); err != nil {
		return fmt.Errorf("set %s: %w", EnvChecked, err)
	}
	path := g.MarkerPath()
	//nolint:gosec // G301: runtime directory only holds empty markers
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create guard directory: %w", err)
	}
	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(path, []byte(stamp), 0o600); err != nil {
		return fmt.Errorf("write guard marker: %w", err)
	}
	return nil
}

// Clear removes the marker of the current run. Called when the logical run
// ends so a stale marker cannot leak into an unrelated run id.
func (g *Guard) Clear() error {
	if strings.TrimSpace(g.getenv(EnvRunID)) == "" {
		return nil
	}
	if err := os.Remove(g.MarkerPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
