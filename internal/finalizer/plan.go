// Package finalizer turns an update into a standalone replacement procedure.
//
// The running executable cannot overwrite itself on most platforms, so the
// swap is written out as a shell (POSIX) or batch (Windows) script and
// started as a detached process just before the updater exits. Every path
// is quoted (POSIX) or checked against a strict character set (batch)
// before it reaches the script.
package finalizer

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"
)

// TemplateVersion is stamped into every generated script. Bump it when the
// step sequence changes.
const TemplateVersion = 1

// FailureLogName is written into the install directory when the copy step fails.
const FailureLogName = "UPDATE_FAILED.txt"

// DefaultWaitLimit bounds how many seconds the script waits for the
// previous process to exit.
const DefaultWaitLimit = 30

// Flavor selects the script dialect.
type Flavor int

const (
	POSIX Flavor = iota
	Batch
)

func (f Flavor) String() string {
	switch f {
	case POSIX:
		return "posix"
	case Batch:
		return "batch"
	default:
		return fmt.Sprintf("Flavor(%d)", int(f))
	}
}

// Ext returns the script file extension for the flavor.
func (f Flavor) Ext() string {
	if f == Batch {
		return ".bat"
	}
	return ".sh"
}

// HostFlavor returns the dialect for the running platform.
func HostFlavor() Flavor {
	if runtime.GOOS == "windows" {
		return Batch
	}
	return POSIX
}

// Plan is the frozen set of parameters for one replacement. Old paths are
// derived from InstallDir, Executable and InternalDir.
type Plan struct {
	Product        string   // display name used in messages
	InstallDir     string   // directory holding the installed executable
	Executable     string   // base name of the installed executable
	InternalDir    string   // base name of the internal data directory
	NewExecutable  string   // staged executable
	NewInternalDir string   // staged internal data directory
	BackupDir      string   // configuration backup, empty when none
	BackupEntries  []string // allowlisted names to restore from BackupDir
	StagingDir     string   // extraction directory, removed on success
	ArchivePath    string   // downloaded archive, removed on success
	ScriptPath     string   // where the script is written
	GracePeriod    time.Duration
	ParentPID      int // process to wait for; <= 0 skips the wait
}

// OldExecutable is the installed executable path.
func (p Plan) OldExecutable() string { return filepath.Join(p.InstallDir, p.Executable) }

// OldInternalDir is the installed internal data directory path.
func (p Plan) OldInternalDir() string { return filepath.Join(p.InstallDir, p.InternalDir) }

// FailureLog is where the script reports a failed copy step.
func (p Plan) FailureLog() string { return filepath.Join(p.InstallDir, FailureLogName) }

// DefaultScriptPath returns the script location inside the install directory.
func DefaultScriptPath(installDir string, flavor Flavor) string {
	return filepath.Join(installDir, "apply_update"+flavor.Ext())
}

var (
	productRe = regexp.MustCompile(`^[A-Za-z0-9 ._-]+$`)
	entryRe   = regexp.MustCompile(`^[A-Za-z0-9 ._-]+(/[A-Za-z0-9 ._-]+)*$`)
)

// Validate checks the plan for missing or unsafe values.
func (p Plan) Validate() error {
	if !productRe.MatchString(p.Product) {
		return fmt.Errorf("%w: product name %q", ErrInvalidPlan, p.Product)
	}
	for _, name := range []struct{ field, value string }{
		{"executable", p.Executable},
		{"internal dir", p.InternalDir},
	} {
		if !entryRe.MatchString(name.value) || strings.Contains(name.value, "/") || containsDotDot(name.value) {
			return fmt.Errorf("%w: %s %q must be a plain file name", ErrInvalidPlan, name.field, name.value)
		}
	}
	paths := []struct{ field, value string }{
		{"install dir", p.InstallDir},
		{"new executable", p.NewExecutable},
		{"new internal dir", p.NewInternalDir},
		{"staging dir", p.StagingDir},
		{"archive", p.ArchivePath},
		{"script", p.ScriptPath},
	}
	if p.BackupDir != "" {
		paths = append(paths, struct{ field, value string }{"backup dir", p.BackupDir})
	}
	for _, path := range paths {
		if path.value == "" || !filepath.IsAbs(path.value) {
			return fmt.Errorf("%w: %s %q must be an absolute path", ErrInvalidPlan, path.field, path.value)
		}
	}
	for _, entry := range p.BackupEntries {
		if !entryRe.MatchString(entry) || containsDotDot(entry) {
			return fmt.Errorf("%w: backup entry %q", ErrInvalidPlan, entry)
		}
	}
	if p.GracePeriod < 0 {
		return fmt.Errorf("%w: negative grace period", ErrInvalidPlan)
	}
	return nil
}

func (p Plan) graceSeconds() int {
	return int(math.Ceil(p.GracePeriod.Seconds()))
}

func containsDotDot(entry string) bool {
	for _, part := range strings.Split(entry, "/") {
		if part == "." || part == ".." {
			return true
		}
	}
	return false
}
