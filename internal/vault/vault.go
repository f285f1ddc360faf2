// Package vault snapshots the user-owned entries of the installation's
// internal data directory before an update and puts them back afterwards.
//
// Both operations are all-or-nothing over the set of entries: a caller that
// receives a non-nil Backup can rely on every allowlisted entry that existed
// having been captured.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"

	"calibrator/internal/debug"
	apperrors "calibrator/internal/errors"
)

// DefaultPrefix names backup directories.
const DefaultPrefix = "CameraCalibrator_backup"

// copyTree is a function variable to allow overriding in tests.
var copyTree = copy.Copy

// DefaultEntries is the allowlist of user-owned paths inside the internal directory.
var DefaultEntries = []string{"config.yaml", "calibration_files"}

// Vault copies allowlisted entries between the internal data directory and
// a backup directory.
type Vault struct {
	InternalDir string   // live internal data directory
	Entries     []string // allowlisted names relative to InternalDir
	BackupRoot  string   // parent of backup directories; os.TempDir() when empty
	Prefix      string   // backup directory name prefix; DefaultPrefix when empty
}

// Backup is a complete snapshot of the allowlisted entries that existed when
// it was taken.
type Backup struct {
	Dir     string
	entries []string
}

// Entries lists the captured entry names in allowlist order.
func (b *Backup) Entries() []string {
	if b == nil {
		return nil
	}
	return append([]string(nil), b.entries...)
}

// Discard removes the backup directory.
func (b *Backup) Discard() error {
	if b == nil || b.Dir == "" {
		return nil
	}
	return os.RemoveAll(b.Dir)
}

// Open describes an existing backup directory, for example one left behind
// by an earlier run. Only allowlisted entries present in dir are listed.
func (v *Vault) Open(dir string) *Backup {
	b := &Backup{Dir: dir}
	for _, name := range v.Entries {
		if exists(filepath.Join(dir, name)) {
			b.entries = append(b.entries, name)
		}
	}
	return b
}

// Backup copies every allowlisted entry present in the internal directory into
// a fresh backup directory. It returns nil without error when the internal
// directory is missing or holds none of the entries. If any entry fails to
// copy, the partial backup directory is removed and nil is returned together
// with a filesystem error.
func (v *Vault) Backup() (*Backup, error) {
	if err := v.validate(); err != nil {
		return nil, err
	}
	if !isDir(v.InternalDir) {
		debug.Info("backup skipped: internal directory missing", "dir", v.InternalDir)
		return nil, nil
	}

	var present []string
	for _, name := range v.Entries {
		if exists(filepath.Join(v.InternalDir, name)) {
			present = append(present, name)
		}
	}
	if len(present) == 0 {
		debug.Info("backup skipped: nothing to protect", "dir", v.InternalDir)
		return nil, nil
	}

	root := v.BackupRoot
	if root == "" {
		root = os.TempDir()
	}
	//nolint:gosec // G301: backup root needs standard permissions
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.New(apperrors.CodeFilesystem, "create backup root", err)
	}
	dir, err := os.MkdirTemp(root, v.prefix()+"_*")
	if err != nil {
		return nil, apperrors.New(apperrors.CodeFilesystem, "create backup directory", err)
	}

	for _, name := range present {
		if err := copyEntry(filepath.Join(v.InternalDir, name), filepath.Join(dir, name)); err != nil {
			_ = os.RemoveAll(dir)
			debug.Error("backup aborted", "entry", name, "err", err)
			return nil, apperrors.New(apperrors.CodeFilesystem, "back up "+name, err)
		}
	}

	debug.Info("backup complete", "dir", dir, "entries", strings.Join(present, ","))
	return &Backup{Dir: dir, entries: present}, nil
}

// Restore copies the backed-up entries back over the internal directory.
// It reports false when the backup directory is missing or holds no
// allowlisted entries. Entries that were absent at backup time are never
// created. The first failing entry aborts the restore.
func (v *Vault) Restore(b *Backup) (bool, error) {
	if err := v.validate(); err != nil {
		return false, err
	}
	if b == nil || !isDir(b.Dir) {
		return false, nil
	}

	var restorable []string
	for _, name := range v.Entries {
		if exists(filepath.Join(b.Dir, name)) {
			restorable = append(restorable, name)
		}
	}
	if len(restorable) == 0 {
		return false, nil
	}

	//nolint:gosec // G301: internal data directory needs standard permissions
	if err := os.MkdirAll(v.InternalDir, 0o755); err != nil {
		return false, apperrors.New(apperrors.CodeFilesystem, "create internal directory", err)
	}
	for _, name := range restorable {
		if err := copyEntry(filepath.Join(b.Dir, name), filepath.Join(v.InternalDir, name)); err != nil {
			debug.Error("restore aborted", "entry", name, "err", err)
			return false, apperrors.New(apperrors.CodeFilesystem, "restore "+name, err)
		}
	}

	debug.Info("restore complete", "dir", v.InternalDir, "entries", strings.Join(restorable, ","))
	return true, nil
}

func (v *Vault) prefix() string {
	if v.Prefix != "" {
		return v.Prefix
	}
	return DefaultPrefix
}

// validate rejects allowlist entries that could reach outside the directory.
func (v *Vault) validate() error {
	for _, name := range v.Entries {
		clean := filepath.Clean(filepath.FromSlash(name))
		if name == "" || filepath.IsAbs(clean) || clean == "." || clean == ".." ||
			strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return apperrors.New(apperrors.CodeConfigurationError, fmt.Sprintf("invalid backup entry %q", name), nil)
		}
	}
	return nil
}

// copyEntry replaces dst with a copy of src. Directories are copied
// recursively and never merged into an existing destination.
func copyEntry(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear %s: %w", dst, err)
	}
	//nolint:gosec // G301: parent directories need standard permissions
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	return copyTree(src, dst, copy.Options{
		OnSymlink:     func(string) copy.SymlinkAction { return copy.Shallow },
		PreserveTimes: true,
		Sync:          true,
	})
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
