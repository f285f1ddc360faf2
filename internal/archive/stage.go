package archive

import (
	"os"
	"path/filepath"
)

// Layout names what a release package must contain.
type Layout struct {
	PackageDir  string // single top-level directory, e.g. "CameraCalibrator"
	Executable  string // executable inside PackageDir
	InternalDir string // internal data directory inside PackageDir
}

// StagedPackage is an extracted, layout-checked release package.
type StagedPackage struct {
	Root        string // staging directory the archive was extracted into
	PackageDir  string
	Executable  string
	InternalDir string
}

// Stage checks that stagingDir holds the package described by layout.
// Nothing outside stagingDir is touched. Other top-level entries (such as
// __MACOSX folders) are ignored.
func Stage(stagingDir string, layout Layout) (StagedPackage, error) {
	pkgDir := filepath.Join(stagingDir, layout.PackageDir)
	if !isDir(pkgDir) {
		return StagedPackage{}, &PackageLayoutError{StagingDir: stagingDir, Missing: layout.PackageDir + "/"}
	}

	exe := filepath.Join(pkgDir, layout.Executable)
	if info, err := os.Stat(exe); err != nil || !info.Mode().IsRegular() {
		return StagedPackage{}, &PackageLayoutError{StagingDir: stagingDir, Missing: filepath.ToSlash(filepath.Join(layout.PackageDir, layout.Executable))}
	}

	internal := filepath.Join(pkgDir, layout.InternalDir)
	if !isDir(internal) {
		return StagedPackage{}, &PackageLayoutError{StagingDir: stagingDir, Missing: filepath.ToSlash(filepath.Join(layout.PackageDir, layout.InternalDir)) + "/"}
	}

	return StagedPackage{
		Root:        stagingDir,
		PackageDir:  pkgDir,
		Executable:  exe,
		InternalDir: internal,
	}, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
