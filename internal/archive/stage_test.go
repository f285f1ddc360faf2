package archive

import (
	"errors"
	"os"
	"testing"

	apperrors "calibrator/internal/errors"
)

var testLayout = Layout{
	PackageDir:  "CameraCalibrator",
	Executable:  "CameraCalibrator.exe",
	InternalDir: "_internal",
}

func TestStage(t *testing.T) {
	dir := t.TempDir()
	archivePath := join(dir, "pkg.zip")
	writeZip(t, archivePath, append(packageEntries(), entry{name: "__MACOSX/junk", body: "x"}))
	staging := join(dir, "staging")
	if err := Extract(archivePath, staging); err != nil {
		t.Fatal(err)
	}

	pkg, err := Stage(staging, testLayout)
	if err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	if pkg.Executable != join(staging, "CameraCalibrator", "CameraCalibrator.exe") {
		t.Errorf("Executable = %q", pkg.Executable)
	}
	if pkg.InternalDir != join(staging, "CameraCalibrator", "_internal") {
		t.Errorf("InternalDir = %q", pkg.InternalDir)
	}
	if pkg.Root != staging {
		t.Errorf("Root = %q", pkg.Root)
	}
}

func TestStageLayoutErrors(t *testing.T) {
	tests := []struct {
		name        string
		entries     []entry
		wantMissing string
	}{
		{
			name:        "flat archive",
			entries:     []entry{{name: "CameraCalibrator.exe", body: "x"}, {name: "_internal/version.txt", body: "2.0.0"}},
			wantMissing: "CameraCalibrator/",
		},
		{
			name:        "missing executable",
			entries:     []entry{{name: "CameraCalibrator/_internal/version.txt", body: "2.0.0"}},
			wantMissing: "CameraCalibrator/CameraCalibrator.exe",
		},
		{
			name:        "missing internal dir",
			entries:     []entry{{name: "CameraCalibrator/CameraCalibrator.exe", body: "x"}},
			wantMissing: "CameraCalibrator/_internal/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			archivePath := join(dir, "pkg.zip")
			writeZip(t, archivePath, tt.entries)
			staging := join(dir, "staging")
			if err := Extract(archivePath, staging); err != nil {
				t.Fatal(err)
			}

			_, err := Stage(staging, testLayout)
			if !errors.Is(err, ErrPackageLayout) {
				t.Fatalf("Stage() error = %v, want ErrPackageLayout", err)
			}
			var lerr *PackageLayoutError
			if !errors.As(err, &lerr) {
				t.Fatalf("error %T is not *PackageLayoutError", err)
			}
			if lerr.Missing != tt.wantMissing {
				t.Errorf("Missing = %q, want %q", lerr.Missing, tt.wantMissing)
			}
			if !apperrors.IsCode(err, apperrors.CodePackageLayout) {
				t.Errorf("code = %q", apperrors.CodeOf(err))
			}
		})
	}
}

func TestStageEmptyDirectory(t *testing.T) {
	staging := t.TempDir()
	if _, err := Stage(staging, testLayout); !errors.Is(err, ErrPackageLayout) {
		t.Fatalf("Stage() error = %v, want ErrPackageLayout", err)
	}
	entries, err := os.ReadDir(staging)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Stage should not write into the staging dir, found %d entries", len(entries))
	}
}
