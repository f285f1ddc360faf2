package version

import (
	"os"
	"strings"
)

// DefaultVersion is assumed when no version marker is installed.
const DefaultVersion = "1.0.0"

// MarkerFileName is the version marker inside the internal data directory.
const MarkerFileName = "version.txt"

// ReadMarker returns the trimmed contents of the version marker at path.
// A missing, unreadable or blank marker yields DefaultVersion. The contents
// are not validated here; comparison reports malformed markers.
func ReadMarker(path string) string {
	//nolint:gosec // G304: Marker path is derived from the install directory
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultVersion
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return DefaultVersion
	}
	return s
}

// WriteMarker records v as the installed version.
func WriteMarker(path string, v Version) error {
	return os.WriteFile(path, []byte(v.String()+"\n"), 0o644) //nolint:gosec // G306: marker is not secret
}
