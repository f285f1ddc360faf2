package release

import "time"

// ReleaseInfo is the flat view of a release lookup consumed by the
// orchestrator and the decision dialog.
type ReleaseInfo struct {
	Available      bool
	CurrentVersion string
	LatestVersion  string // tag with the leading 'v' removed
	LatestTag      string // tag exactly as published
	DownloadURL    string // set whenever Available is true
	AssetName      string
	SignatureURL   string // detached minisign signature, when published
	ChecksumURL    string // SHA256 checksums file, when published
	ReleaseNotes   string
	ReleaseURL     string
	PublishedAt    time.Time
	// Ambiguous is set when the versions could not be parsed and the
	// update was inferred from differing tags plus an installable asset.
	Ambiguous bool
	Err       error
}

// Result is the outcome of a release lookup. The concrete type is one of
// NoUpdate, UpdateAvailable or CheckFailed.
type Result interface {
	result()
}

// NoUpdateReason explains why a lookup produced no actionable update.
type NoUpdateReason int

const (
	// ReasonUpToDate means the installed version is not older than the latest.
	ReasonUpToDate NoUpdateReason = iota
	// ReasonNoAsset means a newer release exists but has no installable asset.
	ReasonNoAsset
	// ReasonAmbiguous means the versions could not be compared and the
	// differing-tags fallback did not apply.
	ReasonAmbiguous
)

func (r NoUpdateReason) String() string {
	switch r {
	case ReasonUpToDate:
		return "up to date"
	case ReasonNoAsset:
		return "no installable asset"
	case ReasonAmbiguous:
		return "ambiguous version comparison"
	default:
		return "unknown"
	}
}

// NoUpdate reports a successful lookup with nothing to install.
type NoUpdate struct {
	Current string
	Latest  string
	Reason  NoUpdateReason
	// Release carries the lookup details for display; Available is false.
	Release ReleaseInfo
}

// UpdateAvailable reports a newer release with an installable asset.
type UpdateAvailable struct {
	Info ReleaseInfo
}

// CheckFailed reports a lookup that could not be completed.
type CheckFailed struct {
	Current string
	Err     error
}

func (NoUpdate) result()        {}
func (UpdateAvailable) result() {}
func (CheckFailed) result()     {}

// Error implements error so a CheckFailed can be logged or wrapped directly.
func (c CheckFailed) Error() string {
	if c.Err == nil {
		return "release check failed"
	}
	return "release check failed: " + c.Err.Error()
}

// Unwrap returns the underlying failure.
func (c CheckFailed) Unwrap() error { return c.Err }

// Flatten converts a Result into the flat ReleaseInfo record.
func Flatten(r Result) ReleaseInfo {
	switch v := r.(type) {
	case UpdateAvailable:
		info := v.Info
		info.Available = true
		return info
	case NoUpdate:
		info := v.Release
		info.Available = false
		info.DownloadURL = ""
		if info.CurrentVersion == "" {
			info.CurrentVersion = v.Current
		}
		if info.LatestVersion == "" {
			info.LatestVersion = v.Latest
		}
		return info
	case CheckFailed:
		return ReleaseInfo{CurrentVersion: v.Current, Err: v.Err}
	default:
		return ReleaseInfo{}
	}
}
