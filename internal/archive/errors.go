package archive

import (
	"errors"
	"fmt"

	apperrors "calibrator/internal/errors"
)

// Error variables for archive-specific errors.
var (
	ErrDownloadFailed   = errors.New("download failed")
	ErrExtractionFailed = errors.New("extraction failed")
	ErrPackageLayout    = errors.New("unexpected package layout")
	ErrSignature        = errors.New("signature verification failed")
	ErrChecksumMismatch = errors.New("checksum verification failed")
)

// DownloadError reports a failed asset download. Path names the partial
// file when one was written; it must not be installed.
type DownloadError struct {
	URL    string
	Path   string
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%v: %s: status %d", ErrDownloadFailed, e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%v: %s: %v", ErrDownloadFailed, e.URL, e.Err)
	default:
		return fmt.Sprintf("%v: %s", ErrDownloadFailed, e.URL)
	}
}

func (e *DownloadError) Unwrap() error { return e.Err }

func (e *DownloadError) Is(target error) bool { return target == ErrDownloadFailed }

// ErrorCode implements errors.Coder.
func (e *DownloadError) ErrorCode() apperrors.Code { return apperrors.CodeDownload }

// ExtractError reports a corrupt, unsafe or oversized archive. The
// destination directory is left in an unknown state.
type ExtractError struct {
	Archive string
	Entry   string
	Err     error
}

func (e *ExtractError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("%v: %s: entry %q: %v", ErrExtractionFailed, e.Archive, e.Entry, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrExtractionFailed, e.Archive, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

func (e *ExtractError) Is(target error) bool { return target == ErrExtractionFailed }

// ErrorCode implements errors.Coder.
func (e *ExtractError) ErrorCode() apperrors.Code { return apperrors.CodeExtract }

// PackageLayoutError reports a staging directory that does not hold the
// expected package directory, executable or internal data directory.
type PackageLayoutError struct {
	StagingDir string
	Missing    string
}

func (e *PackageLayoutError) Error() string {
	return fmt.Sprintf("%v: %s not found in %s", ErrPackageLayout, e.Missing, e.StagingDir)
}

func (e *PackageLayoutError) Is(target error) bool { return target == ErrPackageLayout }

// ErrorCode implements errors.Coder.
func (e *PackageLayoutError) ErrorCode() apperrors.Code { return apperrors.CodePackageLayout }

// SignatureError reports an archive whose minisign signature is missing,
// unreadable or does not match.
type SignatureError struct {
	Archive string
	Reason  string
	Err     error
}

func (e *SignatureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %s: %v", ErrSignature, e.Archive, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s: %s", ErrSignature, e.Archive, e.Reason)
}

func (e *SignatureError) Unwrap() error { return e.Err }

func (e *SignatureError) Is(target error) bool { return target == ErrSignature }

// ErrorCode implements errors.Coder.
func (e *SignatureError) ErrorCode() apperrors.Code { return apperrors.CodeSignature }

// ChecksumError reports an archive whose SHA-256 digest could not be
// confirmed against the published checksums.
type ChecksumError struct {
	Archive  string
	Expected string
	Actual   string
	Err      error
}

func (e *ChecksumError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%v: %s: %v", ErrChecksumMismatch, e.Archive, e.Err)
	case e.Actual != "":
		return fmt.Sprintf("%v: %s: expected %s, got %s", ErrChecksumMismatch, e.Archive, e.Expected, e.Actual)
	default:
		return fmt.Sprintf("%v: %s", ErrChecksumMismatch, e.Archive)
	}
}

func (e *ChecksumError) Unwrap() error { return e.Err }

func (e *ChecksumError) Is(target error) bool { return target == ErrChecksumMismatch }

// ErrorCode implements errors.Coder.
func (e *ChecksumError) ErrorCode() apperrors.Code { return apperrors.CodeChecksum }
