package version

import (
	"fmt"
	"strings"

	apperrors "calibrator/internal/errors"
)

// AmbiguousComparisonError is returned when at least one side of a string
// comparison is not a valid version. Current and Latest hold the raw inputs.
type AmbiguousComparisonError struct {
	Current string
	Latest  string
	Err     error
}

func (e *AmbiguousComparisonError) Error() string {
	return fmt.Sprintf("cannot compare versions %q and %q: %v", e.Current, e.Latest, e.Err)
}

func (e *AmbiguousComparisonError) Unwrap() error { return e.Err }

// ErrorCode implements errors.Coder.
func (e *AmbiguousComparisonError) ErrorCode() apperrors.Code {
	return apperrors.CodeAmbiguousComparison
}

// TagsDiffer reports whether the raw strings differ once surrounding space
// and a leading 'v' are ignored.
func (e *AmbiguousComparisonError) TagsDiffer() bool {
	return normalizeRaw(e.Current) != normalizeRaw(e.Latest)
}

// CompareStrings parses both strings and orders them.
func CompareStrings(current, latest string) (Ordering, error) {
	cv, err := Parse(current)
	if err != nil {
		return Equal, &AmbiguousComparisonError{Current: current, Latest: latest, Err: err}
	}
	lv, err := Parse(latest)
	if err != nil {
		return Equal, &AmbiguousComparisonError{Current: current, Latest: latest, Err: err}
	}
	return cv.Compare(lv), nil
}

// IsUpdateAvailable reports whether current orders strictly before latest.
// A parse failure on either side is returned as *AmbiguousComparisonError
// together with false.
func IsUpdateAvailable(current, latest string) (bool, error) {
	ord, err := CompareStrings(current, latest)
	if err != nil {
		return false, err
	}
	return ord == Less, nil
}

func normalizeRaw(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "v")
}
