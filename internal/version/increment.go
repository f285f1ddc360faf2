package version

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "calibrator/internal/errors"
)

// FormatError reports input to Increment that is not exactly three
// dot-separated non-negative integers.
type FormatError struct {
	Input string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid version format %q: expected MAJOR.MINOR.PATCH", e.Input)
}

// ErrorCode implements errors.Coder.
func (e *FormatError) ErrorCode() apperrors.Code { return apperrors.CodeFormat }

// Increment bumps a MAJOR.MINOR.PATCH triple odometer-style: patch goes up by
// one, a patch above 9 resets to 0 and carries into minor, a minor above 9
// resets to 0 and carries into major. Major has no ceiling.
func Increment(s string) (string, error) {
	fields := strings.Split(s, ".")
	if len(fields) != 3 {
		return "", &FormatError{Input: s}
	}

	var n [3]int
	for i, f := range fields {
		if f == "" || strings.Trim(f, "0123456789") != "" {
			return "", &FormatError{Input: s}
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return "", &FormatError{Input: s}
		}
		n[i] = v
	}
	major, minor, patch := n[0], n[1], n[2]

	patch++
	if patch > 9 {
		patch = 0
		minor++
		if minor > 9 {
			minor = 0
			major++
		}
	}
	return fmt.Sprintf("%d.%d.%d", major, minor, patch), nil
}
