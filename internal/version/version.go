package version

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "calibrator/internal/errors"
)

// ErrInvalidVersion is wrapped by every ParseError.
var ErrInvalidVersion = errors.New("invalid version")

// Version is an immutable MAJOR.MINOR.PATCH triple with an optional build tag.
type Version struct {
	Major int
	Minor int
	Patch int
	Tag   string
	Raw   string
}

// Ordering is the result of comparing two versions.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	default:
		return fmt.Sprintf("Ordering(%d)", int(o))
	}
}

// versionRegex matches versions with an optional 'v' prefix and build tag.
var versionRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z.-]+))?$`)

// ParseError reports a string that is not a MAJOR.MINOR.PATCH[-TAG] version.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("invalid version: %s", e.Reason)
	}
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrInvalidVersion }

// ErrorCode implements errors.Coder.
func (e *ParseError) ErrorCode() apperrors.Code { return apperrors.CodeParse }

// Parse parses a version string.
// Accepts versions with or without 'v' prefix (e.g., "1.2.3" or "v1.2.3-abc").
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, &ParseError{Reason: "empty version string"}
	}

	matches := versionRegex.FindStringSubmatch(s)
	if matches == nil {
		return Version{}, &ParseError{Input: s, Reason: "want MAJOR.MINOR.PATCH[-TAG]"}
	}

	var parts [3]int
	for i := range parts {
		n, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return Version{}, &ParseError{Input: s, Reason: "component out of range"}
		}
		parts[i] = n
	}

	return Version{
		Major: parts[0],
		Minor: parts[1],
		Patch: parts[2],
		Tag:   matches[4],
		Raw:   s,
	}, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Core returns the numeric triple as "M.m.p".
func (v Version) Core() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// String returns the version without a 'v' prefix, keeping the build tag.
func (v Version) String() string {
	if v.Tag != "" {
		return v.Core() + "-" + v.Tag
	}
	return v.Core()
}

// Compare orders v against other on (major, minor, patch). The build tag is ignored.
func (v Version) Compare(other Version) Ordering {
	if v.Major != other.Major {
		return compareInt(v.Major, other.Major)
	}
	if v.Minor != other.Minor {
		return compareInt(v.Minor, other.Minor)
	}
	return compareInt(v.Patch, other.Patch)
}

// LessThan returns true if v < other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) == Less
}

// Compare orders a against b. See Version.Compare.
func Compare(a, b Version) Ordering {
	return a.Compare(b)
}

func compareInt(a, b int) Ordering {
	if a < b {
		return Less
	}
	if a > b {
		return Greater
	}
	return Equal
}
