// Package version parses and orders the application's version identifiers.
//
// Versions have the form MAJOR.MINOR.PATCH with an optional opaque build tag
// (MAJOR.MINOR.PATCH-TAG). Ordering looks at the numeric triple only, so
// "1.0.1" and "1.0.1-68bc3ee" compare equal.
//
// Comparing strings that do not parse never defaults to "update available":
// CompareStrings and IsUpdateAvailable report an *AmbiguousComparisonError
// and leave the fallback policy to the caller.
//
// The package also reads the installed version marker and implements the
// odometer-style Increment used by release tooling.
package version
