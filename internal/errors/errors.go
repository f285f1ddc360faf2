package errors

import "errors"

// Code identifies a structured error type used across the updater.
type Code string

const (
	// Generic codes
	CodeUnknown            Code = "unknown"
	CodeConfigurationError Code = "configuration_error"

	// Version handling
	CodeParse               Code = "parse"
	CodeAmbiguousComparison Code = "ambiguous_comparison"
	CodeFormat              Code = "format"

	// Release lookup and download
	CodeNetwork   Code = "network"
	CodeDownload  Code = "download"
	CodeSignature Code = "signature"
	CodeChecksum  Code = "checksum"

	// Staging and apply
	CodeExtract       Code = "extract"
	CodePackageLayout Code = "package_layout"
	CodeFilesystem    Code = "filesystem"
	CodeFinalizer     Code = "finalizer"
	CodeNotPackaged   Code = "not_packaged"
)

// Error represents a structured error with a machine-readable code plus message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// New wraps an error with a code/message.
func New(code Code, msg string, err error) Error {
	return Error{Code: code, Message: msg, Err: err}
}

// Coder is implemented by package-specific error types that carry a code
// without embedding Error.
type Coder interface {
	ErrorCode() Code
}

// CodeOf walks the error chain and returns the first structured code found.
func CodeOf(err error) Code {
	for err != nil {
		switch e := err.(type) {
		case Error:
			return e.Code
		case *Error:
			return e.Code
		case Coder:
			return e.ErrorCode()
		}
		err = errors.Unwrap(err)
	}
	return CodeUnknown
}

// IsCode reports whether the error (or its unwrap chain) matches the provided code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
