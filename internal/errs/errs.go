// Package errs defines the closed set of error kinds the logarc engine
// raises, each carrying a fixed remediation string so callers (and the
// external UI shell) can surface actionable messages without knowing the
// engine's internals.
package errs

import (
	"errors"
	"fmt"
)

// Code is a closed enum of error kinds the core engine raises.
type Code int

const (
	// Unknown is the zero value and should never be used directly.
	Unknown Code = iota
	Validation
	NotFound
	IoError
	CorruptedArchive
	UnsupportedFormat
	DepthLimitExceeded
	QuotaExceeded
	PathTooLong
	ZipBombDetected
	PathTraversalAttempt
	ForbiddenExtension
	ExcessiveCompressionRatio
	PermissionDenied
	DiskSpaceExhausted
	Timeout
	Cancelled
	Internal
)

func (c Code) String() string {
	switch c {
	case Validation:
		return "Validation"
	case NotFound:
		return "NotFound"
	case IoError:
		return "IoError"
	case CorruptedArchive:
		return "CorruptedArchive"
	case UnsupportedFormat:
		return "UnsupportedFormat"
	case DepthLimitExceeded:
		return "DepthLimitExceeded"
	case QuotaExceeded:
		return "QuotaExceeded"
	case PathTooLong:
		return "PathTooLong"
	case ZipBombDetected:
		return "ZipBombDetected"
	case PathTraversalAttempt:
		return "PathTraversalAttempt"
	case ForbiddenExtension:
		return "ForbiddenExtension"
	case ExcessiveCompressionRatio:
		return "ExcessiveCompressionRatio"
	case PermissionDenied:
		return "PermissionDenied"
	case DiskSpaceExhausted:
		return "DiskSpaceExhausted"
	case Timeout:
		return "Timeout"
	case Cancelled:
		return "Cancelled"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// remediation is a fixed lookup table keyed on error code, matching the
// "short human-readable remediation string" requirement.
var remediation = map[Code]string{
	Validation:                "check the request arguments against the documented format",
	NotFound:                  "verify the workspace, hash, or path mapping exists before retrying",
	IoError:                   "check disk health and permissions, then retry the operation",
	CorruptedArchive:          "the archive header could not be parsed; re-export or skip this entry",
	UnsupportedFormat:         "the entry will be stored as an opaque file instead of being expanded",
	DepthLimitExceeded:        "increase extraction.max_depth or accept that nested content was skipped",
	QuotaExceeded:             "increase the relevant size/file budget or reduce the archive's contents",
	PathTooLong:               "the path was rewritten to a shorter mapped form automatically",
	ZipBombDetected:           "the entry's compression ratio exceeded the configured threshold and was rejected",
	PathTraversalAttempt:      "the entry's path escaped the workspace root and was rejected",
	ForbiddenExtension:        "the entry's extension is in the forbidden set and was rejected",
	ExcessiveCompressionRatio: "lower security.compression_ratio_threshold tolerance or inspect the archive manually",
	PermissionDenied:          "check filesystem permissions for the workspace root",
	DiskSpaceExhausted:        "free disk space and retry",
	Timeout:                   "the operation exceeded its deadline; retry with a longer deadline or narrower query",
	Cancelled:                 "the operation was cancelled by the caller",
	Internal:                  "an invariant was violated; please file a bug report with the context below",
}

// Remediation returns the fixed remediation string for a code.
func Remediation(c Code) string {
	if s, ok := remediation[c]; ok {
		return s
	}
	return "no remediation available"
}

// Error is the structured error type every public operation in the engine
// returns on failure.
type Error struct {
	Code        Code
	Message     string
	Path        string
	Remediation string
	Context     map[string]any
	cause       error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an *Error with the remediation string filled from the
// fixed table.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Remediation: Remediation(code)}
}

// Wrap constructs an *Error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Remediation: Remediation(code), cause: cause}
}

// WithPath returns a copy of e with Path set.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// WithContext returns a copy of e with a context key/value attached.
func (e *Error) WithContext(key string, value any) *Error {
	c := *e
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	c.Context = ctx
	return &c
}

// Is reports whether err carries the given code, unwrapping as needed.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
