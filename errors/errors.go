package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// ErrorCode implements Coder.
func (e *AppError) ErrorCode() ErrorCode { return e.Code }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// Coder is implemented by errors that carry an ErrorCode without being an
// AppError (for example the generic cycle error of package dag).
type Coder interface {
	ErrorCode() ErrorCode
}

// CodeOf returns the code of the outermost coded error in err's chain,
// or the empty code when none is present.
func CodeOf(err error) ErrorCode {
	var c Coder
	if stderrors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}

// HasCode reports whether any error in err's tree carries code. Unlike
// CodeOf it looks past outer codes, so a DEPENDENCY_FAILED wrapping a
// TARGET_NOT_FOUND matches both.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if c, ok := err.(Coder); ok && c.ErrorCode() == code {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return HasCode(u.Unwrap(), code)
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if HasCode(inner, code) {
				return true
			}
		}
	}
	return false
}

// --- Constructors ---

// TargetNotFound creates an error for a target missing from its package manifest.
func TargetNotFound(target, buildFile string) *AppError {
	return &AppError{
		Code:    ErrCodeTargetNotFound,
		Message: fmt.Sprintf("The rule %s could not be found in %s.", target, buildFile),
		Details: map[string]any{"target": target, "build_file": buildFile},
	}
}

// InvalidTarget creates an error for a label that cannot be parsed.
func InvalidTarget(label, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidTarget,
		Message: fmt.Sprintf("Invalid build target %q: %s", label, reason),
		Details: map[string]any{"label": label},
	}
}

// Manifest creates an error for a build manifest that failed to load.
func Manifest(packagePath string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeManifest,
		Message: fmt.Sprintf("Unable to load build manifest for package %q.", packagePath),
		Details: map[string]any{"package": packagePath},
		Cause:   cause,
	}
}

// UndeclaredDependency creates an error for a computation that read a key
// outside its declared dependency set.
func UndeclaredDependency(kind string, key any) *AppError {
	return &AppError{
		Code:    ErrCodeUndeclaredDependency,
		Message: fmt.Sprintf("computation %s requested undeclared dependency %v", kind, key),
		Details: map[string]any{"kind": kind},
	}
}

// DependencyFailed creates an error for a computation whose dependency failed.
func DependencyFailed(key, dep any, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeDependencyFailed,
		Message: fmt.Sprintf("%v: dependency %v failed", key, dep),
		Cause:   cause,
	}
}

// UnknownComputation creates an error for a key whose kind has no computation.
func UnknownComputation(kind string) *AppError {
	return &AppError{
		Code:    ErrCodeUnknownComputation,
		Message: fmt.Sprintf("no computation registered for kind %q", kind),
		Details: map[string]any{"kind": kind},
	}
}

// CacheError creates a retryable error for a failed artifact cache operation.
func CacheError(backend string, cause error) *AppError {
	return &AppError{
		Code:      ErrCodeCache,
		Message:   fmt.Sprintf("%s cache request failed", backend),
		Retryable: true,
		Details:   map[string]any{"backend": backend},
		Cause:     cause,
	}
}

// NoHealthyBackend creates an error for a backend pool with nothing accepting requests.
func NoHealthyBackend(pool string) *AppError {
	return &AppError{
		Code:      ErrCodeNoHealthyBackend,
		Message:   fmt.Sprintf("no healthy backend available in %s", pool),
		Retryable: true,
		Details:   map[string]any{"pool": pool},
	}
}

// InvalidConfig creates an error for invalid configuration or arguments.
func InvalidConfig(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code:    ErrCodeInvalidConfig,
		Message: fmt.Sprintf("Invalid configuration: %s", reason),
		Details: details,
	}
}

// Validation creates an error for struct validation failures.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidConfig,
		Message: message,
	}
}

// Internal creates an error for an unexpected internal failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: "An unexpected error occurred.",
		Cause:   cause,
	}
}
