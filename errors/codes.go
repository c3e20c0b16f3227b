package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Graph structure errors
const (
	// ErrCodeCycle indicates a dependency cycle between graph nodes.
	ErrCodeCycle ErrorCode = "CYCLE_DETECTED"
	// ErrCodeTargetNotFound indicates a requested target has no definition in its manifest.
	ErrCodeTargetNotFound ErrorCode = "TARGET_NOT_FOUND"
	// ErrCodeInvalidTarget indicates a malformed target label.
	ErrCodeInvalidTarget ErrorCode = "INVALID_TARGET"
	// ErrCodeManifest indicates a build manifest could not be loaded or decoded.
	ErrCodeManifest ErrorCode = "MANIFEST_ERROR"
)

// Computation contract errors
const (
	// ErrCodeUndeclaredDependency indicates a computation read a dependency it never declared.
	ErrCodeUndeclaredDependency ErrorCode = "UNDECLARED_DEPENDENCY"
	// ErrCodeDependencyFailed indicates a dependency of a computation finalized with an error.
	ErrCodeDependencyFailed ErrorCode = "DEPENDENCY_FAILED"
	// ErrCodeUnknownComputation indicates no computation is registered for a key kind.
	ErrCodeUnknownComputation ErrorCode = "UNKNOWN_COMPUTATION"
)

// Artifact cache errors (retryable)
const (
	// ErrCodeCache indicates a transient artifact cache failure.
	ErrCodeCache ErrorCode = "CACHE_ERROR"
	// ErrCodeNoHealthyBackend indicates no cache backend is currently accepting requests.
	ErrCodeNoHealthyBackend ErrorCode = "NO_HEALTHY_BACKEND"
)

// Setup and internal errors
const (
	// ErrCodeInvalidConfig indicates invalid configuration or constructor arguments.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeCache:            true,
	ErrCodeNoHealthyBackend: true,
	ErrCodeInternal:         false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
