package deletion

import "fmt"

// Backend names used in error reporting and result serialization.
const (
	BackendObjectStore = "object_store"
	BackendVectorIndex = "vector_index"
)

// Error type tags surfaced to API clients.
const (
	ErrTypeValidation    = "Validation"
	ErrTypeAuthorization = "Authorization"
	ErrTypeStorage       = "Storage"
	ErrTypeConsistency   = "Consistency"
)

// ValidationError reports a malformed identifier or partition. No backend
// is contacted when one is raised.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed: %s: %v", e.Reason, e.Err)
	}
	return "validation failed: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AuthorizationError reports an environment-policy denial. No backend is
// contacted; the denial is always logged as a security event.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "authorization failed: " + e.Reason
}

// StorageError reports a transport, timeout, or backend-reported failure
// from one of the two storage backends. Timeouts are a flavour of
// StorageError, not a separate code path.
type StorageError struct {
	Backend string
	Op      string
	Timeout bool
	Err     error
}

func (e *StorageError) Error() string {
	kind := "error"
	if e.Timeout {
		kind = "timeout"
	}
	return fmt.Sprintf("%s %s %s: %v", e.Backend, e.Op, kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConsistencyError reports that post-deletion verification found a backend
// still holding the resource after the deletion call reported success.
type ConsistencyError struct {
	Issues []string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("verification found %d consistency issue(s)", len(e.Issues))
}
