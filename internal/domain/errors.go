package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrItemNotFound indicates the requested listing row does not exist
	ErrItemNotFound = errors.New("listing not found")

	// ErrServerOffline indicates the backend is unreachable (no network or timeout)
	ErrServerOffline = errors.New("backend is unreachable")

	// ErrAuthFailed indicates the session token was rejected
	ErrAuthFailed = errors.New("authentication token is invalid")

	// ErrServer indicates a 5xx response or a body that could not be decoded
	ErrServer = errors.New("backend error")

	// ErrConflict indicates the backend already holds the requested state
	ErrConflict = errors.New("operation already applied")

	// ErrNoAd indicates no ad content could be delivered for a slot
	ErrNoAd = errors.New("no ad available")

	// ErrCacheCleared indicates the ad cache was torn down while waiting
	ErrCacheCleared = errors.New("ad cache cleared")
)

// IsRetryable reports whether an operation failing with err may succeed later
// without user or session intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrConflict) {
		return false
	}
	return errors.Is(err, ErrServerOffline) || errors.Is(err, ErrServer)
}
