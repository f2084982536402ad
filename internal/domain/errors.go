package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404.
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthenticated covers missing, expired, or revoked sessions.
	// Callers must treat all three identically to avoid probing side channels.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden signals a valid session lacking the required permission key.
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	// ErrInvalidState is returned when an OAuth callback carries a state value
	// with no live pending authorization. Replayed states fail closed here.
	ErrInvalidState = errors.New("invalid or expired authorization state")
	// ErrDecryption hides whether a stored blob was tampered with, encrypted
	// under a rotated key, or malformed. Surfaced as "credential unavailable".
	ErrDecryption = errors.New("credential decryption failed")
	// ErrCredentialUnavailable tells callers to require re-authentication
	// rather than retrying a dead refresh token indefinitely.
	ErrCredentialUnavailable = errors.New("credential unavailable")
	// ErrUpstreamUnavailable marks remote instance failures. Never retried
	// more than once automatically.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrSessionExpired      = errors.New("session expired")
	ErrRateLimited         = errors.New("rate limited")
)

// ThrottledError carries the remaining block duration so the transport layer
// can surface a Retry-After value. errors.Is matches ErrRateLimited.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *ThrottledError) Is(target error) bool { return target == ErrRateLimited }
