package ports

import (
	"context"
	"time"

	"github.com/homedash/homedash/internal/domain"
)

// ThrottleDecision is the outcome of a login-throttle check. RetryAfter is
// only meaningful when Allowed is false.
type ThrottleDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// LoginThrottle guards authentication endpoints against brute force with a
// sliding failure window per identifier. Implementations must be safe for
// concurrent use; the in-memory adapter approximates what a shared counter
// store provides in multi-instance deployments.
type LoginThrottle interface {
	Check(ctx context.Context, identifier string) (ThrottleDecision, error)
	RecordFailure(ctx context.Context, identifier string, now time.Time) error
	RecordSuccess(ctx context.Context, identifier string) error
}

// PendingAuthStore holds short-lived OAuth login state between the authorize
// redirect and the callback. Consume must delete-and-return atomically so two
// concurrent callbacks for the same state cannot both succeed.
type PendingAuthStore interface {
	Put(ctx context.Context, pending domain.PendingAuthorization, ttl time.Duration) error
	Consume(ctx context.Context, state string) (*domain.PendingAuthorization, error)
}

// KeyValueCache is a TTL cache capability. Entries expire lazily on read;
// TTL is fixed per cache instance. Prefix invalidation exists so every cache
// entry for a user (or all permission entries) can be dropped when roles or
// overrides change.
type KeyValueCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	InvalidateAll(ctx context.Context) error
	InvalidateByPrefix(ctx context.Context, prefix string) error
}
