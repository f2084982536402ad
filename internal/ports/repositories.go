package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/homedash/homedash/internal/domain"
)

// UpsertUserParams captures the identity claims resolved after a successful
// code exchange. Upsert keys on the external Home Assistant user id so a
// returning user keeps their internal id, role, and overrides.
type UpsertUserParams struct {
	ExternalID   string
	DisplayName  string
	PersonEntity string
	RemoteURL    string
	Now          time.Time
}

// UserRepository defines persistence operations for dashboard identities.
// Users are soft-disabled, never hard-deleted, while sessions reference them.
type UserRepository interface {
	UpsertByExternalID(ctx context.Context, params UpsertUserParams) (domain.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error)
	SetRole(ctx context.Context, userID uuid.UUID, roleID *uuid.UUID, now time.Time) error
	Disable(ctx context.Context, userID uuid.UUID, now time.Time) error
}

// SessionCreateParams carries everything needed to persist a session record.
// The raw token never reaches the repository; only its hash does.
type SessionCreateParams struct {
	UserID     uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastSeenAt time.Time
}

// SessionRepository manages persistent session lifecycle. Lookup is by token
// hash so a database leak does not yield usable cookies.
type SessionRepository interface {
	Create(ctx context.Context, params SessionCreateParams) (domain.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error)
	TouchLastSeen(ctx context.Context, sessionID uuid.UUID, seenAt time.Time) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteByID(ctx context.Context, sessionID uuid.UUID) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// CredentialRepository stores encrypted third-party secrets, one row per
// (user, kind). Upsert replaces the whole row; rows are never patched.
type CredentialRepository interface {
	Upsert(ctx context.Context, cred domain.Credential) error
	Get(ctx context.Context, userID uuid.UUID, kind domain.CredentialKind) (domain.Credential, error)
	Delete(ctx context.Context, userID uuid.UUID, kind domain.CredentialKind) error
}

// AccessRepository owns roles and per-user permission overrides. It is the
// single source of truth the permission cache is derived from.
type AccessRepository interface {
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)
	GetRoleForUser(ctx context.Context, userID uuid.UUID) (domain.Role, error)
	ListOverrides(ctx context.Context, userID uuid.UUID) ([]domain.PermissionOverride, error)
	SetOverride(ctx context.Context, override domain.PermissionOverride) error
	DeleteOverride(ctx context.Context, userID uuid.UUID, key string) error
}
