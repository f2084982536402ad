package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the canonical dashboard identity resolved from a Home Assistant
// login. It keeps only auth-relevant state; dashboard preferences live with
// the UI layer.
type User struct {
	UserID       uuid.UUID
	ExternalID   string
	DisplayName  string
	RoleID       *uuid.UUID
	RoleName     string
	PersonEntity string
	RemoteURL    string
	IsActive     bool
	DisabledAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session models a browser login session. Only the SHA-256 hash of the
// opaque token is persisted; the raw token exists in the cookie alone.
type Session struct {
	SessionID  uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

// CredentialKind identifies which third-party secret a credential row holds.
type CredentialKind string

const (
	CredentialHomeAssistant CredentialKind = "home-assistant-token"
	CredentialUniFiProtect  CredentialKind = "unifi-protect-key"
	CredentialUniFiAccess   CredentialKind = "unifi-access-key"
)

// Valid reports whether the kind is one of the supported providers.
func (k CredentialKind) Valid() bool {
	switch k {
	case CredentialHomeAssistant, CredentialUniFiProtect, CredentialUniFiAccess:
		return true
	}
	return false
}

// Credential is the encrypted-at-rest secret for one (user, provider) pair.
// Rows are replaced on refresh, never mutated in place.
type Credential struct {
	UserID    uuid.UUID
	Kind      CredentialKind
	Blob      string
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenPair is the decrypted Home Assistant token set held only in memory.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// PendingAuthorization binds an OAuth state value to the login context that
// initiated it. Consumed exactly once by the callback; expires to bound
// replay exposure.
type PendingAuthorization struct {
	State          string
	RemoteURL      string
	RedirectPath   string
	RequestBaseURL string
	CodeVerifier   string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Role is a named grant of permission keys.
type Role struct {
	RoleID      uuid.UUID
	Name        string
	Permissions []string
	CreatedAt   time.Time
}

// PermissionOverride is a per-user exception layered on top of role grants.
// Overrides strictly dominate: granted=false removes a key the role grants,
// granted=true adds a key the role lacks.
type PermissionOverride struct {
	UserID    uuid.UUID
	Key       string
	Granted   bool
	UpdatedAt time.Time
}

// Identity is the claim set fetched from the remote instance after a
// successful code exchange.
type Identity struct {
	ExternalID   string
	DisplayName  string
	PersonEntity string
}
