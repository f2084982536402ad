package application

import (
	"time"

	"github.com/google/uuid"
)

type InitiateLoginRequest struct {
	RemoteURL    string
	RedirectPath string
	ClientIP     string
}

type InitiateLoginResponse struct {
	AuthorizeURL string
	State        string
}

type CompleteLoginRequest struct {
	Code     string
	State    string
	ClientIP string
}

type CompleteLoginResponse struct {
	SessionToken string
	ExpiresAt    time.Time
	RedirectPath string
	UserID       uuid.UUID
}

type SessionInfo struct {
	SessionID  uuid.UUID
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
	Current    bool
}

type UserProfile struct {
	UserID       uuid.UUID
	DisplayName  string
	RoleName     string
	PersonEntity string
	RemoteURL    string
	Permissions  []string
}

type PutCredentialRequest struct {
	UserID uuid.UUID
	Kind   string
	Secret string
}

type SetRoleRequest struct {
	UserID   uuid.UUID
	RoleName string
}

type SetOverrideRequest struct {
	UserID  uuid.UUID
	Key     string
	Granted bool
}

type RuntimeConfig struct {
	RemoteURL   string `json:"remote_url"`
	PKCEEnabled bool   `json:"pkce_enabled"`
	SessionTTL  string `json:"session_ttl"`
}
