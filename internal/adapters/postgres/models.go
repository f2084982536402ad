package postgres

import (
	"time"

	"github.com/google/uuid"
)

type roleModel struct {
	RoleID    uuid.UUID `gorm:"column:role_id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (roleModel) TableName() string { return "roles" }

type rolePermissionModel struct {
	RoleID        uuid.UUID `gorm:"column:role_id;type:uuid;primaryKey"`
	PermissionKey string    `gorm:"column:permission_key;primaryKey"`
}

func (rolePermissionModel) TableName() string { return "role_permissions" }

type userModel struct {
	UserID       uuid.UUID  `gorm:"column:user_id;type:uuid;default:gen_random_uuid();primaryKey"`
	ExternalID   string     `gorm:"column:external_id"`
	DisplayName  string     `gorm:"column:display_name"`
	PersonEntity string     `gorm:"column:person_entity"`
	RemoteURL    string     `gorm:"column:remote_url"`
	RoleID       *uuid.UUID `gorm:"column:role_id"`
	IsActive     bool       `gorm:"column:is_active"`
	DisabledAt   *time.Time `gorm:"column:disabled_at"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "users" }

type sessionModel struct {
	SessionID  uuid.UUID `gorm:"column:session_id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id"`
	TokenHash  string    `gorm:"column:token_hash"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	ExpiresAt  time.Time `gorm:"column:expires_at"`
}

func (sessionModel) TableName() string { return "sessions" }

type credentialModel struct {
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	Kind      string     `gorm:"column:kind;primaryKey"`
	Blob      string     `gorm:"column:blob"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (credentialModel) TableName() string { return "credentials" }

type permissionOverrideModel struct {
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	PermissionKey string    `gorm:"column:permission_key;primaryKey"`
	Granted       bool      `gorm:"column:granted"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (permissionOverrideModel) TableName() string { return "permission_overrides" }
