package postgres

import (
	"errors"
	"strings"

	"github.com/homedash/homedash/internal/domain"
	"gorm.io/gorm"
)

func toDomainUser(row userModel, roleName string) domain.User {
	return domain.User{
		UserID:       row.UserID,
		ExternalID:   row.ExternalID,
		DisplayName:  row.DisplayName,
		PersonEntity: row.PersonEntity,
		RemoteURL:    row.RemoteURL,
		RoleID:       row.RoleID,
		RoleName:     roleName,
		IsActive:     row.IsActive,
		DisabledAt:   row.DisabledAt,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func toDomainSession(row sessionModel) domain.Session {
	return domain.Session{
		SessionID:  row.SessionID,
		UserID:     row.UserID,
		TokenHash:  row.TokenHash,
		CreatedAt:  row.CreatedAt,
		LastSeenAt: row.LastSeenAt,
		ExpiresAt:  row.ExpiresAt,
	}
}

func toDomainCredential(row credentialModel) domain.Credential {
	return domain.Credential{
		UserID:    row.UserID,
		Kind:      domain.CredentialKind(row.Kind),
		Blob:      row.Blob,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toDomainOverride(row permissionOverrideModel) domain.PermissionOverride {
	return domain.PermissionOverride{
		UserID:    row.UserID,
		Key:       row.PermissionKey,
		Granted:   row.Granted,
		UpdatedAt: row.UpdatedAt,
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate key")
}
