package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/homedash/homedash/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type credentialRepository struct {
	db *gorm.DB
}

// Upsert replaces the whole row for (user, kind). Partial updates would risk
// pairing a stale expiry with a fresh blob.
func (r *credentialRepository) Upsert(ctx context.Context, cred domain.Credential) error {
	rec := credentialModel{
		UserID:    cred.UserID,
		Kind:      string(cred.Kind),
		Blob:      cred.Blob,
		ExpiresAt: cred.ExpiresAt,
		CreatedAt: cred.CreatedAt,
		UpdatedAt: cred.UpdatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"blob", "expires_at", "updated_at"}),
		}).
		Create(&rec).Error
}

func (r *credentialRepository) Get(ctx context.Context, userID uuid.UUID, kind domain.CredentialKind) (domain.Credential, error) {
	var rec credentialModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, string(kind)).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Credential{}, domain.ErrNotFound
		}
		return domain.Credential{}, err
	}
	return toDomainCredential(rec), nil
}

func (r *credentialRepository) Delete(ctx context.Context, userID uuid.UUID, kind domain.CredentialKind) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, string(kind)).
		Delete(&credentialModel{}).Error
}
