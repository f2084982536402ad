package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/homedash/homedash/internal/domain"
	"github.com/homedash/homedash/internal/ports"
	"gorm.io/gorm"
)

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	rec := sessionModel{
		UserID:     params.UserID,
		TokenHash:  params.TokenHash,
		CreatedAt:  params.CreatedAt,
		LastSeenAt: params.LastSeenAt,
		ExpiresAt:  params.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.Session{}, err
	}
	return toDomainSession(rec), nil
}

func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error) {
	var rec sessionModel
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, err
	}
	return toDomainSession(rec), nil
}

func (r *sessionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	var rows []sessionModel
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Session, 0, len(rows))
	for _, item := range rows {
		result = append(result, toDomainSession(item))
	}
	return result, nil
}

func (r *sessionRepository) TouchLastSeen(ctx context.Context, sessionID uuid.UUID, seenAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("session_id = ?", sessionID).
		Update("last_seen_at", seenAt).Error
}

// DeleteByTokenHash is idempotent; logging out an already-gone session is not
// an error.
func (r *sessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	return r.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		Delete(&sessionModel{}).Error
}

func (r *sessionRepository) DeleteByID(ctx context.Context, sessionID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&sessionModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&sessionModel{})
	return res.RowsAffected, res.Error
}
