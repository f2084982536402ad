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

type userRepository struct {
	db *gorm.DB
}

// UpsertByExternalID keys on the remote instance's user id. The very first
// user ever created gets the admin role; later first-time logins get viewer.
func (r *userRepository) UpsertByExternalID(ctx context.Context, params ports.UpsertUserParams) (domain.User, error) {
	var result domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec userModel
		err := tx.Where("external_id = ?", params.ExternalID).Take(&rec).Error
		switch {
		case err == nil:
			rec.DisplayName = params.DisplayName
			rec.PersonEntity = params.PersonEntity
			rec.RemoteURL = params.RemoteURL
			rec.UpdatedAt = params.Now
			if err := tx.Save(&rec).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			var total int64
			if err := tx.Model(&userModel{}).Count(&total).Error; err != nil {
				return err
			}
			roleName := "viewer"
			if total == 0 {
				roleName = "admin"
			}
			var role roleModel
			if err := tx.Where("name = ?", roleName).Take(&role).Error; err != nil {
				return err
			}
			rec = userModel{
				ExternalID:   params.ExternalID,
				DisplayName:  params.DisplayName,
				PersonEntity: params.PersonEntity,
				RemoteURL:    params.RemoteURL,
				RoleID:       &role.RoleID,
				IsActive:     true,
				CreatedAt:    params.Now,
				UpdatedAt:    params.Now,
			}
			if err := tx.Create(&rec).Error; err != nil {
				if isUniqueViolation(err) {
					return domain.ErrConflict
				}
				return err
			}
		default:
			return err
		}

		roleName := ""
		if rec.RoleID != nil {
			var role roleModel
			if err := tx.Where("role_id = ?", *rec.RoleID).Take(&role).Error; err == nil {
				roleName = role.Name
			}
		}
		result = toDomainUser(rec, roleName)
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return result, nil
}

func (r *userRepository) GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	roleName := ""
	if rec.RoleID != nil {
		var role roleModel
		if err := r.db.WithContext(ctx).Where("role_id = ?", *rec.RoleID).Take(&role).Error; err == nil {
			roleName = role.Name
		}
	}
	return toDomainUser(rec, roleName), nil
}

func (r *userRepository) SetRole(ctx context.Context, userID uuid.UUID, roleID *uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"role_id": roleID, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepository) Disable(ctx context.Context, userID uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Where("is_active").
		Updates(map[string]any{"is_active": false, "disabled_at": now, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := r.db.WithContext(ctx).Model(&userModel{}).Where("user_id = ?", userID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
	}
	return nil
}
