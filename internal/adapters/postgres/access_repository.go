package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/homedash/homedash/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type accessRepository struct {
	db *gorm.DB
}

func (r *accessRepository) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	var rec roleModel
	if err := r.db.WithContext(ctx).Where("name = ?", name).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Role{}, domain.ErrNotFound
		}
		return domain.Role{}, err
	}
	return r.hydrateRole(ctx, rec)
}

func (r *accessRepository) GetRoleForUser(ctx context.Context, userID uuid.UUID) (domain.Role, error) {
	var user userModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Role{}, domain.ErrNotFound
		}
		return domain.Role{}, err
	}
	if user.RoleID == nil {
		return domain.Role{}, domain.ErrNotFound
	}
	var rec roleModel
	if err := r.db.WithContext(ctx).Where("role_id = ?", *user.RoleID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Role{}, domain.ErrNotFound
		}
		return domain.Role{}, err
	}
	return r.hydrateRole(ctx, rec)
}

func (r *accessRepository) hydrateRole(ctx context.Context, rec roleModel) (domain.Role, error) {
	var grants []rolePermissionModel
	if err := r.db.WithContext(ctx).
		Where("role_id = ?", rec.RoleID).
		Order("permission_key ASC").
		Find(&grants).Error; err != nil {
		return domain.Role{}, err
	}
	perms := make([]string, 0, len(grants))
	for _, g := range grants {
		perms = append(perms, g.PermissionKey)
	}
	return domain.Role{
		RoleID:      rec.RoleID,
		Name:        rec.Name,
		Permissions: perms,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

func (r *accessRepository) ListOverrides(ctx context.Context, userID uuid.UUID) ([]domain.PermissionOverride, error) {
	var rows []permissionOverrideModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("permission_key ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.PermissionOverride, 0, len(rows))
	for _, item := range rows {
		result = append(result, toDomainOverride(item))
	}
	return result, nil
}

func (r *accessRepository) SetOverride(ctx context.Context, override domain.PermissionOverride) error {
	rec := permissionOverrideModel{
		UserID:        override.UserID,
		PermissionKey: override.Key,
		Granted:       override.Granted,
		UpdatedAt:     override.UpdatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "permission_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"granted", "updated_at"}),
		}).
		Create(&rec).Error
}

func (r *accessRepository) DeleteOverride(ctx context.Context, userID uuid.UUID, key string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND permission_key = ?", userID, key).
		Delete(&permissionOverrideModel{}).Error
}
