package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/homedash/homedash/internal/domain"
)

const permCacheKeyPrefix = "perms:user:"

func permCacheKey(userID uuid.UUID) string {
	return permCacheKeyPrefix + userID.String()
}

// ResolvePermissions computes the effective permission set for a user: role
// grants first, then overrides, which strictly dominate in both directions.
// Results are cached per user; every role or override mutation must call the
// matching invalidation before the next resolve.
func (s *Service) ResolvePermissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	key := permCacheKey(userID)
	if raw, ok, err := s.permCache.Get(ctx, key); err == nil && ok {
		var cached []string
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	effective := map[string]struct{}{}
	role, err := s.access.GetRoleForUser(ctx, userID)
	switch {
	case err == nil:
		for _, perm := range role.Permissions {
			effective[perm] = struct{}{}
		}
	case errors.Is(err, domain.ErrNotFound):
		// No role assigned; overrides alone decide.
	default:
		return nil, err
	}

	overrides, err := s.access.ListOverrides(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, ov := range overrides {
		if ov.Granted {
			effective[ov.Key] = struct{}{}
		} else {
			delete(effective, ov.Key)
		}
	}

	result := make([]string, 0, len(effective))
	for perm := range effective {
		result = append(result, perm)
	}
	sort.Strings(result)

	if raw, err := json.Marshal(result); err == nil {
		if err := s.permCache.Set(ctx, key, raw); err != nil {
			slog.Default().WarnContext(ctx, "permission cache write failed",
				"module", "application",
				"layer", "application",
				"operation", "resolve_permissions",
				"outcome", "degraded",
				"error", err.Error(),
			)
		}
	}
	return result, nil
}

// HasPermission reports whether the user's effective set contains the key.
func (s *Service) HasPermission(ctx context.Context, userID uuid.UUID, key string) (bool, error) {
	perms, err := s.ResolvePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, perm := range perms {
		if perm == key {
			return true, nil
		}
	}
	return false, nil
}

// RequirePermission is HasPermission with ErrForbidden on a miss.
func (s *Service) RequirePermission(ctx context.Context, userID uuid.UUID, key string) error {
	ok, err := s.HasPermission(ctx, userID, key)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

// InvalidatePermissions drops one user's cached permission set.
func (s *Service) InvalidatePermissions(ctx context.Context, userID uuid.UUID) error {
	return s.permCache.Delete(ctx, permCacheKey(userID))
}

// InvalidateAllPermissions drops every cached permission set. Used when a
// role definition changes, which can affect any number of users.
func (s *Service) InvalidateAllPermissions(ctx context.Context) error {
	return s.permCache.InvalidateByPrefix(ctx, permCacheKeyPrefix)
}

// SetUserRole reassigns a user to a named role and invalidates their cached
// permissions before the change can be observed stale.
func (s *Service) SetUserRole(ctx context.Context, actorID uuid.UUID, req SetRoleRequest) error {
	if err := s.RequirePermission(ctx, actorID, domain.PermUsersManage); err != nil {
		return err
	}
	var roleID *uuid.UUID
	if req.RoleName != "" {
		role, err := s.access.GetRoleByName(ctx, req.RoleName)
		if err != nil {
			return err
		}
		roleID = &role.RoleID
	}
	if err := s.users.SetRole(ctx, req.UserID, roleID, s.nowFn()); err != nil {
		return err
	}
	return s.InvalidatePermissions(ctx, req.UserID)
}

// SetOverride upserts a per-user permission exception.
func (s *Service) SetOverride(ctx context.Context, actorID uuid.UUID, req SetOverrideRequest) error {
	if err := s.RequirePermission(ctx, actorID, domain.PermUsersManage); err != nil {
		return err
	}
	if req.Key == "" {
		return domain.ErrInvalidInput
	}
	if err := s.access.SetOverride(ctx, domain.PermissionOverride{
		UserID:    req.UserID,
		Key:       req.Key,
		Granted:   req.Granted,
		UpdatedAt: s.nowFn(),
	}); err != nil {
		return err
	}
	return s.InvalidatePermissions(ctx, req.UserID)
}

// DeleteOverride removes a per-user permission exception.
func (s *Service) DeleteOverride(ctx context.Context, actorID, userID uuid.UUID, key string) error {
	if err := s.RequirePermission(ctx, actorID, domain.PermUsersManage); err != nil {
		return err
	}
	if err := s.access.DeleteOverride(ctx, userID, key); err != nil {
		return err
	}
	return s.InvalidatePermissions(ctx, userID)
}

// DisableUser soft-disables an account and drops its cached permissions.
// Sessions survive in storage but fail validation once the flag clears.
func (s *Service) DisableUser(ctx context.Context, actorID, userID uuid.UUID) error {
	if err := s.RequirePermission(ctx, actorID, domain.PermUsersManage); err != nil {
		return err
	}
	if actorID == userID {
		return domain.ErrInvalidInput
	}
	if err := s.users.Disable(ctx, userID, s.nowFn()); err != nil {
		return err
	}
	return s.InvalidatePermissions(ctx, userID)
}

// Profile assembles the authenticated user's view of themselves including the
// effective permission set.
func (s *Service) Profile(ctx context.Context, user domain.User) (UserProfile, error) {
	perms, err := s.ResolvePermissions(ctx, user.UserID)
	if err != nil {
		return UserProfile{}, err
	}
	return UserProfile{
		UserID:       user.UserID,
		DisplayName:  user.DisplayName,
		RoleName:     user.RoleName,
		PersonEntity: user.PersonEntity,
		RemoteURL:    user.RemoteURL,
		Permissions:  perms,
	}, nil
}
