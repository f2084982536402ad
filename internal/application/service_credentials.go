package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/homedash/homedash/internal/domain"
)

// PutCredential encrypts and stores a non-OAuth secret such as a UniFi API
// key. The Home Assistant token pair is owned by the login flow and cannot be
// written through this path.
func (s *Service) PutCredential(ctx context.Context, actorID uuid.UUID, req PutCredentialRequest) error {
	if err := s.RequirePermission(ctx, actorID, domain.PermCredentialManage); err != nil {
		return err
	}
	kind := domain.CredentialKind(strings.TrimSpace(req.Kind))
	if !kind.Valid() || kind == domain.CredentialHomeAssistant {
		return fmt.Errorf("%w: unsupported credential kind", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Secret) == "" {
		return fmt.Errorf("%w: secret is required", domain.ErrInvalidInput)
	}
	blob, err := s.cipher.Encrypt([]byte(req.Secret))
	if err != nil {
		return err
	}
	now := s.nowFn()
	return s.credentials.Upsert(ctx, domain.Credential{
		UserID:    req.UserID,
		Kind:      kind,
		Blob:      blob,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// GetCredentialSecret decrypts a stored non-OAuth secret for use by an
// integration proxy. Decryption failures surface as unavailable, not as
// internal errors.
func (s *Service) GetCredentialSecret(ctx context.Context, actorID, userID uuid.UUID, kind domain.CredentialKind) (string, error) {
	if err := s.RequirePermission(ctx, actorID, domain.PermCredentialManage); err != nil {
		return "", err
	}
	if !kind.Valid() || kind == domain.CredentialHomeAssistant {
		return "", fmt.Errorf("%w: unsupported credential kind", domain.ErrInvalidInput)
	}
	cred, err := s.credentials.Get(ctx, userID, kind)
	if err != nil {
		return "", err
	}
	raw, err := s.cipher.Decrypt(cred.Blob)
	if err != nil {
		return "", domain.ErrCredentialUnavailable
	}
	return string(raw), nil
}

// DeleteCredential removes a stored secret. Deleting the Home Assistant pair
// is allowed here; it forces a fresh login next time a token is needed.
func (s *Service) DeleteCredential(ctx context.Context, actorID, userID uuid.UUID, kind domain.CredentialKind) error {
	if err := s.RequirePermission(ctx, actorID, domain.PermCredentialManage); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: unsupported credential kind", domain.ErrInvalidInput)
	}
	return s.credentials.Delete(ctx, userID, kind)
}

const runtimeConfigCacheKey = "config:runtime"

// RuntimeConfigSnapshot serves the public runtime configuration through the
// short-TTL config cache so repeated dashboard loads avoid recomputation.
func (s *Service) RuntimeConfigSnapshot(ctx context.Context) (RuntimeConfig, error) {
	if raw, ok, err := s.configCache.Get(ctx, runtimeConfigCacheKey); err == nil && ok {
		var cached RuntimeConfig
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}
	cfg := RuntimeConfig{
		RemoteURL:   s.cfg.DefaultRemoteURL,
		PKCEEnabled: s.cfg.PKCEEnabled,
		SessionTTL:  s.cfg.SessionTTL.String(),
	}
	if raw, err := json.Marshal(cfg); err == nil {
		_ = s.configCache.Set(ctx, runtimeConfigCacheKey, raw)
	}
	return cfg, nil
}
