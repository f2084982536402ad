package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/homedash/homedash/internal/domain"
)

// PeekToken returns the stored Home Assistant token pair without side
// effects. The caller sees the pair as persisted, expired or not.
func (s *Service) PeekToken(ctx context.Context, userID uuid.UUID) (domain.TokenPair, error) {
	return s.loadTokenPair(ctx, userID)
}

// EnsureFreshToken returns a token pair with a usable access token,
// refreshing against the remote instance when less than the configured skew
// remains. A refresh the provider rejects deletes the stored credential; the
// user has to log in again. Transient upstream failures are retried once.
func (s *Service) EnsureFreshToken(ctx context.Context, userID uuid.UUID) (domain.TokenPair, error) {
	pair, err := s.loadTokenPair(ctx, userID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	now := s.nowFn()
	if pair.ExpiresAt == nil || pair.ExpiresAt.After(now.Add(s.cfg.RefreshSkew)) {
		return pair, nil
	}
	if pair.RefreshToken == "" {
		return domain.TokenPair{}, domain.ErrCredentialUnavailable
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.TokenPair{}, err
	}

	fresh, err := s.refreshWithRetry(ctx, user.RemoteURL, pair.RefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialUnavailable) {
			// The refresh token is dead; keeping the credential would retry
			// it forever.
			_ = s.credentials.Delete(ctx, userID, domain.CredentialHomeAssistant)
			slog.Default().WarnContext(ctx, "refresh rejected, credential dropped",
				"module", "application",
				"layer", "application",
				"operation", "ensure_fresh_token",
				"outcome", "failure",
				"user_id", userID.String(),
			)
		}
		return domain.TokenPair{}, err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = pair.RefreshToken
	}
	if err := s.storeTokenPair(ctx, userID, fresh, now); err != nil {
		return domain.TokenPair{}, err
	}
	return fresh, nil
}

func (s *Service) refreshWithRetry(ctx context.Context, remoteURL, refreshToken string) (domain.TokenPair, error) {
	pair, err := s.provider.RefreshToken(ctx, remoteURL, s.cfg.PublicBaseURL, refreshToken)
	if err == nil || !errors.Is(err, domain.ErrUpstreamUnavailable) {
		return pair, err
	}
	s.sleepFn(s.cfg.RefreshRetryBackoff)
	return s.provider.RefreshToken(ctx, remoteURL, s.cfg.PublicBaseURL, refreshToken)
}

func (s *Service) loadTokenPair(ctx context.Context, userID uuid.UUID) (domain.TokenPair, error) {
	cred, err := s.credentials.Get(ctx, userID, domain.CredentialHomeAssistant)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.TokenPair{}, domain.ErrCredentialUnavailable
		}
		return domain.TokenPair{}, err
	}
	raw, err := s.cipher.Decrypt(cred.Blob)
	if err != nil {
		return domain.TokenPair{}, domain.ErrCredentialUnavailable
	}
	var pair domain.TokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return domain.TokenPair{}, domain.ErrCredentialUnavailable
	}
	if pair.ExpiresAt == nil && cred.ExpiresAt != nil {
		expiry := *cred.ExpiresAt
		pair.ExpiresAt = &expiry
	}
	return pair, nil
}

// TokenRemaining reports how long the access token stays valid, zero when
// already expired or unknown.
func TokenRemaining(pair domain.TokenPair, now time.Time) time.Duration {
	if pair.ExpiresAt == nil {
		return 0
	}
	remaining := pair.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
