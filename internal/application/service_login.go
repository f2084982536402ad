package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/homedash/homedash/internal/domain"
	"github.com/homedash/homedash/internal/ports"
)

// InitiateLogin validates the remote instance URL, generates state and PKCE
// material, parks them in the pending-auth store, and returns the authorize
// URL to redirect the browser to.
func (s *Service) InitiateLogin(ctx context.Context, req InitiateLoginRequest) (InitiateLoginResponse, error) {
	if err := s.checkThrottle(ctx, req.ClientIP); err != nil {
		return InitiateLoginResponse{}, err
	}

	remoteURL, err := normalizeRemoteURL(req.RemoteURL, s.cfg.DefaultRemoteURL)
	if err != nil {
		return InitiateLoginResponse{}, err
	}
	redirectPath := sanitizeRedirectPath(req.RedirectPath)

	state := randomHex(16)
	var codeVerifier, codeChallenge string
	if s.cfg.PKCEEnabled {
		codeVerifier, codeChallenge = generatePKCEVerifierChallenge()
	}

	now := s.nowFn()
	pending := domain.PendingAuthorization{
		State:          state,
		RemoteURL:      remoteURL,
		RedirectPath:   redirectPath,
		RequestBaseURL: s.cfg.PublicBaseURL,
		CodeVerifier:   codeVerifier,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.PendingAuthTTL),
	}
	if err := s.pending.Put(ctx, pending, s.cfg.PendingAuthTTL); err != nil {
		return InitiateLoginResponse{}, err
	}

	authorizeURL, err := s.provider.AuthorizeURL(ports.AuthorizeRequest{
		RemoteURL:     remoteURL,
		RedirectURI:   s.callbackURL(),
		ClientID:      s.cfg.PublicBaseURL,
		State:         state,
		CodeChallenge: codeChallenge,
	})
	if err != nil {
		return InitiateLoginResponse{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	slog.Default().InfoContext(ctx, "login initiated",
		"module", "application",
		"layer", "application",
		"operation", "initiate_login",
		"outcome", "success",
		"remote_url", remoteURL,
	)
	return InitiateLoginResponse{AuthorizeURL: authorizeURL, State: state}, nil
}

// CompleteLogin consumes the state exactly once, exchanges the code, resolves
// the remote identity, and establishes a fresh session. A replayed or expired
// state fails closed before any provider call.
func (s *Service) CompleteLogin(ctx context.Context, req CompleteLoginRequest) (CompleteLoginResponse, error) {
	if err := s.checkThrottle(ctx, req.ClientIP); err != nil {
		return CompleteLoginResponse{}, err
	}
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.State) == "" {
		return CompleteLoginResponse{}, fmt.Errorf("%w: code and state are required", domain.ErrInvalidInput)
	}

	pending, err := s.pending.Consume(ctx, req.State)
	if err != nil {
		return CompleteLoginResponse{}, err
	}
	now := s.nowFn()
	if pending == nil || pending.ExpiresAt.Before(now) {
		slog.Default().WarnContext(ctx, "callback state mismatch",
			"module", "application",
			"layer", "application",
			"operation", "complete_login",
			"outcome", "failure",
		)
		s.recordFailure(ctx, req.ClientIP)
		return CompleteLoginResponse{}, domain.ErrInvalidState
	}

	tokens, err := s.provider.ExchangeCode(ctx, ports.ExchangeRequest{
		RemoteURL:    pending.RemoteURL,
		RedirectURI:  s.callbackURL(),
		ClientID:     pending.RequestBaseURL,
		Code:         req.Code,
		CodeVerifier: pending.CodeVerifier,
	})
	if err != nil {
		s.recordFailure(ctx, req.ClientIP)
		return CompleteLoginResponse{}, err
	}

	identity, err := s.provider.FetchIdentity(ctx, pending.RemoteURL, tokens.AccessToken)
	if err != nil {
		s.recordFailure(ctx, req.ClientIP)
		return CompleteLoginResponse{}, err
	}

	user, err := s.users.UpsertByExternalID(ctx, ports.UpsertUserParams{
		ExternalID:   identity.ExternalID,
		DisplayName:  identity.DisplayName,
		PersonEntity: identity.PersonEntity,
		RemoteURL:    pending.RemoteURL,
		Now:          now,
	})
	if err != nil {
		return CompleteLoginResponse{}, err
	}
	if !user.IsActive {
		return CompleteLoginResponse{}, domain.ErrForbidden
	}

	if err := s.storeTokenPair(ctx, user.UserID, tokens, now); err != nil {
		return CompleteLoginResponse{}, err
	}

	token, session, err := s.createSession(ctx, user.UserID, now)
	if err != nil {
		return CompleteLoginResponse{}, err
	}

	if err := s.throttle.RecordSuccess(ctx, req.ClientIP); err != nil {
		slog.Default().WarnContext(ctx, "throttle reset failed",
			"module", "application",
			"layer", "application",
			"operation", "complete_login",
			"outcome", "degraded",
			"error", err.Error(),
		)
	}
	slog.Default().InfoContext(ctx, "login completed",
		"module", "application",
		"layer", "application",
		"operation", "complete_login",
		"outcome", "success",
		"user_id", user.UserID.String(),
	)
	return CompleteLoginResponse{
		SessionToken: token,
		ExpiresAt:    session.ExpiresAt,
		RedirectPath: pending.RedirectPath,
		UserID:       user.UserID,
	}, nil
}

// Logout destroys the session matching the presented token. Unknown tokens
// succeed silently so logout is idempotent.
func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	if strings.TrimSpace(sessionToken) == "" {
		return nil
	}
	return s.sessions.DeleteByTokenHash(ctx, hashToken(sessionToken))
}

func (s *Service) checkThrottle(ctx context.Context, identifier string) error {
	if strings.TrimSpace(identifier) == "" {
		return nil
	}
	decision, err := s.throttle.Check(ctx, identifier)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &domain.ThrottledError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, identifier string) {
	if strings.TrimSpace(identifier) == "" {
		return
	}
	if err := s.throttle.RecordFailure(ctx, identifier, s.nowFn()); err != nil {
		slog.Default().WarnContext(ctx, "throttle record failed",
			"module", "application",
			"layer", "application",
			"operation", "record_failure",
			"outcome", "degraded",
			"error", err.Error(),
		)
	}
}

func (s *Service) storeTokenPair(ctx context.Context, userID uuid.UUID, tokens domain.TokenPair, now time.Time) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	blob, err := s.cipher.Encrypt(raw)
	if err != nil {
		return err
	}
	return s.credentials.Upsert(ctx, domain.Credential{
		UserID:    userID,
		Kind:      domain.CredentialHomeAssistant,
		Blob:      blob,
		ExpiresAt: tokens.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *Service) callbackURL() string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/auth/callback"
}

func normalizeRemoteURL(raw, fallback string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	if raw == "" {
		return "", fmt.Errorf("%w: remote instance URL is required", domain.ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: remote instance URL must be absolute http(s)", domain.ErrInvalidInput)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// sanitizeRedirectPath confines post-login redirects to same-origin paths so
// the callback can never bounce the browser to a foreign site. Backslashes
// are rejected outright: browsers rewrite them to forward slashes, which
// would turn "/\host" into the scheme-relative redirect "//host".
func sanitizeRedirectPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsRune(raw, '\\') {
		return "/"
	}
	return path.Clean(raw)
}
