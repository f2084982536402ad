package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/homedash/homedash/internal/domain"
	"github.com/homedash/homedash/internal/ports"
)

const sessionTokenBytes = 32

func (s *Service) createSession(ctx context.Context, userID uuid.UUID, now time.Time) (string, domain.Session, error) {
	token := randomHex(sessionTokenBytes)
	session, err := s.sessions.Create(ctx, ports.SessionCreateParams{
		UserID:     userID,
		TokenHash:  hashToken(token),
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.cfg.SessionTTL),
	})
	if err != nil {
		return "", domain.Session{}, err
	}
	return token, session, nil
}

// ValidateSession resolves a raw cookie token to an active user. Missing,
// unknown, and expired tokens all surface as ErrUnauthenticated so callers
// cannot distinguish them. Valid lookups slide last-seen forward without
// extending the absolute expiry.
func (s *Service) ValidateSession(ctx context.Context, sessionToken string) (domain.User, domain.Session, error) {
	if sessionToken == "" {
		return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
	}
	session, err := s.sessions.GetByTokenHash(ctx, hashToken(sessionToken))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
		}
		return domain.User{}, domain.Session{}, err
	}
	now := s.nowFn()
	if !session.ExpiresAt.After(now) {
		_ = s.sessions.DeleteByID(ctx, session.SessionID)
		return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
	}
	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
		}
		return domain.User{}, domain.Session{}, err
	}
	if !user.IsActive {
		return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
	}
	if err := s.sessions.TouchLastSeen(ctx, session.SessionID, now); err == nil {
		session.LastSeenAt = now
	}
	return user, session, nil
}

// ListSessions returns every live session for the user, flagging the one the
// request arrived on.
func (s *Service) ListSessions(ctx context.Context, userID, currentSessionID uuid.UUID) ([]SessionInfo, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.nowFn()
	result := make([]SessionInfo, 0, len(sessions))
	for _, item := range sessions {
		if !item.ExpiresAt.After(now) {
			continue
		}
		result = append(result, SessionInfo{
			SessionID:  item.SessionID,
			CreatedAt:  item.CreatedAt,
			LastSeenAt: item.LastSeenAt,
			ExpiresAt:  item.ExpiresAt,
			Current:    item.SessionID == currentSessionID,
		})
	}
	return result, nil
}

// RevokeSession deletes one of the caller's own sessions. Revoking another
// user's session is indistinguishable from revoking a nonexistent one.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, item := range sessions {
		if item.SessionID == sessionID {
			return s.sessions.DeleteByID(ctx, sessionID)
		}
	}
	return domain.ErrNotFound
}

// PurgeExpiredSessions removes rows past their absolute expiry. Run
// periodically; lazy expiry in ValidateSession keeps correctness either way.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.nowFn())
}
