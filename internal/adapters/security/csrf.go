package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/homedash/homedash/internal/domain"
)

// CSRFSigner issues short-lived HS256 tokens bound to the session token hash.
// Clients echo the token in X-CSRF-Token on state-mutating requests; a stolen
// token is useless without the matching session cookie.
type CSRFSigner struct {
	secret []byte
	ttl    time.Duration
}

type csrfClaims struct {
	SessionHash string `json:"session_hash"`
	jwt.RegisteredClaims
}

// NewCSRFSigner builds a signer. TTL defaults to one hour when unset.
func NewCSRFSigner(secret []byte, ttl time.Duration) (*CSRFSigner, error) {
	if len(secret) < 32 {
		return nil, errors.New("csrf secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CSRFSigner{secret: secret, ttl: ttl}, nil
}

func (s *CSRFSigner) Issue(sessionTokenHash string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, csrfClaims{
		SessionHash: sessionTokenHash,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	return token.SignedString(s.secret)
}

func (s *CSRFSigner) Verify(token, sessionTokenHash string, now time.Time) error {
	parsed, err := jwt.ParseWithClaims(token, &csrfClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return domain.ErrForbidden
	}
	claims, ok := parsed.Claims.(*csrfClaims)
	if !ok || !parsed.Valid {
		return domain.ErrForbidden
	}
	if claims.SessionHash != sessionTokenHash {
		return domain.ErrForbidden
	}
	return nil
}
