package ports

import (
	"context"
	"time"

	"github.com/homedash/homedash/internal/domain"
)

// CredentialCipher provides authenticated encryption for secrets before they
// reach the persistence layer. Encrypt produces a self-describing envelope;
// Decrypt fails with domain.ErrDecryption on tampering, wrong key, or
// malformed input and must never panic.
type CredentialCipher interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(blob string) ([]byte, error)
	IsEncrypted(blob string) bool
}

// AuthorizeRequest carries the login-initiation context into the provider
// adapter. CodeChallenge is empty when PKCE is disabled.
type AuthorizeRequest struct {
	RemoteURL     string
	RedirectURI   string
	ClientID      string
	State         string
	CodeChallenge string
}

// ExchangeRequest binds the authorization code to the same redirect URI and
// PKCE verifier used at initiation.
type ExchangeRequest struct {
	RemoteURL    string
	RedirectURI  string
	ClientID     string
	Code         string
	CodeVerifier string
}

// OAuthProvider drives the authorization-code flow against a remote Home
// Assistant instance. All calls must respect context deadlines; adapters hold
// no locks across provider I/O.
type OAuthProvider interface {
	AuthorizeURL(req AuthorizeRequest) (string, error)
	ExchangeCode(ctx context.Context, req ExchangeRequest) (domain.TokenPair, error)
	RefreshToken(ctx context.Context, remoteURL, clientID, refreshToken string) (domain.TokenPair, error)
	FetchIdentity(ctx context.Context, remoteURL, accessToken string) (domain.Identity, error)
}

// CSRFSigner issues and verifies tokens bound to a session for double-submit
// protection on state-mutating routes.
type CSRFSigner interface {
	Issue(sessionTokenHash string, now time.Time) (string, error)
	Verify(token, sessionTokenHash string, now time.Time) error
}
