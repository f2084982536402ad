package application

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/homedash/homedash/internal/ports"
)

type Config struct {
	// PublicBaseURL is the externally reachable dashboard URL. It doubles as
	// the OAuth client_id, which is how Home Assistant identifies clients.
	PublicBaseURL string

	DefaultRemoteURL string
	PKCEEnabled      bool

	SessionTTL     time.Duration
	PendingAuthTTL time.Duration

	// RefreshSkew is how close to expiry an access token may get before
	// EnsureFreshToken refreshes it.
	RefreshSkew         time.Duration
	RefreshRetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.PendingAuthTTL <= 0 {
		c.PendingAuthTTL = 10 * time.Minute
	}
	if c.RefreshSkew <= 0 {
		c.RefreshSkew = 60 * time.Second
	}
	if c.RefreshRetryBackoff <= 0 {
		c.RefreshRetryBackoff = 500 * time.Millisecond
	}
	return c
}

type Service struct {
	cfg         Config
	users       ports.UserRepository
	sessions    ports.SessionRepository
	credentials ports.CredentialRepository
	access      ports.AccessRepository
	throttle    ports.LoginThrottle
	pending     ports.PendingAuthStore
	permCache   ports.KeyValueCache
	configCache ports.KeyValueCache
	cipher      ports.CredentialCipher
	provider    ports.OAuthProvider
	nowFn       func() time.Time
	sleepFn     func(time.Duration)
}

type Dependencies struct {
	Config      Config
	Users       ports.UserRepository
	Sessions    ports.SessionRepository
	Credentials ports.CredentialRepository
	Access      ports.AccessRepository
	Throttle    ports.LoginThrottle
	Pending     ports.PendingAuthStore
	PermCache   ports.KeyValueCache
	ConfigCache ports.KeyValueCache
	Cipher      ports.CredentialCipher
	Provider    ports.OAuthProvider
}

func NewService(deps Dependencies) *Service {
	return &Service{
		cfg:         deps.Config.withDefaults(),
		users:       deps.Users,
		sessions:    deps.Sessions,
		credentials: deps.Credentials,
		access:      deps.Access,
		throttle:    deps.Throttle,
		pending:     deps.Pending,
		permCache:   deps.PermCache,
		configCache: deps.ConfigCache,
		cipher:      deps.Cipher,
		provider:    deps.Provider,
		nowFn:       func() time.Time { return time.Now().UTC() },
		sleepFn:     time.Sleep,
	}
}

// hashToken stores one-way token fingerprints instead of raw secrets.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a cryptographically random hex token.
func randomHex(bytesLen int) string {
	raw := make([]byte, bytesLen)
	_, _ = rand.Read(raw)
	return hex.EncodeToString(raw)
}

// randomBase32 returns a random base32 string suitable for URL usage.
func randomBase32(bytesLen int) string {
	raw := make([]byte, bytesLen)
	_, _ = rand.Read(raw)
	return strings.TrimRight(base32.StdEncoding.EncodeToString(raw), "=")
}

// generatePKCEVerifierChallenge creates PKCE verifier and S256 challenge pair.
func generatePKCEVerifierChallenge() (string, string) {
	verifier := randomBase32(32)
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge
}
