package application

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/homedash/homedash/internal/domain"
	"github.com/homedash/homedash/internal/ports"
)

type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[uuid.UUID]domain.User
	byExtID map[string]uuid.UUID
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:   make(map[uuid.UUID]domain.User),
		byExtID: make(map[string]uuid.UUID),
	}
}

func (r *fakeUserRepo) UpsertByExternalID(_ context.Context, params ports.UpsertUserParams) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byExtID[params.ExternalID]; ok {
		user := r.users[id]
		user.DisplayName = params.DisplayName
		user.PersonEntity = params.PersonEntity
		user.RemoteURL = params.RemoteURL
		user.UpdatedAt = params.Now
		r.users[id] = user
		return user, nil
	}
	user := domain.User{
		UserID:       uuid.New(),
		ExternalID:   params.ExternalID,
		DisplayName:  params.DisplayName,
		PersonEntity: params.PersonEntity,
		RemoteURL:    params.RemoteURL,
		IsActive:     true,
		CreatedAt:    params.Now,
		UpdatedAt:    params.Now,
	}
	r.users[user.UserID] = user
	r.byExtID[user.ExternalID] = user.UserID
	return user, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, userID uuid.UUID) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) SetRole(_ context.Context, userID uuid.UUID, roleID *uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	user.RoleID = roleID
	user.UpdatedAt = now
	r.users[userID] = user
	return nil
}

func (r *fakeUserRepo) Disable(_ context.Context, userID uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	user.IsActive = false
	user.DisabledAt = &now
	r.users[userID] = user
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]domain.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]domain.Session)}
}

func (r *fakeSessionRepo) Create(_ context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session := domain.Session{
		SessionID:  uuid.New(),
		UserID:     params.UserID,
		TokenHash:  params.TokenHash,
		CreatedAt:  params.CreatedAt,
		LastSeenAt: params.LastSeenAt,
		ExpiresAt:  params.ExpiresAt,
	}
	r.sessions[session.SessionID] = session
	return session, nil
}

func (r *fakeSessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.TokenHash == tokenHash {
			return session, nil
		}
	}
	return domain.Session{}, domain.ErrNotFound
}

func (r *fakeSessionRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, session := range r.sessions {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) TouchLastSeen(_ context.Context, sessionID uuid.UUID, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	session.LastSeenAt = seenAt
	r.sessions[sessionID] = session
	return nil
}

func (r *fakeSessionRepo) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, session := range r.sessions {
		if session.TokenHash == tokenHash {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *fakeSessionRepo) DeleteByID(_ context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.sessions, sessionID)
	return nil
}

func (r *fakeSessionRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, session := range r.sessions {
		if session.ExpiresAt.Before(before) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

type credKey struct {
	userID uuid.UUID
	kind   domain.CredentialKind
}

type fakeCredentialRepo struct {
	mu    sync.Mutex
	items map[credKey]domain.Credential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{items: make(map[credKey]domain.Credential)}
}

func (r *fakeCredentialRepo) Upsert(_ context.Context, cred domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[credKey{cred.UserID, cred.Kind}] = cred
	return nil
}

func (r *fakeCredentialRepo) Get(_ context.Context, userID uuid.UUID, kind domain.CredentialKind) (domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.items[credKey{userID, kind}]
	if !ok {
		return domain.Credential{}, domain.ErrNotFound
	}
	return cred, nil
}

func (r *fakeCredentialRepo) Delete(_ context.Context, userID uuid.UUID, kind domain.CredentialKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, credKey{userID, kind})
	return nil
}

type fakeAccessRepo struct {
	mu            sync.Mutex
	roles         map[string]domain.Role
	userRoles     map[uuid.UUID]string
	overrides     map[uuid.UUID][]domain.PermissionOverride
	roleReadCount int
}

func newFakeAccessRepo() *fakeAccessRepo {
	return &fakeAccessRepo{
		roles:     make(map[string]domain.Role),
		userRoles: make(map[uuid.UUID]string),
		overrides: make(map[uuid.UUID][]domain.PermissionOverride),
	}
}

func (r *fakeAccessRepo) GetRoleByName(_ context.Context, name string) (domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[name]
	if !ok {
		return domain.Role{}, domain.ErrNotFound
	}
	return role, nil
}

func (r *fakeAccessRepo) GetRoleForUser(_ context.Context, userID uuid.UUID) (domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roleReadCount++
	name, ok := r.userRoles[userID]
	if !ok {
		return domain.Role{}, domain.ErrNotFound
	}
	role, ok := r.roles[name]
	if !ok {
		return domain.Role{}, domain.ErrNotFound
	}
	return role, nil
}

func (r *fakeAccessRepo) ListOverrides(_ context.Context, userID uuid.UUID) ([]domain.PermissionOverride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PermissionOverride(nil), r.overrides[userID]...), nil
}

func (r *fakeAccessRepo) SetOverride(_ context.Context, override domain.PermissionOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.overrides[override.UserID]
	for i, item := range existing {
		if item.Key == override.Key {
			existing[i] = override
			return nil
		}
	}
	r.overrides[override.UserID] = append(existing, override)
	return nil
}

func (r *fakeAccessRepo) DeleteOverride(_ context.Context, userID uuid.UUID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.overrides[userID]
	kept := existing[:0]
	for _, item := range existing {
		if item.Key != key {
			kept = append(kept, item)
		}
	}
	r.overrides[userID] = kept
	return nil
}

func (r *fakeAccessRepo) roleReads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roleReadCount
}

type fakeThrottle struct {
	mu        sync.Mutex
	failures  map[string]int
	threshold int
}

func newFakeThrottle(threshold int) *fakeThrottle {
	return &fakeThrottle{failures: make(map[string]int), threshold: threshold}
}

func (t *fakeThrottle) Check(_ context.Context, identifier string) (ports.ThrottleDecision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failures[identifier] >= t.threshold {
		return ports.ThrottleDecision{Allowed: false, RetryAfter: 15 * time.Minute}, nil
	}
	return ports.ThrottleDecision{Allowed: true}, nil
}

func (t *fakeThrottle) RecordFailure(_ context.Context, identifier string, _ time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[identifier]++
	return nil
}

func (t *fakeThrottle) RecordSuccess(_ context.Context, identifier string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, identifier)
	return nil
}

type fakePendingStore struct {
	mu    sync.Mutex
	items map[string]domain.PendingAuthorization
}

func newFakePendingStore() *fakePendingStore {
	return &fakePendingStore{items: make(map[string]domain.PendingAuthorization)}
}

func (s *fakePendingStore) Put(_ context.Context, pending domain.PendingAuthorization, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[pending.State] = pending
	return nil
}

func (s *fakePendingStore) Consume(_ context.Context, state string) (*domain.PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, ok := s.items[state]
	if !ok {
		return nil, nil
	}
	delete(s.items, state)
	return &pending, nil
}

type fakeCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.items[key]
	return value, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *fakeCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string][]byte)
	return nil
}

func (c *fakeCache) InvalidateByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	return nil
}

// fakeCipher is a reversible stand-in keeping ciphertext inspectable.
type fakeCipher struct{}

func (fakeCipher) Encrypt(plaintext []byte) (string, error) {
	return "enc(" + string(plaintext) + ")", nil
}

func (fakeCipher) Decrypt(blob string) ([]byte, error) {
	inner, ok := strings.CutPrefix(blob, "enc(")
	if !ok || !strings.HasSuffix(inner, ")") {
		return nil, domain.ErrDecryption
	}
	return []byte(strings.TrimSuffix(inner, ")")), nil
}

func (fakeCipher) IsEncrypted(blob string) bool {
	return strings.HasPrefix(blob, "enc(")
}

type refreshCall struct {
	remoteURL    string
	refreshToken string
}

type fakeProvider struct {
	mu sync.Mutex

	exchangeTokens domain.TokenPair
	exchangeErr    error
	identity       domain.Identity
	identityErr    error

	refreshResults []domain.TokenPair
	refreshErrs    []error
	refreshCalls   []refreshCall
}

func (p *fakeProvider) AuthorizeURL(req ports.AuthorizeRequest) (string, error) {
	return req.RemoteURL + "/auth/authorize?state=" + req.State, nil
}

func (p *fakeProvider) ExchangeCode(_ context.Context, _ ports.ExchangeRequest) (domain.TokenPair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exchangeErr != nil {
		return domain.TokenPair{}, p.exchangeErr
	}
	return p.exchangeTokens, nil
}

func (p *fakeProvider) RefreshToken(_ context.Context, remoteURL, _, refreshToken string) (domain.TokenPair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshCalls = append(p.refreshCalls, refreshCall{remoteURL: remoteURL, refreshToken: refreshToken})
	idx := len(p.refreshCalls) - 1
	var err error
	if idx < len(p.refreshErrs) {
		err = p.refreshErrs[idx]
	}
	if err != nil {
		return domain.TokenPair{}, err
	}
	if idx < len(p.refreshResults) {
		return p.refreshResults[idx], nil
	}
	return domain.TokenPair{}, domain.ErrUpstreamUnavailable
}

func (p *fakeProvider) FetchIdentity(_ context.Context, _, _ string) (domain.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.identityErr != nil {
		return domain.Identity{}, p.identityErr
	}
	return p.identity, nil
}

func (p *fakeProvider) refreshCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.refreshCalls)
}

type fixture struct {
	svc      *Service
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	creds    *fakeCredentialRepo
	access   *fakeAccessRepo
	throttle *fakeThrottle
	pending  *fakePendingStore
	perms    *fakeCache
	config   *fakeCache
	provider *fakeProvider
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		users:    newFakeUserRepo(),
		sessions: newFakeSessionRepo(),
		creds:    newFakeCredentialRepo(),
		access:   newFakeAccessRepo(),
		throttle: newFakeThrottle(5),
		pending:  newFakePendingStore(),
		perms:    newFakeCache(),
		config:   newFakeCache(),
		provider: &fakeProvider{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Dependencies{
		Config: Config{
			PublicBaseURL: "https://dash.example.com",
			PKCEEnabled:   true,
			SessionTTL:    time.Hour,
		},
		Users:       f.users,
		Sessions:    f.sessions,
		Credentials: f.creds,
		Access:      f.access,
		Throttle:    f.throttle,
		Pending:     f.pending,
		PermCache:   f.perms,
		ConfigCache: f.config,
		Cipher:      fakeCipher{},
		Provider:    f.provider,
	})
	f.svc.nowFn = func() time.Time { return f.now }
	f.svc.sleepFn = func(time.Duration) {}
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }
