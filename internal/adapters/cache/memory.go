package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/homedash/homedash/internal/domain"
	"github.com/homedash/homedash/internal/ports"
)

// MemoryCache is the single-process KeyValueCache. Entries expire lazily on
// read; TTL is fixed per instance.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	nowFn   func() time.Time
}

type memoryEntry struct {
	value    []byte
	storedAt time.Time
}

// NewMemoryCache creates a cache with the given per-entry TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		nowFn:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.nowFn().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false, nil
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: stored, storedAt: c.nowFn()}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}

func (c *MemoryCache) InvalidateByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

// MemoryPendingAuthStore keeps OAuth login state in process memory. Losing
// the process between authorize and callback breaks the login in flight;
// multi-instance deployments should use the Redis store instead.
type MemoryPendingAuthStore struct {
	mu    sync.Mutex
	items map[string]domain.PendingAuthorization
	nowFn func() time.Time
}

func NewMemoryPendingAuthStore() *MemoryPendingAuthStore {
	return &MemoryPendingAuthStore{
		items: make(map[string]domain.PendingAuthorization),
		nowFn: time.Now,
	}
}

func (s *MemoryPendingAuthStore) Put(_ context.Context, pending domain.PendingAuthorization, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pending.ExpiresAt.IsZero() {
		pending.ExpiresAt = s.nowFn().Add(ttl)
	}
	s.items[pending.State] = pending
	s.sweepLocked()
	return nil
}

// Consume deletes and returns the pending record under one lock acquisition,
// so two concurrent callbacks with the same state cannot both succeed.
func (s *MemoryPendingAuthStore) Consume(_ context.Context, state string) (*domain.PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, ok := s.items[state]
	if !ok {
		return nil, nil
	}
	delete(s.items, state)
	if pending.ExpiresAt.Before(s.nowFn()) {
		return nil, nil
	}
	return &pending, nil
}

func (s *MemoryPendingAuthStore) sweepLocked() {
	now := s.nowFn()
	for state, pending := range s.items {
		if pending.ExpiresAt.Before(now) {
			delete(s.items, state)
		}
	}
}

// MemoryThrottle is the single-process login throttle: a sliding window of
// failure timestamps per identifier plus an independent hard-block timer.
type MemoryThrottle struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	blockFor  time.Duration
	state     map[string]*throttleEntry
	nowFn     func() time.Time
}

type throttleEntry struct {
	failures     []time.Time
	blockedUntil *time.Time
}

// NewMemoryThrottle creates a throttle. Zero values fall back to 5 failures
// per 15 minutes with a 15-minute block.
func NewMemoryThrottle(threshold int, window, blockFor time.Duration) *MemoryThrottle {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if blockFor <= 0 {
		blockFor = 15 * time.Minute
	}
	return &MemoryThrottle{
		threshold: threshold,
		window:    window,
		blockFor:  blockFor,
		state:     make(map[string]*throttleEntry),
		nowFn:     time.Now,
	}
}

func (t *MemoryThrottle) Check(_ context.Context, identifier string) (ports.ThrottleDecision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.state[identifier]
	if !ok {
		return ports.ThrottleDecision{Allowed: true}, nil
	}
	now := t.nowFn()
	if entry.blockedUntil != nil && entry.blockedUntil.After(now) {
		return ports.ThrottleDecision{Allowed: false, RetryAfter: entry.blockedUntil.Sub(now)}, nil
	}
	t.trimLocked(entry, now)
	if len(entry.failures) >= t.threshold {
		// Windowed failures alone can deny even before a block is placed.
		retry := entry.failures[0].Add(t.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return ports.ThrottleDecision{Allowed: false, RetryAfter: retry}, nil
	}
	return ports.ThrottleDecision{Allowed: true}, nil
}

func (t *MemoryThrottle) RecordFailure(_ context.Context, identifier string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.state[identifier]
	if !ok {
		entry = &throttleEntry{}
		t.state[identifier] = entry
	}
	t.trimLocked(entry, now)
	entry.failures = append(entry.failures, now)
	if len(entry.failures) >= t.threshold {
		// The block timer runs independently of the attempt window: later
		// window expiry does not lift it early.
		blockedUntil := now.Add(t.blockFor)
		entry.blockedUntil = &blockedUntil
	}
	return nil
}

func (t *MemoryThrottle) RecordSuccess(_ context.Context, identifier string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, identifier)
	return nil
}

func (t *MemoryThrottle) trimLocked(entry *throttleEntry, now time.Time) {
	cutoff := now.Add(-t.window)
	kept := entry.failures[:0]
	for _, ts := range entry.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	entry.failures = kept
	if entry.blockedUntil != nil && !entry.blockedUntil.After(now) {
		entry.blockedUntil = nil
	}
}

// RunGC garbage-collects stale throttle entries until the context is done.
func (t *MemoryThrottle) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.collect()
		}
	}
}

func (t *MemoryThrottle) collect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowFn()
	for identifier, entry := range t.state {
		t.trimLocked(entry, now)
		if len(entry.failures) == 0 && entry.blockedUntil == nil {
			delete(t.state, identifier)
		}
	}
}
