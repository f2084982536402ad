package cache

import (
	"context"
	"testing"
	"time"

	"github.com/homedash/homedash/internal/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemoryCacheLazyExpiry(t *testing.T) {
	t.Parallel()
	clock := newClock()
	cache := NewMemoryCache(120 * time.Second)
	cache.nowFn = clock.Now
	ctx := context.Background()

	if err := cache.Set(ctx, "perms:user:u1", []byte(`["camera.view"]`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	clock.Advance(119 * time.Second)
	value, ok, err := cache.Get(ctx, "perms:user:u1")
	if err != nil || !ok {
		t.Fatalf("get before ttl: ok=%v err=%v", ok, err)
	}
	if string(value) != `["camera.view"]` {
		t.Fatalf("unexpected value %q", value)
	}

	clock.Advance(2 * time.Second)
	if _, ok, _ := cache.Get(ctx, "perms:user:u1"); ok {
		t.Fatal("entry survived past ttl")
	}
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	t.Parallel()
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	original := []byte("abc")
	_ = cache.Set(ctx, "k", original)
	original[0] = 'z'

	value, ok, _ := cache.Get(ctx, "k")
	if !ok || string(value) != "abc" {
		t.Fatalf("stored value mutated: %q", value)
	}
	value[0] = 'y'
	again, _, _ := cache.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned slice aliases stored value: %q", again)
	}
}

func TestMemoryCachePrefixInvalidation(t *testing.T) {
	t.Parallel()
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	_ = cache.Set(ctx, "perms:user:u1", []byte("a"))
	_ = cache.Set(ctx, "perms:user:u2", []byte("b"))
	_ = cache.Set(ctx, "config:runtime", []byte("c"))

	if err := cache.InvalidateByPrefix(ctx, "perms:user:"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "perms:user:u1"); ok {
		t.Fatal("u1 survived prefix invalidation")
	}
	if _, ok, _ := cache.Get(ctx, "perms:user:u2"); ok {
		t.Fatal("u2 survived prefix invalidation")
	}
	if _, ok, _ := cache.Get(ctx, "config:runtime"); !ok {
		t.Fatal("unrelated key was dropped")
	}

	if err := cache.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "config:runtime"); ok {
		t.Fatal("key survived InvalidateAll")
	}
}

func TestPendingAuthConsumeOnce(t *testing.T) {
	t.Parallel()
	clock := newClock()
	store := NewMemoryPendingAuthStore()
	store.nowFn = clock.Now
	ctx := context.Background()

	pending := domain.PendingAuthorization{
		State:     "state-1",
		RemoteURL: "http://ha.local:8123",
		CreatedAt: clock.Now(),
		ExpiresAt: clock.Now().Add(10 * time.Minute),
	}
	if err := store.Put(ctx, pending, 10*time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	first, err := store.Consume(ctx, "state-1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if first == nil || first.RemoteURL != "http://ha.local:8123" {
		t.Fatalf("unexpected record %+v", first)
	}

	second, err := store.Consume(ctx, "state-1")
	if err != nil {
		t.Fatalf("replay consume: %v", err)
	}
	if second != nil {
		t.Fatal("state consumed twice")
	}
}

func TestPendingAuthExpires(t *testing.T) {
	t.Parallel()
	clock := newClock()
	store := NewMemoryPendingAuthStore()
	store.nowFn = clock.Now
	ctx := context.Background()

	pending := domain.PendingAuthorization{
		State:     "state-2",
		ExpiresAt: clock.Now().Add(10 * time.Minute),
	}
	_ = store.Put(ctx, pending, 10*time.Minute)

	clock.Advance(11 * time.Minute)
	record, err := store.Consume(ctx, "state-2")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if record != nil {
		t.Fatal("expired state was honored")
	}
}

func TestThrottleBlocksAfterThreshold(t *testing.T) {
	t.Parallel()
	clock := newClock()
	throttle := NewMemoryThrottle(5, 15*time.Minute, 15*time.Minute)
	throttle.nowFn = clock.Now
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = throttle.RecordFailure(ctx, "1.2.3.4", clock.Now())
		decision, err := throttle.Check(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("blocked after %d failures", i+1)
		}
	}

	_ = throttle.RecordFailure(ctx, "1.2.3.4", clock.Now())
	decision, err := throttle.Check(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("allowed after fifth failure")
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > 15*time.Minute {
		t.Fatalf("unexpected retry-after %s", decision.RetryAfter)
	}

	// Other identifiers stay unaffected.
	other, _ := throttle.Check(ctx, "5.6.7.8")
	if !other.Allowed {
		t.Fatal("unrelated identifier throttled")
	}
}

func TestThrottleBlockOutlastsWindow(t *testing.T) {
	t.Parallel()
	clock := newClock()
	throttle := NewMemoryThrottle(3, 5*time.Minute, 30*time.Minute)
	throttle.nowFn = clock.Now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = throttle.RecordFailure(ctx, "ip", clock.Now())
	}

	// The failure window has long rolled over, but the block timer has not.
	clock.Advance(10 * time.Minute)
	decision, _ := throttle.Check(ctx, "ip")
	if decision.Allowed {
		t.Fatal("block lifted with the attempt window")
	}

	clock.Advance(21 * time.Minute)
	decision, _ = throttle.Check(ctx, "ip")
	if !decision.Allowed {
		t.Fatal("block persisted past its timer")
	}
}

func TestThrottleSuccessClearsState(t *testing.T) {
	t.Parallel()
	clock := newClock()
	throttle := NewMemoryThrottle(5, 15*time.Minute, 15*time.Minute)
	throttle.nowFn = clock.Now
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = throttle.RecordFailure(ctx, "ip", clock.Now())
	}
	if decision, _ := throttle.Check(ctx, "ip"); decision.Allowed {
		t.Fatal("expected block before reset")
	}

	_ = throttle.RecordSuccess(ctx, "ip")
	if decision, _ := throttle.Check(ctx, "ip"); !decision.Allowed {
		t.Fatal("state survived a successful login")
	}
}

func TestThrottleWindowSlides(t *testing.T) {
	t.Parallel()
	clock := newClock()
	throttle := NewMemoryThrottle(3, 5*time.Minute, 15*time.Minute)
	throttle.nowFn = clock.Now
	ctx := context.Background()

	_ = throttle.RecordFailure(ctx, "ip", clock.Now())
	_ = throttle.RecordFailure(ctx, "ip", clock.Now())

	// Old failures roll out of the window before the third arrives.
	clock.Advance(6 * time.Minute)
	_ = throttle.RecordFailure(ctx, "ip", clock.Now())

	decision, _ := throttle.Check(ctx, "ip")
	if !decision.Allowed {
		t.Fatal("stale failures counted against the window")
	}
}
