package security

import (
	"errors"
	"testing"
	"time"

	"github.com/homedash/homedash/internal/domain"
)

func newTestSigner(t *testing.T) *CSRFSigner {
	t.Helper()
	signer, err := NewCSRFSigner([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

func TestCSRFIssueVerify(t *testing.T) {
	t.Parallel()
	signer := newTestSigner(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	token, err := signer.Issue("session-hash-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := signer.Verify(token, "session-hash-1", now.Add(time.Minute)); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestCSRFRejectsWrongSession(t *testing.T) {
	t.Parallel()
	signer := newTestSigner(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	token, err := signer.Issue("session-hash-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := signer.Verify(token, "session-hash-2", now); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("wrong session: got %v, want ErrForbidden", err)
	}
}

func TestCSRFRejectsExpiredToken(t *testing.T) {
	t.Parallel()
	signer := newTestSigner(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	token, err := signer.Issue("session-hash-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := signer.Verify(token, "session-hash-1", now.Add(2*time.Hour)); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expired token: got %v, want ErrForbidden", err)
	}
}

func TestCSRFRejectsGarbage(t *testing.T) {
	t.Parallel()
	signer := newTestSigner(t)
	now := time.Now().UTC()
	for _, token := range []string{"", "not-a-jwt", "aaa.bbb.ccc"} {
		if err := signer.Verify(token, "session-hash-1", now); !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("Verify(%q): got %v, want ErrForbidden", token, err)
		}
	}
}

func TestNewCSRFSignerRejectsShortSecret(t *testing.T) {
	t.Parallel()
	if _, err := NewCSRFSigner([]byte("short"), time.Hour); err == nil {
		t.Fatal("expected error for short secret")
	}
}
