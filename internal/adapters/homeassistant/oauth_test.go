package homeassistant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/homedash/homedash/internal/domain"
	"github.com/homedash/homedash/internal/ports"
)

func TestAuthorizeURL(t *testing.T) {
	t.Parallel()
	client := NewOAuthClient(time.Second)

	raw, err := client.AuthorizeURL(ports.AuthorizeRequest{
		RemoteURL:     "http://ha.local:8123/",
		RedirectURI:   "https://dash.example.com/auth/callback",
		ClientID:      "https://dash.example.com",
		State:         "state-123",
		CodeChallenge: "challenge-abc",
	})
	if err != nil {
		t.Fatalf("authorize url: %v", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if parsed.Path != "/auth/authorize" {
		t.Fatalf("unexpected path %q", parsed.Path)
	}
	q := parsed.Query()
	if q.Get("client_id") != "https://dash.example.com" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("state") != "state-123" {
		t.Errorf("state = %q", q.Get("state"))
	}
	if q.Get("redirect_uri") != "https://dash.example.com/auth/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if q.Get("code_challenge") != "challenge-abc" || q.Get("code_challenge_method") != "S256" {
		t.Errorf("pkce params = %q / %q", q.Get("code_challenge"), q.Get("code_challenge_method"))
	}
	if q.Has("scope") && q.Get("scope") != "" {
		t.Errorf("unexpected scope %q", q.Get("scope"))
	}
}

func TestAuthorizeURLWithoutPKCE(t *testing.T) {
	t.Parallel()
	client := NewOAuthClient(time.Second)

	raw, err := client.AuthorizeURL(ports.AuthorizeRequest{
		RemoteURL:   "http://ha.local:8123",
		RedirectURI: "https://dash.example.com/auth/callback",
		ClientID:    "https://dash.example.com",
		State:       "s",
	})
	if err != nil {
		t.Fatalf("authorize url: %v", err)
	}
	parsed, _ := url.Parse(raw)
	if parsed.Query().Has("code_challenge") {
		t.Fatal("code_challenge present with PKCE disabled")
	}
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/token" {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"acc-1","token_type":"Bearer","refresh_token":"ref-1","expires_in":1800}`))
	}))
	defer srv.Close()

	client := NewOAuthClient(time.Second)
	pair, err := client.ExchangeCode(context.Background(), ports.ExchangeRequest{
		RemoteURL:    srv.URL,
		RedirectURI:  "https://dash.example.com/auth/callback",
		ClientID:     "https://dash.example.com",
		Code:         "code-1",
		CodeVerifier: "verifier-1",
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if pair.AccessToken != "acc-1" || pair.RefreshToken != "ref-1" {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if pair.ExpiresAt == nil {
		t.Fatal("expiry missing")
	}
	if gotForm.Get("code") != "code-1" {
		t.Errorf("code = %q", gotForm.Get("code"))
	}
	if gotForm.Get("code_verifier") != "verifier-1" {
		t.Errorf("code_verifier = %q", gotForm.Get("code_verifier"))
	}
	if gotForm.Get("client_id") != "https://dash.example.com" {
		t.Errorf("client_id = %q", gotForm.Get("client_id"))
	}
}

func TestExchangeCodeUpstreamFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewOAuthClient(time.Second)
	_, err := client.ExchangeCode(context.Background(), ports.ExchangeRequest{
		RemoteURL:   srv.URL,
		RedirectURI: "https://dash.example.com/auth/callback",
		ClientID:    "https://dash.example.com",
		Code:        "code-1",
	})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("got %v, want ErrUpstreamUnavailable", err)
	}
}

func TestRefreshTokenKeepsOldRefreshToken(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"acc-2","token_type":"Bearer","expires_in":1800}`))
	}))
	defer srv.Close()

	client := NewOAuthClient(time.Second)
	pair, err := client.RefreshToken(context.Background(), srv.URL, "https://dash.example.com", "ref-old")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pair.AccessToken != "acc-2" {
		t.Fatalf("access token = %q", pair.AccessToken)
	}
	if pair.RefreshToken != "ref-old" {
		t.Fatalf("refresh token = %q, want preserved ref-old", pair.RefreshToken)
	}
}

func TestRefreshTokenRejection(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	client := NewOAuthClient(time.Second)
	_, err := client.RefreshToken(context.Background(), srv.URL, "https://dash.example.com", "ref-dead")
	if !errors.Is(err, domain.ErrCredentialUnavailable) {
		t.Fatalf("got %v, want ErrCredentialUnavailable", err)
	}
}

func TestRefreshTokenTransientFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewOAuthClient(time.Second)
	_, err := client.RefreshToken(context.Background(), srv.URL, "https://dash.example.com", "ref-1")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("got %v, want ErrUpstreamUnavailable", err)
	}
}

func TestFetchIdentity(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/current_user" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer acc-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ha-user-1","name":"Alex","person_entity_id":"person.alex"}`))
	}))
	defer srv.Close()

	client := NewOAuthClient(time.Second)
	identity, err := client.FetchIdentity(context.Background(), srv.URL, "acc-1")
	if err != nil {
		t.Fatalf("fetch identity: %v", err)
	}
	if identity.ExternalID != "ha-user-1" || identity.DisplayName != "Alex" || identity.PersonEntity != "person.alex" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestFetchIdentityRejectsMissingID(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Nameless"}`))
	}))
	defer srv.Close()

	client := NewOAuthClient(time.Second)
	_, err := client.FetchIdentity(context.Background(), srv.URL, "acc-1")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("got %v, want ErrUpstreamUnavailable", err)
	}
}
