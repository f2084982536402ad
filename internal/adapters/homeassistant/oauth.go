package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/homedash/homedash/internal/domain"
	"github.com/homedash/homedash/internal/ports"
)

// Home Assistant implements the IndieAuth flavor of OAuth: the client id is
// the dashboard's own base URL and the flow is scopeless. Endpoints live at
// fixed paths under the instance base URL.
const (
	authorizePath = "/auth/authorize"
	tokenPath     = "/auth/token"
	identityPath  = "/api/auth/current_user"
)

// OAuthClient drives the authorization-code exchange against a remote Home
// Assistant instance. The endpoint set is derived per call from the instance
// base URL, since each user may point the dashboard at a different home.
type OAuthClient struct {
	httpClient *http.Client
}

// NewOAuthClient builds a provider client. The timeout bounds every provider
// call; it defaults to 10s when unset.
func NewOAuthClient(timeout time.Duration) *OAuthClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OAuthClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

func endpointFor(remoteURL string) oauth2.Endpoint {
	base := strings.TrimRight(strings.TrimSpace(remoteURL), "/")
	return oauth2.Endpoint{
		AuthURL:   base + authorizePath,
		TokenURL:  base + tokenPath,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func (c *OAuthClient) config(remoteURL, clientID, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    clientID,
		Endpoint:    endpointFor(remoteURL),
		RedirectURL: redirectURI,
	}
}

func (c *OAuthClient) AuthorizeURL(req ports.AuthorizeRequest) (string, error) {
	if _, err := url.ParseRequestURI(req.RedirectURI); err != nil {
		return "", fmt.Errorf("%w: invalid redirect uri", domain.ErrInvalidInput)
	}
	cfg := c.config(req.RemoteURL, req.ClientID, req.RedirectURI)

	opts := []oauth2.AuthCodeOption{}
	if strings.TrimSpace(req.CodeChallenge) != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	return cfg.AuthCodeURL(req.State, opts...), nil
}

func (c *OAuthClient) ExchangeCode(ctx context.Context, req ports.ExchangeRequest) (domain.TokenPair, error) {
	if strings.TrimSpace(req.Code) == "" {
		return domain.TokenPair{}, fmt.Errorf("%w: authorization code is required", domain.ErrInvalidInput)
	}
	cfg := c.config(req.RemoteURL, req.ClientID, req.RedirectURI)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	opts := []oauth2.AuthCodeOption{}
	if strings.TrimSpace(req.CodeVerifier) != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", req.CodeVerifier))
	}
	token, err := cfg.Exchange(ctx, req.Code, opts...)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("%w: token exchange: %v", domain.ErrUpstreamUnavailable, err)
	}
	return toTokenPair(token), nil
}

func (c *OAuthClient) RefreshToken(ctx context.Context, remoteURL, clientID, refreshToken string) (domain.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return domain.TokenPair{}, fmt.Errorf("%w: refresh token is required", domain.ErrInvalidInput)
	}
	cfg := c.config(remoteURL, clientID, "")
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	source := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if isOAuthRejection(err, &retrieveErr) {
			// The instance refused the refresh token outright. Signal callers
			// to drop the credential instead of retrying.
			return domain.TokenPair{}, fmt.Errorf("%w: refresh rejected", domain.ErrCredentialUnavailable)
		}
		return domain.TokenPair{}, fmt.Errorf("%w: token refresh: %v", domain.ErrUpstreamUnavailable, err)
	}
	pair := toTokenPair(token)
	if pair.RefreshToken == "" {
		// Home Assistant does not rotate refresh tokens; keep the old one.
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

func (c *OAuthClient) FetchIdentity(ctx context.Context, remoteURL, accessToken string) (domain.Identity, error) {
	base := strings.TrimRight(strings.TrimSpace(remoteURL), "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+identityPath, nil)
	if err != nil {
		return domain.Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: fetch identity: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Identity{}, fmt.Errorf("%w: identity fetch status=%d body=%s",
			domain.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		PersonID string `json:"person_entity_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: decode identity: %v", domain.ErrUpstreamUnavailable, err)
	}
	if strings.TrimSpace(payload.ID) == "" {
		return domain.Identity{}, fmt.Errorf("%w: identity missing user id", domain.ErrUpstreamUnavailable)
	}
	return domain.Identity{
		ExternalID:   payload.ID,
		DisplayName:  strings.TrimSpace(payload.Name),
		PersonEntity: strings.TrimSpace(payload.PersonID),
	}, nil
}

func toTokenPair(token *oauth2.Token) domain.TokenPair {
	pair := domain.TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		pair.ExpiresAt = &expiry
	}
	return pair
}

// isOAuthRejection distinguishes a definitive provider rejection (4xx token
// endpoint response) from transient transport failure.
func isOAuthRejection(err error, target **oauth2.RetrieveError) bool {
	if !errors.As(err, target) {
		return false
	}
	code := (*target).Response.StatusCode
	return code >= 400 && code < 500
}
