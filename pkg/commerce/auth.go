package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
)

// adminTokenPath is the Commerce endpoint issuing admin access tokens.
const adminTokenPath = "/rest/all/V1/integration/admin/token"

// TokenProvider supplies bearer tokens for Commerce API requests.
// Implementations cache tokens; Invalidate discards the cached token so the
// next Token call fetches a fresh one.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// NewTokenProvider builds the provider selected by the auth configuration.
func NewTokenProvider(cfg *config.Config, logger zerolog.Logger) (TokenProvider, error) {
	switch cfg.Commerce.Auth.Mode {
	case config.AuthModeIntegration:
		return NewIntegrationTokenProvider(cfg, logger), nil
	case config.AuthModeOAuth:
		return NewOAuthTokenProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Commerce.Auth.Mode)
	}
}

// IntegrationTokenProvider acquires admin tokens from the Commerce
// integration token endpoint and reuses them for a configured TTL. The
// endpoint declares no token lifetime, so the TTL stays conservative.
type IntegrationTokenProvider struct {
	endpoint   string
	username   string
	password   string
	ttl        time.Duration
	httpClient *http.Client
	logger     zerolog.Logger

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

// NewIntegrationTokenProvider creates a provider from validated configuration.
func NewIntegrationTokenProvider(cfg *config.Config, logger zerolog.Logger) *IntegrationTokenProvider {
	return &IntegrationTokenProvider{
		endpoint: cfg.Commerce.BaseURL + adminTokenPath,
		username: cfg.Commerce.Auth.Username,
		password: cfg.Commerce.Auth.Password,
		ttl:      cfg.Commerce.Auth.TokenTTL,
		httpClient: &http.Client{
			Timeout: cfg.HTTP.Timeout,
		},
		logger: logger,
	}
}

// Token returns a cached admin token, fetching a fresh one when the cache is
// empty or older than the TTL.
func (p *IntegrationTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Since(p.fetchedAt) < p.ttl {
		return p.token, nil
	}

	token, err := p.fetch(ctx)
	if err != nil {
		return "", err
	}

	p.token = token
	p.fetchedAt = time.Now()
	p.logger.Debug().Msg("Acquired admin token")
	return token, nil
}

// Invalidate discards the cached token. The next Token call re-authenticates.
func (p *IntegrationTokenProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
}

func (p *IntegrationTokenProvider) fetch(ctx context.Context) (string, error) {
	payload, err := json.Marshal(tokenRequest{Username: p.username, Password: p.password})
	if err != nil {
		return "", &AuthError{Mode: config.AuthModeIntegration, Reason: "encode credentials", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &AuthError{Mode: config.AuthModeIntegration, Reason: "build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Mode: config.AuthModeIntegration, Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", &AuthError{Mode: config.AuthModeIntegration, Reason: "read token response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{
			Mode:   config.AuthModeIntegration,
			Reason: fmt.Sprintf("token endpoint returned status %d", resp.StatusCode),
		}
	}

	// The endpoint returns the token as a bare JSON string.
	var token string
	if err := json.Unmarshal(body, &token); err != nil {
		return "", &AuthError{Mode: config.AuthModeIntegration, Reason: "decode token response", Err: err}
	}
	if token == "" {
		return "", &AuthError{Mode: config.AuthModeIntegration, Reason: "token endpoint returned an empty token"}
	}

	return token, nil
}

// OAuthTokenProvider acquires tokens via the OAuth2 client-credentials grant.
// Token caching and refresh are handled by the underlying token source.
type OAuthTokenProvider struct {
	conf clientcredentials.Config
	base context.Context

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewOAuthTokenProvider creates a provider from validated configuration.
func NewOAuthTokenProvider(cfg *config.Config) *OAuthTokenProvider {
	conf := clientcredentials.Config{
		ClientID:     cfg.Commerce.Auth.OAuth.ClientID,
		ClientSecret: cfg.Commerce.Auth.OAuth.ClientSecret,
		TokenURL:     cfg.Commerce.Auth.OAuth.TokenURL,
		Scopes:       cfg.Commerce.Auth.OAuth.Scopes,
	}

	// The token source performs its own fetches outside request scope, so it
	// is bound to a base context carrying a bounded HTTP client.
	base := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
		Timeout: cfg.HTTP.Timeout,
	})

	return &OAuthTokenProvider{
		conf:   conf,
		base:   base,
		source: conf.TokenSource(base),
	}
}

// Token returns a valid access token, fetching or refreshing as needed.
func (p *OAuthTokenProvider) Token(_ context.Context) (string, error) {
	p.mu.Lock()
	source := p.source
	p.mu.Unlock()

	tok, err := source.Token()
	if err != nil {
		return "", &AuthError{Mode: config.AuthModeOAuth, Reason: "token fetch failed", Err: err}
	}
	return tok.AccessToken, nil
}

// Invalidate swaps in a fresh token source, discarding any cached token.
func (p *OAuthTokenProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = p.conf.TokenSource(p.base)
}
