package msgraph

// Package msgraph implements the identity-provider port against the
// Microsoft identity platform: authorization-code flow via the tenant
// OAuth2 endpoints and profile lookup via the Graph /me endpoint.

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

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	domainauth "github.com/peoplestack/ems-api/internal/domain/auth"
	"github.com/peoplestack/ems-api/internal/ports"
)

// maxProfileBody bounds how much of an error response body is read for logs.
const maxProfileBody = 4 << 10

// ProviderConfig holds configuration for the Graph provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	RedirectURL  string
	Scope        string

	// GraphURL is the profile endpoint; defaults to the Graph v1.0 /me URL
	// upstream in config.
	GraphURL string

	// DiscoveryURL enables id_token verification when the scope includes
	// "openid". Optional; the profile fetch works without it.
	DiscoveryURL string

	// ProfileIDExpr and ProfileEmailExpr are JMESPath expressions applied to
	// the decoded profile document.
	ProfileIDExpr    string
	ProfileEmailExpr string

	HTTPClient *http.Client // Optional, defaults to a 30s-timeout client
}

// Provider implements ports.IdentityProvider.
type Provider struct {
	config     *oauth2.Config
	graphURL   string
	idExpr     string
	emailExpr  string
	httpClient *http.Client

	// verifier is non-nil only when DiscoveryURL is configured and the
	// scope includes openid.
	verifier *gooidc.IDTokenVerifier
}

// NewProvider creates a new Graph provider. The redirect URL is validated
// here and again on each AuthCodeURL call because parts of it may be
// assembled from environment at request time.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if err := ValidateRedirectURL(cfg.RedirectURL); err != nil {
		return nil, err
	}
	if cfg.GraphURL == "" {
		return nil, errors.New("graph profile URL is required")
	}
	if _, err := jmespath.Compile(cfg.ProfileIDExpr); err != nil {
		return nil, fmt.Errorf("compile profile id expression: %w", err)
	}
	if _, err := jmespath.Compile(cfg.ProfileEmailExpr); err != nil {
		return nil, fmt.Errorf("compile profile email expression: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	tenant := cfg.TenantID
	if tenant == "" {
		tenant = "common"
	}

	p := &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       strings.Fields(cfg.Scope),
			Endpoint:     microsoft.AzureADEndpoint(tenant),
		},
		graphURL:   cfg.GraphURL,
		idExpr:     cfg.ProfileIDExpr,
		emailExpr:  cfg.ProfileEmailExpr,
		httpClient: httpClient,
	}

	if cfg.DiscoveryURL != "" && p.hasOpenIDScope() {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		issuer := strings.TrimSuffix(cfg.DiscoveryURL, "/")
		issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
		op, err := gooidc.NewProvider(ctx, issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery: %w", err)
		}
		p.verifier = op.Verifier(&gooidc.Config{ClientID: cfg.ClientID})
	}

	return p, nil
}

// ValidateRedirectURL rejects redirect URIs that are not fully resolved
// absolute URLs. An unresolved "${...}" placeholder means the deployment
// template was never substituted.
func ValidateRedirectURL(raw string) error {
	if raw == "" {
		return errors.New("redirect URL is required")
	}
	if strings.Contains(raw, "${") {
		return fmt.Errorf("redirect URL contains unresolved placeholder: %q", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse redirect URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("redirect URL must be absolute: %q", raw)
	}
	return nil
}

// AuthCodeURL builds the provider authorization URL for the given login hint.
func (p *Provider) AuthCodeURL(_ context.Context, in ports.AuthCodeInput) (string, error) {
	if in.State == "" {
		return "", errors.New("state is required")
	}
	if err := ValidateRedirectURL(p.config.RedirectURL); err != nil {
		return "", err
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("response_type", "code"),
	}
	if in.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", in.LoginHint))
	}
	if in.Nonce != "" && p.hasOpenIDScope() {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", in.Nonce))
	}
	return p.config.AuthCodeURL(in.State, opts...), nil
}

// Exchange trades the authorization code for a provider access token. The
// token endpoint call is an application/x-www-form-urlencoded POST performed
// by the oauth2 library with the configured client credentials.
func (p *Provider) Exchange(ctx context.Context, code, nonce string) (string, error) {
	if code == "" {
		return "", errors.New("authorization code is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code for token: %w", err)
	}

	// Verify the id_token nonce when OIDC verification is configured.
	if p.verifier != nil {
		if verifyErr := p.verifyIDToken(ctx, tok, nonce); verifyErr != nil {
			return "", verifyErr
		}
	}

	return tok.AccessToken, nil
}

// FetchProfile retrieves the provider profile and reduces it to the id and
// email the matching step needs. Field extraction goes through JMESPath so
// non-Graph providers can be mapped by configuration alone.
func (p *Provider) FetchProfile(ctx context.Context, accessToken string) (domainauth.Profile, error) {
	if accessToken == "" {
		return domainauth.Profile{}, errors.New("access token is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphURL, nil)
	if err != nil {
		return domainauth.Profile{}, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domainauth.Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProfileBody))
		return domainauth.Profile{}, fmt.Errorf("profile endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc any
	if decodeErr := json.NewDecoder(resp.Body).Decode(&doc); decodeErr != nil {
		return domainauth.Profile{}, fmt.Errorf("decode profile: %w", decodeErr)
	}

	return p.mapProfile(doc)
}

// mapProfile applies the configured JMESPath expressions to the profile
// document.
func (p *Provider) mapProfile(doc any) (domainauth.Profile, error) {
	id, err := searchString(p.idExpr, doc)
	if err != nil {
		return domainauth.Profile{}, fmt.Errorf("extract profile id: %w", err)
	}
	if id == "" {
		return domainauth.Profile{}, errors.New("profile document has no id")
	}

	email, err := searchString(p.emailExpr, doc)
	if err != nil {
		return domainauth.Profile{}, fmt.Errorf("extract profile email: %w", err)
	}

	return domainauth.Profile{ID: id, Email: email}, nil
}

func (p *Provider) verifyIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) error {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return errors.New("missing id_token in token response")
	}
	idTok, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return fmt.Errorf("verify id_token: %w", err)
	}
	if expectedNonce != "" && idTok.Nonce != expectedNonce {
		return errors.New("invalid nonce")
	}
	return nil
}

// hasOpenIDScope reports whether the configured scopes include "openid".
func (p *Provider) hasOpenIDScope() bool {
	for _, sc := range p.config.Scopes {
		if sc == "openid" {
			return true
		}
	}
	return false
}

// searchString evaluates a JMESPath expression and coerces the result to a
// string; null results become "".
func searchString(expr string, doc any) (string, error) {
	v, err := jmespath.Search(expr, doc)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	default:
		return fmt.Sprintf("%v", s), nil
	}
}
