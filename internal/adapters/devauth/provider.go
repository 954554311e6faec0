// Package devauth provides a config-driven IdentityProvider for local
// development. It short-circuits the OAuth round-trip: the authorization URL
// points straight back at our own callback, and Exchange accepts any code.
package devauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"

	domainauth "github.com/peoplestack/ems-api/internal/domain/auth"
	"github.com/peoplestack/ems-api/internal/ports"
)

// Config controls the dev identity provider. ProviderUserID and Email are
// required; CallbackURL defaults to the relative callback path.
type Config struct {
	ProviderUserID string
	Email          string
	CallbackURL    string
}

// Provider implements ports.IdentityProvider for local development without
// real identity-provider credentials.
type Provider struct {
	profile     domainauth.Profile
	callbackURL string
	token       string
}

// NewProvider constructs a dev identity provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.ProviderUserID == "" {
		return nil, errors.New("dev auth: ProviderUserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}

	callback := strings.TrimSpace(cfg.CallbackURL)
	if callback == "" {
		callback = "/auth/redirect"
	}

	token, err := randomToken(32)
	if err != nil {
		return nil, err
	}

	return &Provider{
		profile: domainauth.Profile{
			ID:    cfg.ProviderUserID,
			Email: strings.ToLower(cfg.Email),
		},
		callbackURL: callback,
		token:       token,
	}, nil
}

// AuthCodeURL points the browser straight back at our callback with a fixed
// code, skipping the provider hop entirely.
func (p *Provider) AuthCodeURL(_ context.Context, in ports.AuthCodeInput) (string, error) {
	q := url.Values{}
	q.Set("code", "dev")
	q.Set("state", in.State)
	return p.callbackURL + "?" + q.Encode(), nil
}

// Exchange accepts any code and returns the provider's session token. The
// nonce is unused; there is no id_token in the dev flow.
func (p *Provider) Exchange(_ context.Context, code, _ string) (string, error) {
	if code == "" {
		return "", errors.New("dev auth: empty authorization code")
	}
	return p.token, nil
}

// FetchProfile returns the configured identity when presented with the token
// issued by Exchange.
func (p *Provider) FetchProfile(_ context.Context, accessToken string) (domainauth.Profile, error) {
	if accessToken != p.token {
		return domainauth.Profile{}, errors.New("dev auth: unknown access token")
	}
	return p.profile, nil
}

var _ ports.IdentityProvider = (*Provider)(nil)

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
