package msgraph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/peoplestack/ems-api/internal/ports"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider(ProviderConfig{
		ClientID:         "client-1",
		ClientSecret:     "secret-1",
		TenantID:         "tenant-1",
		RedirectURL:      "https://ems.example.com/auth/redirect",
		Scope:            "User.Read",
		GraphURL:         "https://graph.microsoft.com/v1.0/me",
		ProfileIDExpr:    "id",
		ProfileEmailExpr: "mail || userPrincipalName",
	})
	require.NoError(t, err)
	return p
}

func TestValidateRedirectURL(t *testing.T) {
	assert.NoError(t, ValidateRedirectURL("https://ems.example.com/auth/redirect"))

	assert.Error(t, ValidateRedirectURL(""))
	assert.Error(t, ValidateRedirectURL("${APP_BASE_URL}/auth/redirect"))
	assert.Error(t, ValidateRedirectURL("/auth/redirect"))
	assert.Error(t, ValidateRedirectURL("auth/redirect"))
}

func TestNewProvider_RejectsMisconfiguration(t *testing.T) {
	_, err := NewProvider(ProviderConfig{ClientSecret: "s", RedirectURL: "https://x", GraphURL: "https://g"})
	assert.ErrorContains(t, err, "client ID")

	_, err = NewProvider(ProviderConfig{
		ClientID: "c", ClientSecret: "s",
		RedirectURL: "${APP_BASE_URL}/auth/redirect",
		GraphURL:    "https://g",
	})
	assert.ErrorContains(t, err, "unresolved placeholder")

	_, err = NewProvider(ProviderConfig{
		ClientID: "c", ClientSecret: "s",
		RedirectURL:      "https://ems.example.com/auth/redirect",
		GraphURL:         "https://g",
		ProfileIDExpr:    "id[", // invalid JMESPath
		ProfileEmailExpr: "mail",
	})
	assert.ErrorContains(t, err, "profile id expression")
}

func TestAuthCodeURL(t *testing.T) {
	p := newTestProvider(t)

	raw, err := p.AuthCodeURL(context.Background(), ports.AuthCodeInput{
		LoginHint: "jdoe@example.com",
		State:     "state-1",
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "jdoe@example.com", q.Get("login_hint"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://ems.example.com/auth/redirect", q.Get("redirect_uri"))
	assert.Contains(t, u.Host, "login.microsoftonline.com")
	assert.Contains(t, u.Path, "tenant-1")
}

func TestAuthCodeURL_RequiresState(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.AuthCodeURL(context.Background(), ports.AuthCodeInput{LoginHint: "a@b.c"})
	assert.ErrorContains(t, err, "state is required")
}

func TestExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.FormValue("code"))
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	p := newTestProvider(t)
	p.config.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}

	tok, err := p.Exchange(context.Background(), "the-code", "")
	require.NoError(t, err)
	assert.Equal(t, "provider-token", tok)
}

func TestExchange_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := newTestProvider(t)
	p.config.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}

	_, err := p.Exchange(context.Background(), "bad-code", "")
	require.Error(t, err)
	assert.ErrorContains(t, err, "exchange code for token")
}

func TestExchange_RequiresCode(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.Exchange(context.Background(), "", "")
	assert.ErrorContains(t, err, "authorization code is required")
}

func TestFetchProfile_MailPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer provider-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"graph-1","mail":"jane@x.com","userPrincipalName":"jane_x.com#EXT@t.onmicrosoft.com"}`))
	}))
	defer srv.Close()

	p := newTestProvider(t)
	p.graphURL = srv.URL

	profile, err := p.FetchProfile(context.Background(), "provider-token")
	require.NoError(t, err)
	assert.Equal(t, "graph-1", profile.ID)
	assert.Equal(t, "jane@x.com", profile.Email)
}

func TestFetchProfile_FallsBackToUserPrincipalName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"graph-2","mail":null,"userPrincipalName":"jdoe@example.com"}`))
	}))
	defer srv.Close()

	p := newTestProvider(t)
	p.graphURL = srv.URL

	profile, err := p.FetchProfile(context.Background(), "provider-token")
	require.NoError(t, err)
	assert.Equal(t, "graph-2", profile.ID)
	assert.Equal(t, "jdoe@example.com", profile.Email)
}

func TestFetchProfile_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":"InvalidAuthenticationToken"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newTestProvider(t)
	p.graphURL = srv.URL

	_, err := p.FetchProfile(context.Background(), "expired-token")
	require.Error(t, err)
	assert.ErrorContains(t, err, "401")
	assert.ErrorContains(t, err, "InvalidAuthenticationToken")
}

func TestFetchProfile_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mail":"x@y.z"}`))
	}))
	defer srv.Close()

	p := newTestProvider(t)
	p.graphURL = srv.URL

	_, err := p.FetchProfile(context.Background(), "provider-token")
	assert.ErrorContains(t, err, "no id")
}
