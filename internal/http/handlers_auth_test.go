package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peoplestack/ems-api/config"
	domainauth "github.com/peoplestack/ems-api/internal/domain/auth"
	mocksauth "github.com/peoplestack/ems-api/internal/mocks/auth"
	"github.com/peoplestack/ems-api/internal/service"
	"github.com/peoplestack/ems-api/internal/token"
)

type routerFixture struct {
	handler   http.Handler
	svc       *service.AuthService
	provider  *mocksauth.MockIdentityProvider
	users     *mocksauth.MemoryUserStore
	directory *mocksauth.MemoryDirectory
	states    *mocksauth.MemoryStateStore
	codec     *token.Codec
}

const testFrontendURL = "https://ems.example.com"

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	codec := token.New(token.Options{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "ems-api",
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	f := &routerFixture{
		provider:  mocksauth.NewMockIdentityProvider(),
		users:     mocksauth.NewMemoryUserStore(),
		directory: mocksauth.NewMemoryDirectory(),
		states:    mocksauth.NewMemoryStateStore(),
		codec:     codec,
	}
	f.svc = service.NewAuthService(service.AuthServiceOptions{
		Provider:  f.provider,
		Users:     f.users,
		Directory: f.directory,
		States:    f.states,
		Codec:     codec,
	})
	f.handler = NewRouter(RouterServices{
		Auth:        f.svc,
		Mode:        config.RuntimeModeProduction,
		FrontendURL: testFrontendURL,
	})
	return f
}

// beginLogin drives GET /auth/login and returns the state issued with the
// provider redirect.
func (f *routerFixture) beginLogin(t *testing.T, identifier string) string {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login?identifier="+url.QueryEscape(identifier), nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestLoginRoute_RedirectsToProvider(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login?identifier=jdoe@example.com", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "jdoe@example.com", loc.Query().Get("login_hint"))
	assert.NotEmpty(t, loc.Query().Get("state"))
}

func TestLoginRoute_UnknownIdentifier(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login?identifier=EMP999", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Unknown employee code or email", body["message"])
}

func TestLoginRoute_MissingIdentifier(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRoute_EmployeeCodeResolution(t *testing.T) {
	f := newRouterFixture(t)
	contact := "Jane@X.com"
	f.directory.Add(domainauth.Employee{ID: 42, Code: "EMP042", ContactEmail: &contact})

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login?identifier=EMP042", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "jane@x.com", loc.Query().Get("login_hint"))
}

func TestRedirectRoute_Success(t *testing.T) {
	f := newRouterFixture(t)
	f.users.Add(domainauth.UserAccount{
		ID: 1, Role: domainauth.RoleEmployee, Email: "mock.user@example.com",
		ProviderUserID: "mock-provider-1", Active: true,
	})
	state := f.beginLogin(t, "mock.user@example.com")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/auth/redirect?code=the-code&state="+state, nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), testFrontendURL+"/auth/redirect?"))

	accessToken := loc.Query().Get("token")
	refreshToken := loc.Query().Get("refreshToken")
	require.NotEmpty(t, accessToken)
	require.NotEmpty(t, refreshToken)

	// The refresh token in the redirect is the one durably stored.
	stored := f.users.Get(1)
	require.NotNil(t, stored.RefreshToken)
	assert.Equal(t, refreshToken, *stored.RefreshToken)

	claims, err := f.codec.VerifyAccess(accessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
}

func TestRedirectRoute_MissingCode(t *testing.T) {
	f := newRouterFixture(t)
	state := f.beginLogin(t, "mock.user@example.com")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/redirect?state="+state, nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testFrontendURL+"/login?error=invalid_request", rec.Header().Get("Location"))
}

func TestRedirectRoute_UnknownState(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/redirect?code=c&state=never-issued", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testFrontendURL+"/login?error=invalid_request", rec.Header().Get("Location"))
}

func TestRedirectRoute_ExchangeFailure(t *testing.T) {
	f := newRouterFixture(t)
	state := f.beginLogin(t, "mock.user@example.com")
	f.provider.ExchangeFunc = func(context.Context, string, string) (string, error) {
		return "", errors.New("token endpoint returned 400")
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/redirect?code=bad&state="+state, nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testFrontendURL+"/login?error=auth_failed", rec.Header().Get("Location"))
}

func TestRedirectRoute_NoUserMapping(t *testing.T) {
	f := newRouterFixture(t)
	state := f.beginLogin(t, "stranger@example.com")
	f.provider.Profile = domainauth.Profile{ID: "stranger", Email: "stranger@example.com"}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/redirect?code=c&state="+state, nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testFrontendURL+"/login?error=not_found", rec.Header().Get("Location"))
}

// loginViaRouter completes the whole browser flow and returns the token pair.
func (f *routerFixture) loginViaRouter(t *testing.T) (accessToken, refreshToken string) {
	t.Helper()
	state := f.beginLogin(t, "mock.user@example.com")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/redirect?code=c&state="+state, nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc.Query().Get("token"), loc.Query().Get("refreshToken")
}

func TestRefreshRoute(t *testing.T) {
	f := newRouterFixture(t)
	f.users.Add(domainauth.UserAccount{
		ID: 1, Role: domainauth.RoleEmployee, Email: "mock.user@example.com",
		ProviderUserID: "mock-provider-1", Active: true,
	})
	_, refreshToken := f.loginViaRouter(t)

	body := strings.NewReader(`{"refreshToken":"` + refreshToken + `"}`)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	claims, err := f.codec.VerifyAccess(resp["accessToken"])
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
}

func TestRefreshRoute_MissingToken(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshRoute_InvalidToken(t *testing.T) {
	f := newRouterFixture(t)

	body := strings.NewReader(`{"refreshToken":"not-a-jwt"}`)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh", body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid refresh token", decodeEnvelope(t, rec)["message"])
}

func TestRefreshRoute_RotatedToken(t *testing.T) {
	f := newRouterFixture(t)
	f.users.Add(domainauth.UserAccount{
		ID: 1, Role: domainauth.RoleEmployee, Email: "mock.user@example.com",
		ProviderUserID: "mock-provider-1", Active: true,
	})
	_, firstRefresh := f.loginViaRouter(t)
	_, secondRefresh := f.loginViaRouter(t)
	require.NotEqual(t, firstRefresh, secondRefresh)

	body := strings.NewReader(`{"refreshToken":"` + firstRefresh + `"}`)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRoute(t *testing.T) {
	f := newRouterFixture(t)
	f.users.Add(domainauth.UserAccount{
		ID: 1, Role: domainauth.RoleEmployee, Email: "mock.user@example.com",
		ProviderUserID: "mock-provider-1", Active: true,
	})
	accessToken, refreshToken := f.loginViaRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Logged out successfully", body["message"])
	assert.Nil(t, f.users.Get(1).RefreshToken)

	// The refresh token issued at login is now dead.
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh",
		strings.NewReader(`{"refreshToken":"`+refreshToken+`"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRoute_RequiresAuth(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Access denied. No token provided.", decodeEnvelope(t, rec)["message"])
}

func TestStatusRoute(t *testing.T) {
	f := newRouterFixture(t)
	f.users.Add(domainauth.UserAccount{
		ID: 1, Role: domainauth.RoleManager, Email: "mock.user@example.com",
		ProviderUserID: "mock-provider-1", Active: true,
	})
	accessToken, _ := f.loginViaRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool                `json:"success"`
		User    domainauth.Identity `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(1), resp.User.ID)
	assert.Equal(t, domainauth.RoleManager, resp.User.Role)
}

func TestHealthRoute(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
