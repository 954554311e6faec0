package bootstrap

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/peoplestack/ems-api/config"
	"github.com/peoplestack/ems-api/internal/adapters/devauth"
	"github.com/peoplestack/ems-api/internal/adapters/msgraph"
	redisadapter "github.com/peoplestack/ems-api/internal/adapters/redis"
	"github.com/peoplestack/ems-api/internal/data"
	"github.com/peoplestack/ems-api/internal/ports"
	"github.com/peoplestack/ems-api/internal/service"
	"github.com/peoplestack/ems-api/internal/token"
)

// AuthDeps contains the infrastructure needed to build the auth service.
type AuthDeps struct {
	Config config.AppConfig
	DB     *sql.DB
	Redis  goredis.UniversalClient
	Logger *slog.Logger
}

// BuildAuthService wires the identity provider, stores, and token codec
// into an AuthService.
func BuildAuthService(deps AuthDeps) (*service.AuthService, error) {
	provider, err := buildIdentityProvider(deps)
	if err != nil {
		return nil, fmt.Errorf("build identity provider: %w", err)
	}

	codec := token.New(token.Options{
		AccessSecret:  deps.Config.Auth.JWT.AccessSecret,
		RefreshSecret: deps.Config.Auth.JWT.RefreshSecret,
		Issuer:        deps.Config.Auth.JWT.Issuer,
		AccessTTL:     deps.Config.Auth.JWT.AccessTTL,
		RefreshTTL:    deps.Config.Auth.JWT.RefreshTTL,
	})

	return service.NewAuthService(service.AuthServiceOptions{
		Provider:  provider,
		Users:     data.NewUserRepo(deps.DB),
		Directory: data.NewEmployeeRepo(deps.DB),
		States:    redisadapter.NewStateStore(deps.Redis, deps.Config.Auth.LoginStateTTL),
		Codec:     codec,
		Logger:    deps.Logger,
	}), nil
}

// buildIdentityProvider selects the real provider when OAuth credentials are
// configured. Outside production, missing credentials fall back to the
// short-circuit dev provider so the login flow stays exercisable locally.
//
//nolint:ireturn // provider selection happens at wiring time.
func buildIdentityProvider(deps AuthDeps) (ports.IdentityProvider, error) {
	oauth := deps.Config.Auth.OAuth

	if strings.TrimSpace(oauth.ClientID) == "" && !deps.Config.IsProduction() {
		if deps.Logger != nil {
			deps.Logger.Warn("no OAuth client configured, using dev identity provider",
				"email", deps.Config.Auth.DevBypass.Email)
		}
		return devauth.NewProvider(devauth.Config{
			ProviderUserID: "dev-local",
			Email:          deps.Config.Auth.DevBypass.Email,
		})
	}

	redirectURL := strings.TrimSpace(oauth.RedirectURL)
	if redirectURL == "" {
		redirectURL = strings.TrimRight(deps.Config.HTTP.BaseURL, "/") + "/auth/redirect"
	}

	return msgraph.NewProvider(msgraph.ProviderConfig{
		ClientID:         oauth.ClientID,
		ClientSecret:     oauth.ClientSecret,
		TenantID:         oauth.TenantID,
		RedirectURL:      redirectURL,
		Scope:            oauth.Scope,
		GraphURL:         oauth.GraphURL,
		DiscoveryURL:     oauth.DiscoveryURL,
		ProfileIDExpr:    oauth.ProfileIDExpr,
		ProfileEmailExpr: oauth.ProfileEmailExpr,
	})
}
