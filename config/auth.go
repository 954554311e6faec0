package config

import (
	"fmt"
	"strings"
	"time"
)

// RuntimeMode represents the runtime environment of the application.
type RuntimeMode string

const (
	// RuntimeModeProduction disables every development escape hatch.
	RuntimeModeProduction RuntimeMode = "production"
	// RuntimeModeDevelopment enables the dev-bypass token and relaxed logging.
	RuntimeModeDevelopment RuntimeMode = "development"
	// RuntimeModeTest behaves like development; used by automated suites.
	RuntimeModeTest RuntimeMode = "test"
)

// UnmarshalText implements encoding.TextUnmarshaler for RuntimeMode.
func (m *RuntimeMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "production", "development", "test":
		*m = RuntimeMode(v)
		return nil
	default:
		return fmt.Errorf("invalid RuntimeMode: %q (valid options: production, development, test)", v)
	}
}

// JWTConfig contains signing configuration for both token classes.
//
// AccessSecret and RefreshSecret are deliberately not defaulted: an empty
// secret is a deployment error and is reported as a 500 on the request path,
// never silently substituted.
type JWTConfig struct {
	AccessSecret  string        `env:"ACCESS_SECRET"`
	RefreshSecret string        `env:"REFRESH_SECRET"`
	AccessTTL     time.Duration `env:"ACCESS_TTL"  envDefault:"1h"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
	Issuer        string        `env:"ISSUER"      envDefault:"ems-api"`
}

// OAuthConfig contains the identity-provider (Microsoft identity platform
// style) client configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	TenantID     string `env:"TENANT_ID"     envDefault:"common"`
	RedirectURL  string `env:"REDIRECT_URL"`
	Scope        string `env:"SCOPE"         envDefault:"User.Read"`

	// GraphURL is the profile endpoint queried after the code exchange.
	GraphURL string `env:"GRAPH_URL" envDefault:"https://graph.microsoft.com/v1.0/me"`

	// DiscoveryURL enables id_token verification through OIDC discovery when
	// the configured scope includes "openid". Optional.
	DiscoveryURL string `env:"DISCOVERY_URL"`

	// ProfileIDExpr and ProfileEmailExpr are JMESPath expressions applied to
	// the profile payload. The defaults match the Microsoft Graph /me shape.
	ProfileIDExpr    string `env:"PROFILE_ID_EXPR"    envDefault:"id"`
	ProfileEmailExpr string `env:"PROFILE_EMAIL_EXPR" envDefault:"mail || userPrincipalName"`
}

// DevBypassConfig describes the fixed sentinel token accepted in
// non-production environments, and the identity it authenticates as.
type DevBypassConfig struct {
	Token  string `env:"TOKEN"`
	UserID int64  `env:"USER_ID" envDefault:"1"`
	Role   string `env:"ROLE"    envDefault:"admin"`
	Email  string `env:"EMAIL"   envDefault:"dev@example.com"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// JWT signing configuration for access and refresh tokens.
	JWT JWTConfig `envPrefix:"JWT_"`

	// OAuth client configuration for the external identity provider.
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevBypass is only honored outside production; see middleware.
	DevBypass DevBypassConfig `envPrefix:"DEV_BYPASS_"`

	// FrontendURL is the base URL the callback handler redirects back to.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// LoginStateTTL bounds how long a pending login (issued state) stays valid.
	LoginStateTTL time.Duration `env:"LOGIN_STATE_TTL" envDefault:"10m"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	a.FrontendURL = strings.TrimRight(a.FrontendURL, "/")
	if a.LoginStateTTL <= 0 {
		a.LoginStateTTL = 10 * time.Minute
	}
	if a.JWT.AccessTTL <= 0 {
		a.JWT.AccessTTL = time.Hour
	}
	if a.JWT.RefreshTTL <= 0 {
		a.JWT.RefreshTTL = 168 * time.Hour
	}
}
