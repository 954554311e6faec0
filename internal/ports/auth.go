package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration
// in internal/service.

import (
	"context"

	domainauth "github.com/peoplestack/ems-api/internal/domain/auth"
)

// AuthCodeInput carries inputs for building a provider authorization request.
type AuthCodeInput struct {
	// LoginHint pre-fills the provider's account picker with the resolved email.
	LoginHint string
	// State is the opaque round-trip value persisted server-side.
	State string
	// Nonce is embedded in the id_token when the openid scope is requested.
	Nonce string
}

// IdentityProvider initiates and completes an authorization-code flow
// against an external OAuth identity provider.
type IdentityProvider interface {
	// AuthCodeURL builds the provider authorization URL. It validates the
	// configured redirect URI before use and fails on misconfiguration.
	AuthCodeURL(ctx context.Context, in AuthCodeInput) (string, error)

	// Exchange trades an authorization code for a provider access token.
	// The nonce, when non-empty, is checked against the id_token.
	Exchange(ctx context.Context, code, nonce string) (accessToken string, err error)

	// FetchProfile retrieves the provider user profile with the access token
	// obtained from Exchange.
	FetchProfile(ctx context.Context, accessToken string) (domainauth.Profile, error)
}

// UserStore is the persistent user-role store. The refresh-token column is
// the server-side source of truth for session liveness: overwriting it
// invalidates every previously issued refresh token for that user.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*domainauth.UserAccount, error)

	// FindByProviderIDOrEmail matches an active account by provider user id
	// first, falling back to the email the provider reported.
	FindByProviderIDOrEmail(ctx context.Context, providerUserID, email string) (*domainauth.UserAccount, error)

	// SetRefreshToken overwrites the stored refresh token; nil clears it.
	// Last write wins: a concurrent login leaves the loser's refresh token
	// inert.
	SetRefreshToken(ctx context.Context, id int64, refreshToken *string) error

	// RebindProviderID updates the stored provider user id after a profile
	// matched by email with a stale provider binding.
	RebindProviderID(ctx context.Context, id int64, providerUserID string) error
}

// EmployeeDirectory resolves employee codes during login initiation.
type EmployeeDirectory interface {
	// FindByCode looks up an employee by their (uppercased) employee code.
	FindByCode(ctx context.Context, code string) (*domainauth.Employee, error)
}

// LoginState is the transient record bridging login initiation and the
// provider callback.
type LoginState struct {
	State     string `json:"state"`
	Nonce     string `json:"nonce"`
	LoginHint string `json:"login_hint"`
}

// LoginStateStore persists pending login state for the duration of the
// provider round-trip.
type LoginStateStore interface {
	Save(ctx context.Context, st LoginState) error
	// Get returns the pending state and removes it; a state can be redeemed
	// exactly once.
	Get(ctx context.Context, state string) (LoginState, error)
}
