package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/peoplestack/ems-api/internal/data"
	domainauth "github.com/peoplestack/ems-api/internal/domain/auth"
	apperrors "github.com/peoplestack/ems-api/internal/errors"
	"github.com/peoplestack/ems-api/internal/ports"
	"github.com/peoplestack/ems-api/internal/token"
)

// maxIdentifierLen bounds the login identifier before any lookup.
const maxIdentifierLen = 254

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider  ports.IdentityProvider
	Users     ports.UserStore
	Directory ports.EmployeeDirectory
	States    ports.LoginStateStore
	Codec     *token.Codec
	Logger    *slog.Logger
}

// AuthService orchestrates the login, callback, refresh, and logout flows by
// coordinating the identity provider, the user store, and the token codec.
type AuthService struct {
	provider  ports.IdentityProvider
	users     ports.UserStore
	directory ports.EmployeeDirectory
	states    ports.LoginStateStore
	codec     *token.Codec
	logger    *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		provider:  opts.Provider,
		users:     opts.Users,
		directory: opts.Directory,
		states:    opts.States,
		codec:     opts.Codec,
		logger:    logger.With("component", "auth_service"),
	}
}

// ResolveEmail resolves a user-supplied identifier to a canonical lowercase
// email. Identifiers containing "@" are treated as emails and returned
// without a directory call; anything else is treated as an employee code.
// Returns "" when the code is unknown or the employee has no contact email.
func (s *AuthService) ResolveEmail(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", nil
	}
	if strings.Contains(identifier, "@") {
		return strings.ToLower(identifier), nil
	}

	emp, err := s.directory.FindByCode(ctx, strings.ToUpper(identifier))
	if err != nil {
		if errors.Is(err, data.ErrEmployeeNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("look up employee code: %w", err)
	}
	if emp.ContactEmail == nil || *emp.ContactEmail == "" {
		return "", nil
	}
	return strings.ToLower(*emp.ContactEmail), nil
}

// BeginLogin resolves the identifier, persists one-shot login state, and
// returns the provider authorization URL to redirect the caller to.
func (s *AuthService) BeginLogin(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", apperrors.Validation("identifier is required")
	}
	if len(identifier) > maxIdentifierLen {
		return "", apperrors.Validation("identifier is too long")
	}

	email, err := s.ResolveEmail(ctx, identifier)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "identity resolution failed")
	}
	if email == "" {
		return "", apperrors.NotFound("Unknown employee code or email")
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	if saveErr := s.states.Save(ctx, ports.LoginState{State: state, Nonce: nonce, LoginHint: email}); saveErr != nil {
		return "", apperrors.Wrap(saveErr, apperrors.ErrCodeInternal, "persist login state")
	}

	authURL, err := s.provider.AuthCodeURL(ctx, ports.AuthCodeInput{
		LoginHint: email,
		State:     state,
		Nonce:     nonce,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "build provider authorization URL")
	}

	s.logger.InfoContext(ctx, "login initiated", "login_hint", email)
	return authURL, nil
}

// CompleteLoginInput groups the provider callback parameters.
type CompleteLoginInput struct {
	Code  string
	State string
}

// CompleteLoginResult carries the freshly minted token pair. The refresh
// token is already persisted when the result is returned.
type CompleteLoginResult struct {
	AccessToken  string
	RefreshToken string
}

// CompleteLogin runs the provider callback: redeem the login state, exchange
// the authorization code, fetch the profile, match a local user, mint both
// tokens, and persist the refresh token. The refresh-token write happens
// before returning so the caller can never hand out a token that was not
// durably stored.
//
// Error codes map to the frontend redirect reasons: validation means
// invalid_request, not_found means no user mapping, and anything else is a
// generic auth failure.
func (s *AuthService) CompleteLogin(ctx context.Context, in CompleteLoginInput) (*CompleteLoginResult, error) {
	if in.Code == "" {
		return nil, apperrors.Validation("authorization code is required")
	}
	if in.State == "" {
		return nil, apperrors.Validation("state parameter is required")
	}

	st, err := s.states.Get(ctx, in.State)
	if err != nil {
		s.logger.WarnContext(ctx, "login state redemption failed", "err", err)
		return nil, apperrors.Validation("unknown or expired login state")
	}

	providerToken, err := s.provider.Exchange(ctx, in.Code, st.Nonce)
	if err != nil {
		return nil, apperrors.Upstream("code exchange failed", err)
	}

	profile, err := s.provider.FetchProfile(ctx, providerToken)
	if err != nil {
		return nil, apperrors.Upstream("profile fetch failed", err)
	}

	user, err := s.users.FindByProviderIDOrEmail(ctx, profile.ID, profile.Email)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			s.logger.WarnContext(ctx, "no user mapping for authenticated identity",
				"provider_user_id", profile.ID, "email", profile.Email)
			return nil, apperrors.NotFound("no user mapping for authenticated identity")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "user lookup failed")
	}

	// A stale or empty stored provider id after an email match is rebound to
	// the id the provider just authenticated.
	if user.ProviderUserID != profile.ID {
		if rebindErr := s.users.RebindProviderID(ctx, user.ID, profile.ID); rebindErr != nil {
			return nil, apperrors.Wrap(rebindErr, apperrors.ErrCodeInternal, "rebind provider id")
		}
		s.logger.InfoContext(ctx, "rebound provider user id",
			"user_id", user.ID, "old", user.ProviderUserID, "new", profile.ID)
		user.ProviderUserID = profile.ID
	}

	refreshToken, err := s.codec.SignRefresh(user.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "sign refresh token")
	}

	accessToken, err := s.codec.SignAccess(token.AccessClaims{
		UserID:         user.ID,
		Role:           string(user.Role),
		EmployeeID:     user.EmployeeID,
		ProviderUserID: user.ProviderUserID,
		Email:          user.Email,
		RefreshToken:   refreshToken,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "sign access token")
	}

	// Overwriting the stored value invalidates every earlier refresh token
	// for this user, and through the blacklist check, every access token
	// bound to one.
	if persistErr := s.users.SetRefreshToken(ctx, user.ID, &refreshToken); persistErr != nil {
		return nil, apperrors.Wrap(persistErr, apperrors.ErrCodeInternal, "persist refresh token")
	}

	s.logger.InfoContext(ctx, "login completed", "user_id", user.ID, "role", user.Role)
	return &CompleteLoginResult{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Authenticate verifies an access token and returns the request identity.
// The user record is re-fetched on every call: a structurally valid token is
// rejected once the account is removed, deactivated, or its refresh token no
// longer matches the one embedded in the access token.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domainauth.Identity, error) {
	claims, err := s.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, mapVerifyError(err)
	}

	if claims.UserID == 0 || claims.Role == "" {
		return nil, apperrors.Unauthorized("Invalid or incomplete token payload")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return nil, apperrors.Unauthorized("User account not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "user liveness check failed")
	}
	if !user.Active {
		return nil, apperrors.Unauthorized("User account not found")
	}

	if claims.RefreshToken != "" {
		if user.RefreshToken == nil || *user.RefreshToken != claims.RefreshToken {
			return nil, apperrors.Unauthorized("Token has been invalidated")
		}
	}

	return &domainauth.Identity{
		ID:             claims.UserID,
		Role:           domainauth.Role(claims.Role),
		EmployeeID:     claims.EmployeeID,
		ProviderUserID: claims.ProviderUserID,
		Email:          claims.Email,
	}, nil
}

// Refresh validates a refresh token against the persisted value and mints a
// new access token bound to it.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperrors.Validation("refreshToken is required")
	}

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrNoSecret) {
			return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "refresh token secret not configured")
		}
		return "", apperrors.Unauthorized("Invalid refresh token")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return "", apperrors.Unauthorized("Invalid refresh token")
		}
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "user lookup failed")
	}

	// Exact match against the stored value. Anything else is a revoked or
	// replaced token.
	if !user.Active || user.RefreshToken == nil || *user.RefreshToken != refreshToken {
		return "", apperrors.Unauthorized("Invalid refresh token")
	}

	accessToken, err := s.codec.SignAccess(token.AccessClaims{
		UserID:         user.ID,
		Role:           string(user.Role),
		EmployeeID:     user.EmployeeID,
		ProviderUserID: user.ProviderUserID,
		Email:          user.Email,
		RefreshToken:   refreshToken,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "sign access token")
	}

	s.logger.InfoContext(ctx, "access token refreshed", "user_id", user.ID)
	return accessToken, nil
}

// Logout clears the caller's persisted refresh token, invalidating the
// outstanding refresh token and any access tokens bound to it.
func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	if err := s.users.SetRefreshToken(ctx, userID, nil); err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			// Already gone; logout is idempotent.
			return nil
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "clear refresh token")
	}
	s.logger.InfoContext(ctx, "logout completed", "user_id", userID)
	return nil
}

// mapVerifyError converts codec failures into client-facing auth errors.
// A missing secret is the one deployment error in the set and surfaces as
// internal rather than unauthorized.
func mapVerifyError(err error) error {
	switch {
	case errors.Is(err, token.ErrNoSecret):
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "access token secret not configured")
	case errors.Is(err, token.ErrExpired):
		return apperrors.Unauthorized("Token expired")
	case errors.Is(err, token.ErrNotYetValid):
		return apperrors.Unauthorized("Token not yet valid")
	case errors.Is(err, token.ErrMalformed):
		return apperrors.Unauthorized("Invalid token")
	default:
		return apperrors.Unauthorized("Invalid token")
	}
}
