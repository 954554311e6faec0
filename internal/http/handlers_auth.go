package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	domainauth "github.com/peoplestack/ems-api/internal/domain/auth"
	apperrors "github.com/peoplestack/ems-api/internal/errors"
	"github.com/peoplestack/ems-api/internal/service"
)

// Authenticator is the middleware-facing surface of the auth service.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domainauth.Identity, error)
}

// AuthHandlers serves the login, callback, refresh, logout, and status routes.
type AuthHandlers struct {
	Svc         *service.AuthService
	FrontendURL string
	Logger      *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login handles GET /auth/login?identifier=... and redirects the caller to
// the identity provider.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.Svc.BeginLogin(r.Context(), r.URL.Query().Get("identifier"))
	if err != nil {
		if apperrors.IsValidation(err) || apperrors.IsNotFound(err) {
			WriteAppError(w, err)
			return
		}
		h.logger().ErrorContext(r.Context(), "login initiation failed", "err", err)
		WriteAppError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Redirect handles GET /auth/redirect, the provider callback. Success and
// failure both end in a browser redirect to the frontend; failures carry an
// error reason, never detail.
func (h *AuthHandlers) Redirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:  q.Get("code"),
		State: q.Get("state"),
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "login callback failed", "err", err)
		http.Redirect(w, r, h.FrontendURL+"/login?error="+redirectReason(err), http.StatusFound)
		return
	}

	v := url.Values{}
	v.Set("token", res.AccessToken)
	v.Set("refreshToken", res.RefreshToken)
	http.Redirect(w, r, h.FrontendURL+"/auth/redirect?"+v.Encode(), http.StatusFound)
}

// redirectReason maps a callback failure to the frontend error code.
func redirectReason(err error) string {
	switch {
	case apperrors.IsValidation(err):
		return "invalid_request"
	case apperrors.IsNotFound(err):
		return "not_found"
	default:
		return "auth_failed"
	}
}

// refreshRequest is the POST /auth/refresh body.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /auth/refresh and returns a fresh access token.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	accessToken, err := h.Svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if apperrors.IsInternal(err) || apperrors.GetCode(err) == "" {
			h.logger().ErrorContext(r.Context(), "token refresh failed", "err", err)
		}
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"accessToken": accessToken})
}

// Logout handles POST /auth/logout for an authenticated caller, clearing the
// persisted refresh token.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := GetIdentityFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "Unauthorized",
			Err:     apperrors.Unauthorized("Access denied. No token provided."),
		})
		return
	}

	if err := h.Svc.Logout(r.Context(), identity.ID); err != nil {
		h.logger().ErrorContext(r.Context(), "logout failed", "err", err, "user_id", identity.ID)
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

// Status handles GET /auth/status and echoes the authenticated identity.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	identity, ok := GetIdentityFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "Unauthorized",
			Err:     apperrors.Unauthorized("Access denied. No token provided."),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "user": identity})
}
