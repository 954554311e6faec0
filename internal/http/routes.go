package httpx

import (
	"log/slog"
	"net/http"

	"github.com/peoplestack/ems-api/config"
	"github.com/peoplestack/ems-api/internal/service"
)

// RouterServices holds everything needed by the HTTP router.
type RouterServices struct {
	Auth        *service.AuthService
	Mode        config.RuntimeMode
	DevBypass   config.DevBypassConfig
	FrontendURL string
	Logger      *slog.Logger
}

// NewRouter creates and configures the HTTP router. Protected routes are
// gated by the auth middleware; business routers mount behind Protect.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{
		Svc:         services.Auth,
		FrontendURL: services.FrontendURL,
		Logger:      logger,
	}
	authMW := NewAuthMiddleware(AuthMiddlewareOptions{
		Auth:      services.Auth,
		Mode:      services.Mode,
		DevBypass: services.DevBypass,
		Logger:    logger,
	})

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	mux.Handle("GET /auth/login", http.HandlerFunc(authHandlers.Login))
	mux.Handle("GET /auth/redirect", http.HandlerFunc(authHandlers.Redirect))
	mux.Handle("POST /auth/refresh", http.HandlerFunc(authHandlers.Refresh))
	mux.Handle("POST /auth/logout", authMW.RequireAuth(http.HandlerFunc(authHandlers.Logout)))
	mux.Handle("GET /auth/status", authMW.RequireAuth(http.HandlerFunc(authHandlers.Status)))

	return Recover(logger)(Logging(logger)(mux))
}

// Protect chains the authentication gate and any further authorization
// middleware in front of a business handler. Used by resource routers that
// mount on top of this package.
func Protect(mw *AuthMiddleware, h http.Handler, outer ...func(http.Handler) http.Handler) http.Handler {
	for i := len(outer) - 1; i >= 0; i-- {
		h = outer[i](h)
	}
	return mw.RequireAuth(h)
}
