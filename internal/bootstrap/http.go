package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/peoplestack/ems-api/config"
	httpx "github.com/peoplestack/ems-api/internal/http"
	"github.com/peoplestack/ems-api/internal/service"
)

// HTTPDeps contains everything needed to build and run the HTTP server.
type HTTPDeps struct {
	Config config.AppConfig
	Auth   *service.AuthService
	Logger *slog.Logger
}

// NewHTTPServer builds the HTTP server with the full router mounted.
func NewHTTPServer(deps HTTPDeps) *http.Server {
	router := httpx.NewRouter(httpx.RouterServices{
		Auth:        deps.Auth,
		Mode:        deps.Config.Mode,
		DevBypass:   deps.Config.Auth.DevBypass,
		FrontendURL: deps.Config.Auth.FrontendURL,
		Logger:      deps.Logger,
	})

	return &http.Server{
		Addr:              deps.Config.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.HTTP.ReadHeaderTimeout,
	}
}

// RunHTTPServer serves until the context is cancelled, then shuts down
// gracefully within the configured timeout.
func RunHTTPServer(ctx context.Context, srv *http.Server, cfg config.HTTPConfig, logger *slog.Logger) error {
	errCh := make(chan error, 1)

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return <-errCh
}
