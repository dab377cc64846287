// File: internal/server/server.go

// Package server is the HTTP front door: it accepts credentials, runs one
// exclusively-owned automation session per request, and returns either the
// token result or a normalized error object.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/tokensmith/internal/automation"
	"github.com/xkilldash9x/tokensmith/internal/browser"
	"github.com/xkilldash9x/tokensmith/internal/config"
	"github.com/xkilldash9x/tokensmith/internal/oauth"
)

// flowFunc runs one full login automation plus token exchange. It is a
// field so tests can exercise the HTTP surface without a real browser.
type flowFunc func(ctx context.Context, redirectURI string, creds automation.Credentials) (*oauth.TokenResult, *apiError)

// Server owns the HTTP listener and the per-request flow resources.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	router   *mux.Router
	sessions *semaphore.Weighted
	limiter  *clientLimiters
	runFlow  flowFunc
}

// New assembles the front door from configuration.
func New(cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger.Named("server"),
		sessions: semaphore.NewWeighted(cfg.Server.MaxSessions),
		limiter:  newClientLimiters(cfg.Server.RateLimit, cfg.Server.RateBurst),
	}
	s.runFlow = s.executeFlow

	s.router = mux.NewRouter()
	s.router.HandleFunc("/", s.handleLogin).Methods(http.MethodPost)
	s.router.HandleFunc(cfg.OAuth.RedirectPath, s.handleCallback).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until the context is canceled, then shuts down gracefully
// within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening.", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}

// executeFlow is the production flow: launch a browser, drive the login
// state machine, close the browser, then exchange the code. The browser and
// the HTTP client are never live at the same time.
func (s *Server) executeFlow(ctx context.Context, redirectURI string, creds automation.Credentials) (*oauth.TokenResult, *apiError) {
	driver, err := browser.Launch(ctx, s.cfg.Browser, browser.DefaultPersona, s.logger)
	if err != nil {
		s.logger.Error("Browser launch failed.", zap.Error(err))
		return nil, &apiError{
			Status:  http.StatusInternalServerError,
			Kind:    string(automation.KindAutomationFailed),
			Message: fmt.Sprintf("browser launch failed: %v", err),
		}
	}

	session := automation.NewSession(driver, s.cfg.Automation, s.cfg.OAuth.RedirectPath, s.logger)
	authorizeURL := oauth.BuildAuthorizeURL(
		s.cfg.OAuth.AuthorizeEndpoint(),
		s.cfg.OAuth.ClientID,
		redirectURI,
		s.cfg.OAuth.Scopes,
	)

	code, ferr := session.Run(ctx, authorizeURL, creds)
	if ferr != nil {
		return nil, &apiError{
			Status:  http.StatusInternalServerError,
			Kind:    string(ferr.Kind),
			Message: ferr.Message,
		}
	}

	exchanger := oauth.NewExchanger(s.cfg.OAuth, s.logger)
	result, xerr := exchanger.Exchange(ctx, code, redirectURI)
	if xerr != nil {
		return nil, &apiError{
			Status:  http.StatusInternalServerError,
			Kind:    xerr.Kind,
			Message: xerr.Message,
			RawBody: xerr.RawBody,
		}
	}
	return result, nil
}

// sessionAdmission reserves a browser slot, or reports that the host is at
// capacity. Waiting would just pile up headless Chrome processes.
func (s *Server) sessionAdmission() (release func(), ok bool) {
	if !s.sessions.TryAcquire(1) {
		return nil, false
	}
	return func() { s.sessions.Release(1) }, true
}

// redirectURI derives the provider's redirect target from the request, so
// the code always comes back to the instance actually serving the flow.
func (s *Server) redirectURI(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
	}
	host := r.Host
	if host == "" {
		host = fmt.Sprintf("localhost:%d", s.cfg.Server.Port)
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, s.cfg.OAuth.RedirectPath)
}

// loginTimeout bounds one full flow: automation waits plus token exchange,
// with headroom under the server write timeout.
func (s *Server) loginTimeout() time.Duration {
	if s.cfg.Server.WriteTimeout > 0 {
		return s.cfg.Server.WriteTimeout - time.Second
	}
	return 3 * time.Minute
}
