// Package server wires the HTTP surface: the OAuth protocol endpoints, the
// first-party auth and user endpoints, the admin API, and a health check,
// each behind its own rate-limit group.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/zhaochy1990/auth/internal/auth"
	"github.com/zhaochy1990/auth/internal/config"
	"github.com/zhaochy1990/auth/internal/httputil"
)

// Server is the authd HTTP server.
type Server struct {
	cfg      *config.Config
	router   *chi.Mux
	http     *http.Server
	logger   *slog.Logger
	authSvc  *auth.Service
	limiters []*auth.RateLimiter
	version  string
}

// New creates a Server with middleware and routes configured.
func New(cfg *config.Config, logger *slog.Logger, authSvc *auth.Service, version string) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.CORSAllowedOrigins))

	s := &Server{
		cfg:     cfg,
		router:  r,
		logger:  logger,
		authSvc: authSvc,
		version: version,
	}

	window := time.Duration(cfg.RateLimit.WindowSecs) * time.Second
	authRL := s.newLimiter(cfg.RateLimit.Auth, window)
	oauthRL := s.newLimiter(cfg.RateLimit.OAuth, window)
	userRL := s.newLimiter(cfg.RateLimit.User, window)
	adminRL := s.newLimiter(cfg.RateLimit.Admin, window)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		oauthHandler := auth.NewOAuthHandler(authSvc, logger)
		r.Route("/oauth", func(r chi.Router) {
			r.Use(oauthRL.Middleware)
			r.Mount("/", oauthHandler.Routes())
		})

		authHandler := auth.NewHandler(authSvc, logger)
		r.Route("/api/auth", func(r chi.Router) {
			r.Use(authRL.Middleware)
			r.Mount("/", authHandler.Routes())
		})

		userHandler := auth.NewUserHandler(authSvc, logger)
		r.Route("/api/users", func(r chi.Router) {
			r.Use(userRL.Middleware)
			r.Mount("/", userHandler.Routes())
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminRL.Middleware)
			r.Use(auth.RequireAuth(authSvc))
			r.Use(auth.RequireAdmin(authSvc))

			r.Post("/applications", s.handleCreateApplication)
			r.Get("/applications", s.handleListApplications)
			r.Patch("/applications/{id}", s.handleUpdateApplication)
			r.Post("/applications/{id}/rotate-secret", s.handleRotateSecret)
			r.Get("/applications/{id}/providers", s.handleListProviders)
			r.Post("/applications/{id}/providers", s.handleAddProvider)
			r.Delete("/applications/{id}/providers/{provider_id}", s.handleRemoveProvider)

			r.Get("/users", s.handleListUsers)
			r.Post("/users", s.handleCreateUser)
			r.Get("/users/{id}", s.handleGetUser)
			r.Patch("/users/{id}", s.handleUpdateUser)
			r.Get("/users/{id}/accounts", s.handleListUserAccounts)
			r.Delete("/users/{id}/accounts/{provider_id}", s.handleAdminUnlinkAccount)

			r.Get("/stats", s.handleStats)
		})
	})

	return s
}

// newLimiter creates a rate limiter and registers it for shutdown.
func (s *Server) newLimiter(limit int, window time.Duration) *auth.RateLimiter {
	rl := auth.NewRateLimiter(limit, window)
	s.limiters = append(s.limiters, rl)
	return rl
}

// Router returns the chi router, primarily for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:    s.cfg.Address(),
		Handler: s.router,
	}

	s.logger.Info("server starting", "address", s.cfg.Address())
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Serve accepts connections from a caller-provided listener. Used for TLS,
// where the listener already terminates HTTPS.
func (s *Server) Serve(ln net.Listener) error {
	s.http = &http.Server{
		Handler: s.router,
	}

	s.logger.Info("server starting", "address", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server and the rate-limiter goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := time.Duration(s.cfg.Server.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("shutting down server", "timeout", timeout)
	for _, rl := range s.limiters {
		rl.Stop()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
