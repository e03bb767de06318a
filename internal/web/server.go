// Package web serves the FraudGuard console.
package web

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/opensource-finance/fraudguard/internal/chart"
	"github.com/opensource-finance/fraudguard/internal/dashboard"
	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/obs"
	"github.com/opensource-finance/fraudguard/internal/session"
)

// Pinger is a dependency reported by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the console renders and drives.
type Deps struct {
	Session   *session.Controller
	Dashboard *dashboard.Controller
	Charts    *chart.Renderer
	Bus       domain.EventBus
	Metrics   *obs.Metrics

	// Checks are pinged by /health, keyed by component name.
	Checks map[string]Pinger

	Profile    string
	APIBaseURL string
	Version    string
}

// Server represents the console HTTP server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer builds the router. Form posts are CSRF protected.
func NewServer(cfg domain.ServerConfig, deps Deps) (*Server, error) {
	handler, err := NewHandler(deps)
	if err != nil {
		return nil, err
	}

	key, err := csrfKey(cfg.CSRFKey)
	if err != nil {
		return nil, err
	}
	protect := csrf.Protect(key,
		csrf.Secure(cfg.SecureCookies),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(handler.CSRFFailure)),
	)

	router := chi.NewRouter()
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(ProfileMiddleware(handler.profile))
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(SecureHeaders)
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Instrument)
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Group(func(r chi.Router) {
		r.Use(protect)

		r.Get("/login", handler.LoginPage)
		r.Post("/login", handler.Login)
		r.Get("/register", handler.RegisterPage)
		r.Post("/register", handler.Register)
		r.Post("/register/policy", handler.PasswordPolicy)
		r.Post("/logout", handler.Logout)

		r.Get("/api/state", handler.State)
		r.Get("/events", handler.Events)

		r.Group(func(r chi.Router) {
			r.Use(handler.RequireSession)

			r.Get("/", handler.Dashboard)
			r.Post("/predict", handler.Predict)
			r.Post("/history/refresh", handler.RefreshHistory)
			r.Post("/alert/dismiss", handler.DismissAlert)
			r.Get("/chart.png", handler.ChartPNG)
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}, nil
}

// csrfKey derives the 32-byte CSRF authentication key. An empty secret
// yields a random per-process key, which invalidates forms on restart.
func csrfKey(secret string) ([]byte, error) {
	if secret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate csrf key: %w", err)
		}
		return key, nil
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:], nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.server.RegisterOnShutdown(s.handler.closeStreams)

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		s.handler.closeStreams()
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
