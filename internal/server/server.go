package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"attendance/internal/auth"
	"attendance/internal/config"
	"attendance/internal/logging"
)

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Auth        *auth.Service
	RateLimiter *auth.RateLimiter
	Audit       *auth.AuditLogger
	Logger      *slog.Logger
	Metrics     *Metrics
	Health      map[string]HealthCheck
}

type Server struct {
	Auth           *auth.Service
	RateLimiter    *auth.RateLimiter
	Audit          *auth.AuditLogger
	Config         config.Config
	Logger         *slog.Logger
	Metrics        *Metrics
	Health         map[string]HealthCheck
	trustedProxies []net.IPNet
	cookie         auth.CookieOptions
}

func NewServer(cfg config.Config, deps Deps) *Server {
	s := &Server{
		Auth:           deps.Auth,
		RateLimiter:    deps.RateLimiter,
		Audit:          deps.Audit,
		Config:         cfg,
		Logger:         deps.Logger,
		Metrics:        deps.Metrics,
		Health:         deps.Health,
		trustedProxies: parseProxyCIDRs(cfg.TrustedProxies),
		cookie:         auth.CookieOptions{Secure: cfg.CookieSecure},
	}
	if s.Logger == nil {
		s.Logger = logging.Discard()
	}
	if s.Metrics == nil {
		s.Metrics = NewMetrics()
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	formatter := &middleware.DefaultLogFormatter{
		Logger:  logging.StdLogger(s.Logger),
		NoColor: true,
	}
	r.Use(middleware.RequestLogger(formatter))
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.Config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.Metrics.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.Route("/api/auth", func(ar chi.Router) {
		ar.Post("/signup", s.handleSignup)
		ar.Post("/verify-email", s.handleVerifyEmail)
		ar.Post("/resend-verification", s.handleResendVerification)
		ar.Post("/login", s.handleLogin)
		ar.Post("/logout", s.handleLogout)
		ar.Post("/forgot-password", s.handleForgotPassword)
		ar.Post("/reset-password/{token}", s.handleResetPassword)

		ar.With(s.requireSession).Get("/check-auth", s.handleCheckAuth)
	})

	return r
}
