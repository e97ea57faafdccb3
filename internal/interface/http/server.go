// Package http exposes the queue and matchmaking operations as a JSON API.
// Caller identity comes from the X-User-ID header set by the upstream auth
// proxy; operator routes additionally require an API key.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/internal/application/command"
	"github.com/studyhub/groupmatch/internal/application/matchmaking"
	"github.com/studyhub/groupmatch/internal/application/query"
	"github.com/studyhub/groupmatch/internal/infrastructure/metrics"
	"github.com/studyhub/groupmatch/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds handler execution.
	RequestTimeout time.Duration

	// MaxBodyBytes rejects larger request bodies.
	MaxBodyBytes int64

	// RateLimitPerSecond is the sustained per-user request rate on queue
	// endpoints (0 = disabled).
	RateLimitPerSecond float64
	RateLimitBurst     int

	// OperatorKeys guard the operator routes. Empty disables those routes.
	OperatorKeys []string

	// CORSOrigins are the browser origins allowed cross-origin access.
	CORSOrigins []string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:               ":8080",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		RequestTimeout:     10 * time.Second,
		MaxBodyBytes:       1 << 20,
		RateLimitPerSecond: 2,
		RateLimitBurst:     5,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// CourseRunner runs one matchmaking batch on demand.
type CourseRunner interface {
	RunCourse(ctx context.Context, courseID string) matchmaking.CourseOutcome
}

// Dependencies contains everything the handlers call into.
type Dependencies struct {
	EnqueueTicket       *command.EnqueueTicketHandler
	WithdrawTicket      *command.WithdrawTicketHandler
	EnqueueGroupTicket  *command.EnqueueGroupTicketHandler
	WithdrawGroupTicket *command.WithdrawGroupTicketHandler
	LeaveGroup          *command.LeaveGroupHandler
	CreateGroup         *command.CreateGroupHandler
	UpdatePreferences   *command.UpdatePreferencesHandler
	QueueStatus         *query.QueueStatusHandler

	// Runner serves the operator matchmaking route; nil disables it.
	Runner CourseRunner

	Health  handlers.HealthChecker
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     chi.Router
	httpServer *http.Server
	logger     *zap.Logger
	limiter    *userRateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(cfg Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Health == nil {
		deps.Health = handlers.NewNoopHealthChecker()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		router: chi.NewRouter(),
		logger: deps.Logger.Named("http"),
	}
	if cfg.RateLimitPerSecond > 0 {
		s.limiter = newUserRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(s.recoveryMiddleware)
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware)
	}
	r.Use(s.loggingMiddleware)
	r.Use(handlers.SecurityHeadersMiddleware)
	if len(s.config.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type", UserIDHeader, "X-API-Key", "Authorization"},
			ExposedHeaders: []string{"Retry-After"},
			MaxAge:         600,
		}).Handler)
	}

	r.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.config.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.config.RequestTimeout))
		}
		if s.config.MaxBodyBytes > 0 {
			r.Use(handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
		}

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			if s.limiter != nil {
				r.Use(s.limiter.Middleware)
			}

			r.Post("/courses/{courseID}/tickets", s.handleEnqueueTicket)
			r.Get("/courses/{courseID}/queue", s.handleQueueStatus)
			r.Delete("/tickets/{ticketID}", s.handleWithdrawTicket)
			r.Post("/groups/{groupID}/ticket", s.handleEnqueueGroupTicket)
			r.Delete("/groups/{groupID}/ticket", s.handleWithdrawGroupTicket)
			r.Delete("/groups/{groupID}/members/me", s.handleLeaveGroup)
			if s.deps.UpdatePreferences != nil {
				r.Put("/me/preferences", s.handleUpdatePreferences)
			}
		})

		if len(s.config.OperatorKeys) > 0 {
			auth := handlers.NewAPIKeyAuth("X-API-Key", s.config.OperatorKeys)
			r.Group(func(r chi.Router) {
				r.Use(auth.Middleware)
				r.Post("/courses/{courseID}/groups", s.handleCreateGroup)
				if s.deps.Runner != nil {
					r.Post("/courses/{courseID}/matchmaking", s.handleRunMatchmaking)
				}
			})
		}
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("http server listening", zap.String("addr", s.config.Addr))
	err := s.httpServer.ListenAndServe()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
