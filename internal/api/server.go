package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/flowpbx/sccpd/internal/api/middleware"
	"github.com/flowpbx/sccpd/internal/database"
	"github.com/flowpbx/sccpd/internal/sccp"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Options carries the collaborators of the admin API.
type Options struct {
	Dispatcher   *sccp.Dispatcher
	Provisioning database.ProvisioningRepository
	AdminUsers   database.AdminUserRepository
	SystemConfig database.SystemConfigRepository
	JWTSecret    []byte
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Version is reported by the health endpoint.
	Version string
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router  *chi.Mux
	opts    Options
	logger  *slog.Logger
	started time.Time

	apiLimiter  *middleware.IPRateLimiter
	authLimiter *middleware.IPRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(opts Options, logger *slog.Logger) *Server {
	logger = logger.With("component", "api")
	s := &Server{
		router:      chi.NewRouter(),
		opts:        opts,
		logger:      logger,
		started:     time.Now(),
		apiLimiter:  middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig(), logger),
		authLimiter: middleware.NewIPRateLimiter(middleware.AuthRateLimitConfig(), logger),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the rate limiter cleanup goroutines.
func (s *Server) Close() {
	s.apiLimiter.Stop()
	s.authLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger(s.logger))
	r.Use(middleware.Recoverer(s.logger))
	r.Use(middleware.SecurityHeaders)

	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.apiLimiter))

		r.Get("/health", s.handleHealth)
		r.With(middleware.RateLimit(s.authLimiter)).Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.opts.JWTSecret, s.logger))

			r.Get("/auth/me", s.handleMe)

			r.Get("/sessions", s.handleListSessions)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Get("/{id}", s.handleGetDevice)
				r.Put("/{id}/message", s.handleSetDeviceMessage)
			})

			r.Route("/lines", func(r chi.Router) {
				r.Get("/", s.handleListLines)
				r.Get("/{name}", s.handleGetLine)
				r.Get("/{name}/state", s.handleLineState)
			})

			r.Route("/channels", func(r chi.Router) {
				r.Get("/", s.handleListChannels)
				r.Post("/", s.handleRequestChannel)
				r.Get("/{callID}", s.handleGetChannel)
				r.Delete("/{callID}", s.handleHangupChannel)
			})

			r.Get("/config", s.handleGetConfig)
			r.Put("/config", s.handlePutConfig)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.opts.Dispatcher.Store()
	registered := 0
	for _, d := range st.Devices() {
		if d.State() == sccp.Registered {
			registered++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"version":            s.opts.Version,
		"uptime_seconds":     int64(time.Since(s.started).Seconds()),
		"sessions":           len(st.Sessions()),
		"registered_devices": registered,
		"channels":           s.opts.Dispatcher.Allocator().ChannelCount(),
	})
}
