// Package api serves the analyzers, accounts, history and job endpoints
// over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	authapp "github.com/khanhnv2901/siteterminal/internal/application/auth"
	historyapp "github.com/khanhnv2901/siteterminal/internal/application/history"
	"github.com/khanhnv2901/siteterminal/internal/api/middleware"
	"github.com/khanhnv2901/siteterminal/internal/cache"
	"github.com/khanhnv2901/siteterminal/internal/checker"
	"github.com/khanhnv2901/siteterminal/internal/ratelimit"
	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "siteterminal_session"

// HealthService reports liveness and readiness.
type HealthService interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Registry *checker.Registry
	Auth     *authapp.Service
	History  *historyapp.Service
	Health   HealthService
	Jobs     *JobManager

	Cache   cache.Store
	Limiter *ratelimit.Limiter
	// RateLimit is the number of analyzer calls per client per RateWindow;
	// zero or less disables limiting.
	RateLimit  int
	RateWindow time.Duration

	// AuthToken, when set, authenticates X-Auth-Token callers as an admin.
	AuthToken   string
	CORSOrigins []string
	Logger      *zap.Logger
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

type Server struct {
	cfg     Config
	mux     *http.ServeMux
	handler http.Handler
}

// DefaultConfig returns the rate, window and cache defaults.
func DefaultConfig() Config {
	return Config{
		RateLimit:  constants.RateLimitMax,
		RateWindow: constants.RateLimitWindow,
	}
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = checker.NewRegistry(checker.Deps{})
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NoopStore{}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New()
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = constants.RateLimitWindow
	}
	if cfg.Jobs == nil {
		cfg.Jobs = NewJobManager(cfg.Logger)
	}

	srv := &Server{cfg: cfg, mux: http.NewServeMux()}
	srv.routes()
	// RequestID -> Logging -> CORS -> handler
	srv.handler = middleware.RequestID(middleware.Logging(cfg.Logger)(middleware.CORS(cfg.CORSOrigins)(srv.mux)))
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run sweeps expired rate-limit buckets, cache entries, sessions and
// finished jobs every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Server) sweep(ctx context.Context) {
	buckets := s.cfg.Limiter.Sweep()
	jobs := s.cfg.Jobs.Prune()
	var cached int
	if sw, ok := s.cfg.Cache.(interface{ Sweep() int }); ok {
		cached = sw.Sweep()
	}
	var sessions int64
	if s.cfg.Auth != nil {
		n, err := s.cfg.Auth.SweepSessions(ctx)
		if err != nil {
			s.cfg.Logger.Warn("session_sweep_failed", zap.Error(err))
		}
		sessions = n
	}
	if buckets+jobs+cached > 0 || sessions > 0 {
		s.cfg.Logger.Debug("sweep",
			zap.Int("rate_buckets", buckets),
			zap.Int("jobs", jobs),
			zap.Int("cache_entries", cached),
			zap.Int64("sessions", sessions),
		)
	}
}

func (s *Server) routes() {
	for _, name := range s.cfg.Registry.Names() {
		entry, _ := s.cfg.Registry.Lookup(name)
		s.mux.Handle("/api/"+name, s.analyzerHandler(entry))
	}

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/ready", s.handleReady)

	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/api/auth/session", s.handleSession)

	if s.cfg.History != nil {
		s.mux.Handle("/api/logs", s.requireUser(s.handleLogs))
		s.mux.Handle("/api/searches", s.requireUser(s.handleSearches))
		s.mux.Handle("/api/admin/searches", s.requireAdmin(s.handleAdminSearches))
		s.mux.Handle("/api/admin/searches/", s.requireAdmin(s.handleAdminSearchByID))
		s.mux.Handle("/api/admin/export", s.requireAdmin(s.handleAdminExport))
		s.mux.Handle("/api/admin/stats", s.requireAdmin(s.handleAdminStats))
	}
	if s.cfg.Auth != nil {
		s.mux.Handle("/api/admin/users", s.requireAdmin(s.handleAdminUsers))
	}

	s.mux.Handle("/api/jobs", s.requireUser(s.handleJobs))
	s.mux.Handle("/api/jobs/", s.requireUser(s.handleJobByID))
	s.mux.Handle("/api/jobs-stream", s.requireUser(s.handleJobStream))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Ping(r.Context()); err != nil {
			s.requestLogger(r).Error("readiness_check_failed", zap.Error(err))
			writeFailure(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeOK(w, http.StatusOK, map[string]string{"status": "ready"})
}

// requestLogger creates a logger with request context (request ID, method, path)
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.cfg.Logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}
