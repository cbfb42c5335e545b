package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/khanhnv2901/siteterminal/internal/cache"
	"github.com/khanhnv2901/siteterminal/internal/checker"
	"github.com/khanhnv2901/siteterminal/internal/ratelimit"
	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

// allowRequest applies the per-client fixed window. On rejection it writes
// the 429 response with the remaining and reset headers.
func (s *Server) allowRequest(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.RateLimit <= 0 {
		return true
	}
	key := ratelimit.ClientKey(r)
	d := s.cfg.Limiter.Allow(key, s.cfg.RateLimit, s.cfg.RateWindow)
	if d.Allowed {
		return true
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.UnixMilli(), 10))
	s.requestLogger(r).Warn("rate_limit_exceeded", zap.String("client_key", key))
	writeFailure(w, http.StatusTooManyRequests, apperrors.ErrRateLimited.Error())
	return false
}

// analyzerHandler serves GET /api/{name}: rate limit, then the admin check
// for privileged analyzers, then input validation, cache and the probe.
func (s *Server) analyzerHandler(entry checker.Entry) http.Handler {
	name := entry.Name()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.methodNotAllowed(w, r)
			return
		}
		if !s.allowRequest(w, r) {
			return
		}
		if entry.Privileged {
			p, err := s.authenticate(r)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			if !p.IsAdmin() {
				s.writeError(w, r, apperrors.ErrForbidden)
				return
			}
		}

		q := r.URL.Query()
		target, err := entry.ParseTarget(q.Get("url"), q.Get("domain"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		key := cache.Key(name, target.String())
		if entry.CacheTTL > 0 {
			if cached, ok := s.cfg.Cache.Get(key); ok {
				w.Header().Set("X-Cache", "HIT")
				writeOK(w, http.StatusOK, cached)
				return
			}
		}

		verdict, err := entry.Analyzer.Analyze(r.Context(), target)
		if err != nil {
			s.writeAnalyzerError(w, r, name, err)
			return
		}
		if entry.CacheTTL > 0 {
			s.cfg.Cache.Set(key, verdict, entry.CacheTTL)
			w.Header().Set("X-Cache", "MISS")
		}
		writeOK(w, http.StatusOK, verdict)
	})
}
