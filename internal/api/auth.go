package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/siteterminal/internal/domain/user"
	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

// ServicePrincipalID identifies requests authenticated by the static token.
const ServicePrincipalID = "service"

// Principal is the authenticated caller of a request.
type Principal struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name,omitempty"`
	Role  user.Role `json:"role"`
}

// IsAdmin reports whether the caller may use privileged endpoints.
func (p *Principal) IsAdmin() bool { return p != nil && p.Role == user.RoleAdmin }

func principalOf(u *user.User) *Principal {
	return &Principal{ID: u.ID(), Email: u.Email(), Name: u.Name(), Role: u.Role()}
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by requireUser or requireAdmin.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// sessionToken reads "Authorization: Bearer" first, then the session cookie.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// authenticate resolves the caller, or returns ErrUnauthorized.
func (s *Server) authenticate(r *http.Request) (*Principal, error) {
	if s.cfg.AuthToken != "" {
		if token := r.Header.Get("X-Auth-Token"); token != "" {
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1 {
				return &Principal{ID: ServicePrincipalID, Email: ServicePrincipalID, Role: user.RoleAdmin}, nil
			}
			return nil, apperrors.ErrUnauthorized
		}
	}
	if s.cfg.Auth == nil {
		return nil, apperrors.ErrUnauthorized
	}
	u, err := s.cfg.Auth.Authenticate(r.Context(), sessionToken(r))
	if err != nil {
		return nil, err
	}
	return principalOf(u), nil
}

func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.authenticate(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFrom(r.Context()).IsAdmin() {
			s.writeError(w, r, apperrors.ErrForbidden)
			return
		}
		next(w, r)
	})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Auth == nil {
		writeFailure(w, http.StatusNotFound, "accounts are not enabled")
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	reg, err := s.cfg.Auth.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	msg := "Account created successfully."
	if reg.First {
		msg = "Admin account created — you are the first user."
	}
	s.requestLogger(r).Info("user_registered", zap.String("user_id", reg.User.ID()), zap.String("role", string(reg.User.Role())))
	writeOK(w, http.StatusOK, map[string]any{
		"id":      reg.User.ID(),
		"email":   reg.User.Email(),
		"role":    reg.User.Role(),
		"message": msg,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Auth == nil {
		writeFailure(w, http.StatusNotFound, "accounts are not enabled")
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, u, err := s.cfg.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			s.requestLogger(r).Warn("login_failed")
		}
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeOK(w, http.StatusOK, map[string]any{
		"token":     sess.Token,
		"expiresAt": sess.ExpiresAt.Format(time.RFC3339),
		"user":      principalOf(u),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}
	if token := sessionToken(r); token != "" && s.cfg.Auth != nil {
		if err := s.cfg.Auth.Logout(r.Context(), token); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeOK(w, http.StatusOK, nil)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	p, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"user": p})
}
