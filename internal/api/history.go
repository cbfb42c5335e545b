package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	historyapp "github.com/khanhnv2901/siteterminal/internal/application/history"
	"github.com/khanhnv2901/siteterminal/internal/domain/user"
	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

type logRequest struct {
	Command string `json:"command"`
	Target  string `json:"target"`
	Success *bool  `json:"success"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	switch r.Method {
	case http.MethodPost:
		var req logRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		// Only an explicit false marks a failure.
		success := req.Success == nil || *req.Success
		if err := s.cfg.History.LogCommand(r.Context(), p.ID, req.Command, req.Target, success); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, nil)
	case http.MethodGet:
		logs, err := s.cfg.History.Logs(r.Context(), p.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"logs": logs})
	default:
		s.methodNotAllowed(w, r)
	}
}

type searchRequest struct {
	Command string          `json:"command"`
	Target  string          `json:"target"`
	Result  json.RawMessage `json:"result"`
}

func (s *Server) handleSearches(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	switch r.Method {
	case http.MethodPost:
		var req searchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		rec, err := s.cfg.History.RecordSearch(r.Context(), p.ID, req.Command, req.Target, req.Result)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"uid": rec.UID, "id": rec.ID})
	case http.MethodGet:
		recs, err := s.cfg.History.Searches(r.Context(), p.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"searches": recs})
	default:
		s.methodNotAllowed(w, r)
	}
}

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) handleAdminSearches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	recs, err := s.cfg.History.AllSearches(r.Context(), queryInt(r, "limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"searches": recs})
}

func (s *Server) handleAdminSearchByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/admin/searches/")
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.ToUpper(raw), "SR-"), 10, 64)
	if err != nil || id <= 0 {
		writeFailure(w, http.StatusBadRequest, "Invalid ID")
		return
	}
	rec, err := s.cfg.History.Search(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"search": rec})
}

func (s *Server) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	q := r.URL.Query()
	filter := historyapp.ExportFilter{
		Command: q.Get("command"),
		UserID:  q.Get("userId"),
		Limit:   queryInt(r, "limit"),
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, historyapp.ExportFilename(time.Now())))
	w.Header().Set("Cache-Control", "no-store")
	n, err := s.cfg.History.Export(r.Context(), w, filter)
	if err != nil {
		// Headers are already sent once rows were written.
		s.requestLogger(r).Error("export_failed", zap.Error(err))
		return
	}
	s.requestLogger(r).Info("export_completed",
		zap.String("admin", PrincipalFrom(r.Context()).ID),
		zap.Int("rows", n),
	)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	stats, err := s.cfg.History.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, stats)
}

type userUpdateRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	switch r.Method {
	case http.MethodGet:
		users, err := s.cfg.Auth.ListUsers(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"users": users})

	case http.MethodPatch:
		var req userUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		role, err := user.ParseRole(req.Role)
		if req.UserID == "" || err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid request.")
			return
		}
		if err := s.cfg.Auth.SetRole(r.Context(), p.ID, req.UserID, role); err != nil {
			s.writeError(w, r, err)
			return
		}
		updated, err := s.cfg.Auth.GetUser(r.Context(), req.UserID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.requestLogger(r).Info("user_role_changed",
			zap.String("admin", p.ID),
			zap.String("user_id", req.UserID),
			zap.String("role", string(role)),
		)
		writeOK(w, http.StatusOK, map[string]any{"user": map[string]any{
			"id": updated.ID(), "email": updated.Email(), "role": updated.Role(),
		}})

	case http.MethodDelete:
		var req userUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if req.UserID == "" {
			s.writeError(w, r, fmt.Errorf("missing userId: %w", apperrors.ErrMissingParameter))
			return
		}
		if err := s.cfg.Auth.DeleteUser(r.Context(), p.ID, req.UserID); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.requestLogger(r).Info("user_deleted", zap.String("admin", p.ID), zap.String("user_id", req.UserID))
		writeOK(w, http.StatusOK, nil)

	default:
		s.methodNotAllowed(w, r)
	}
}
