package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/khanhnv2901/siteterminal/internal/checker"
	"github.com/khanhnv2901/siteterminal/internal/domain/history"
	"github.com/khanhnv2901/siteterminal/internal/domain/user"
	"github.com/khanhnv2901/siteterminal/internal/fetch"
	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// envelope merges {"ok": true} into payload. Objects are flattened;
// anything else is placed under "data".
func envelope(payload any) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage(`{"ok":true}`), nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("{}")) || bytes.Equal(b, []byte("null")):
		return json.RawMessage(`{"ok":true}`), nil
	case len(b) > 0 && b[0] == '{':
		out := make([]byte, 0, len(b)+10)
		out = append(out, `{"ok":true,`...)
		return append(out, b[1:]...), nil
	default:
		out := make([]byte, 0, len(b)+20)
		out = append(out, `{"ok":true,"data":`...)
		out = append(out, b...)
		return append(out, '}'), nil
	}
}

func writeOK(w http.ResponseWriter, status int, payload any) {
	body, err := envelope(payload)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, status, body)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var inputErr *checker.InputError
	var tooLarge *fetch.TooLargeError
	var tooMany *fetch.TooManyRedirectsError
	var timeout *fetch.TimeoutError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxBytes *http.MaxBytesError

	switch {
	case errors.As(err, &inputErr),
		errors.Is(err, apperrors.ErrInvalidURL),
		errors.Is(err, apperrors.ErrInvalidDomain),
		errors.Is(err, apperrors.ErrMissingParameter),
		errors.Is(err, apperrors.ErrBlockedHost),
		errors.Is(err, apperrors.ErrBlockedRange),
		errors.Is(err, apperrors.ErrUnresolvable),
		errors.Is(err, apperrors.ErrSelfDemotion),
		errors.Is(err, apperrors.ErrSelfDeletion),
		errors.Is(err, user.ErrEmailRequired),
		errors.Is(err, user.ErrInvalidEmail),
		errors.Is(err, user.ErrPasswordTooWeak),
		errors.Is(err, history.ErrMissingFields),
		errors.As(err, &syntaxErr),
		errors.As(err, &typeErr),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperrors.ErrUnauthorized),
		errors.Is(err, apperrors.ErrInvalidCredentials),
		errors.Is(err, apperrors.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrUnknownAnalyzer):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrUpstream), errors.As(err, &tooMany):
		return http.StatusBadGateway
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends {ok:false,error}. Unclassified and repository errors
// are logged and replaced by a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.requestLogger(r).Error("internal_server_error", zap.Error(err))
		msg = "internal server error"
	}
	writeFailure(w, status, msg)
}

// writeAnalyzerError is writeError for probe failures: network errors are
// reported as a one-line message instead of being hidden.
func (s *Server) writeAnalyzerError(w http.ResponseWriter, r *http.Request, name string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError && errors.Is(err, apperrors.ErrRepositoryOperation) {
		s.writeError(w, r, err)
		return
	}
	if status >= http.StatusInternalServerError {
		s.requestLogger(r).Warn("analyzer_failed", zap.String("analyzer", name), zap.Error(err))
	}
	writeFailure(w, status, err.Error())
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) writeStreamChunk(w http.ResponseWriter, data []byte) bool {
	if _, err := w.Write(data); err != nil {
		s.cfg.Logger.Error("failed to write stream chunk", zap.Error(err))
		return false
	}
	return true
}
