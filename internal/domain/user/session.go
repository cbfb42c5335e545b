package user

import (
	"time"

	"github.com/google/uuid"
)

// SessionTTL is how long a login stays valid.
const SessionTTL = 30 * 24 * time.Hour

// Session binds an opaque bearer token to a user.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewSession issues a random token valid for ttl from now.
func NewSession(userID string, now time.Time, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now.UTC(),
		ExpiresAt: now.UTC().Add(ttl),
	}
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
