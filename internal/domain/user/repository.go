package user

import (
	"context"
	"time"
)

// Summary is a user row as listed to administrators.
type Summary struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	LogCount  int       `json:"logCount"`
}

// Repository defines the interface for account persistence
type Repository interface {
	// Create inserts a new user; a duplicate email yields ErrAlreadyExists
	Create(ctx context.Context, u *User) error

	// FindByID retrieves a user by its ID
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByEmail retrieves a user by normalized email
	FindByEmail(ctx context.Context, email string) (*User, error)

	// UpdateRole persists a role change
	UpdateRole(ctx context.Context, id string, role Role) error

	// Delete removes a user together with its sessions and history
	Delete(ctx context.Context, id string) error

	// Count returns the number of users, optionally restricted to one role
	Count(ctx context.Context, role Role) (int, error)

	// List returns all users, oldest first
	List(ctx context.Context) ([]Summary, error)
}

// SessionRepository persists login sessions
type SessionRepository interface {
	SaveSession(ctx context.Context, s *Session) error
	FindSession(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
