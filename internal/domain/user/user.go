package user

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the privilege level of an account.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole accepts USER or ADMIN.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	ErrEmailRequired   = errors.New("email and password are required")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrPasswordTooWeak = errors.New("password must be at least 8 characters")
)

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// User is an account aggregate. The password hash never leaves the
// application layer.
type User struct {
	id           string
	email        string
	name         string
	passwordHash string
	role         Role
	createdAt    time.Time
}

// NewUser validates the address and returns an account holding an already
// hashed password.
func NewUser(email, name, passwordHash string, role Role) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if passwordHash == "" {
		return nil, ErrEmailRequired
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	return &User{
		id:           uuid.NewString(),
		email:        email,
		name:         strings.TrimSpace(name),
		passwordHash: passwordHash,
		role:         role,
		createdAt:    time.Now().UTC(),
	}, nil
}

// Reconstruct rebuilds a user from persisted data (for repository use)
func Reconstruct(id, email, name, passwordHash string, role Role, createdAt time.Time) *User {
	return &User{
		id:           id,
		email:        email,
		name:         name,
		passwordHash: passwordHash,
		role:         role,
		createdAt:    createdAt,
	}
}

// SetRole changes the account role.
func (u *User) SetRole(role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	u.role = role
	return nil
}

// IsAdmin reports whether the account may call privileged endpoints.
func (u *User) IsAdmin() bool { return u.role == RoleAdmin }

func (u *User) ID() string           { return u.id }
func (u *User) Email() string        { return u.email }
func (u *User) Name() string         { return u.name }
func (u *User) PasswordHash() string { return u.passwordHash }
func (u *User) Role() Role           { return u.role }
func (u *User) CreatedAt() time.Time { return u.createdAt }

// DisplayName falls back to the email when no name was given.
func (u *User) DisplayName() string {
	if u.name != "" {
		return u.name
	}
	return u.email
}
