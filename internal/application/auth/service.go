package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/khanhnv2901/siteterminal/internal/domain/user"
	sharedErrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

// DefaultCost is the bcrypt work factor for new passwords.
const DefaultCost = 12

// Store is the persistence the service needs.
type Store interface {
	user.Repository
	user.SessionRepository
}

// Service provides account and session operations
type Service struct {
	store Store
	cost  int
	ttl   time.Duration
	now   func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithCost sets the bcrypt cost; tests use bcrypt.MinCost.
func WithCost(cost int) Option { return func(s *Service) { s.cost = cost } }

// WithSessionTTL overrides user.SessionTTL.
func WithSessionTTL(ttl time.Duration) Option { return func(s *Service) { s.ttl = ttl } }

// WithClock injects the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a new auth service
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, cost: DefaultCost, ttl: user.SessionTTL, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Registration is the outcome of Register.
type Registration struct {
	User *user.User
	// First is set when this account is the first one and became ADMIN.
	First bool
}

// Register creates an account. The very first account becomes ADMIN.
func (s *Service) Register(ctx context.Context, email, password, name string) (*Registration, error) {
	count, err := s.store.Count(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	role := user.RoleUser
	if count == 0 {
		role = user.RoleAdmin
	}
	u, err := s.CreateUser(ctx, email, password, name, role)
	if err != nil {
		return nil, err
	}
	return &Registration{User: u, First: role == user.RoleAdmin}, nil
}

// CreateUser creates an account with an explicit role.
func (s *Service) CreateUser(ctx context.Context, email, password, name string, role user.Role) (*user.User, error) {
	if user.NormalizeEmail(email) == "" || password == "" {
		return nil, user.ErrEmailRequired
	}
	if len(password) < user.MinPasswordLength {
		return nil, user.ErrPasswordTooWeak
	}
	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("an account with that email already exists: %w", sharedErrors.ErrAlreadyExists)
	} else if !errors.Is(err, sharedErrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	u, err := user.NewUser(email, name, string(hash), role)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return u, nil
}

// Login checks credentials and issues a session. Unknown email and wrong
// password are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (*user.Session, *user.User, error) {
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sharedErrors.ErrNotFound) {
			return nil, nil, sharedErrors.ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash()), []byte(password)) != nil {
		return nil, nil, sharedErrors.ErrInvalidCredentials
	}

	sess := user.NewSession(u.ID(), s.now(), s.ttl)
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("failed to save session: %w", err)
	}
	return sess, u, nil
}

// Logout revokes a session token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*user.User, error) {
	if token == "" {
		return nil, sharedErrors.ErrUnauthorized
	}
	sess, err := s.store.FindSession(ctx, token)
	if err != nil {
		if errors.Is(err, sharedErrors.ErrNotFound) {
			return nil, sharedErrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess.Expired(s.now()) {
		_ = s.store.DeleteSession(ctx, token)
		return nil, sharedErrors.ErrSessionExpired
	}
	u, err := s.store.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, sharedErrors.ErrNotFound) {
			return nil, sharedErrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

// SetRole changes another account's role. actorID may not demote itself.
func (s *Service) SetRole(ctx context.Context, actorID, userID string, role user.Role) error {
	if _, err := user.ParseRole(string(role)); err != nil {
		return err
	}
	if userID == actorID && role != user.RoleAdmin {
		return sharedErrors.ErrSelfDemotion
	}
	if err := s.store.UpdateRole(ctx, userID, role); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

// Promote makes the account with email an ADMIN.
func (s *Service) Promote(ctx context.Context, email string) (*user.User, error) {
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", email, err)
	}
	if err := s.store.UpdateRole(ctx, u.ID(), user.RoleAdmin); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	_ = u.SetRole(user.RoleAdmin)
	return u, nil
}

// DeleteUser removes another account and its history.
func (s *Service) DeleteUser(ctx context.Context, actorID, userID string) error {
	if userID == actorID {
		return sharedErrors.ErrSelfDeletion
	}
	if err := s.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// GetUser retrieves an account by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.store.FindByID(ctx, id)
}

// ListUsers returns all accounts, oldest first.
func (s *Service) ListUsers(ctx context.Context) ([]user.Summary, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SweepSessions drops expired sessions.
func (s *Service) SweepSessions(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now())
}
