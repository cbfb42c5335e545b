package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/khanhnv2901/siteterminal/internal/domain/user"
	"github.com/khanhnv2901/siteterminal/internal/infrastructure/persistence/sqlite"
	sharedErrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(t *testing.T) (*Service, *clock) {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	c := &clock{t: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
	return NewService(sqlite.NewUserRepository(db), WithCost(bcrypt.MinCost), WithSessionTTL(time.Hour), WithClock(c.now)), c
}

func TestRegisterFirstUserIsAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, "Admin@Example.com", "correct horse", "Admin")
	if err != nil {
		t.Fatal(err)
	}
	if !first.First || first.User.Role() != user.RoleAdmin || first.User.Email() != "admin@example.com" {
		t.Errorf("first registration = %+v role %s", first, first.User.Role())
	}

	second, err := svc.Register(ctx, "user@example.com", "correct horse", "")
	if err != nil {
		t.Fatal(err)
	}
	if second.First || second.User.Role() != user.RoleUser {
		t.Errorf("second registration role = %s", second.User.Role())
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "dup@example.com", "password1", ""); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name, email, password string
		want                  error
	}{
		{"missing email", "", "password1", user.ErrEmailRequired},
		{"missing password", "a@example.com", "", user.ErrEmailRequired},
		{"short password", "a@example.com", "short", user.ErrPasswordTooWeak},
		{"bad email", "not-an-email", "password1", user.ErrInvalidEmail},
		{"duplicate", "DUP@example.com", "password1", sharedErrors.ErrAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.email, tt.password, ""); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoginAuthenticateLogout(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	reg, _ := svc.Register(ctx, "a@example.com", "password1", "")

	if _, _, err := svc.Login(ctx, "a@example.com", "wrong-pass"); !errors.Is(err, sharedErrors.ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "password1"); !errors.Is(err, sharedErrors.ErrInvalidCredentials) {
		t.Errorf("unknown user err = %v", err)
	}

	sess, u, err := svc.Login(ctx, " A@example.com ", "password1")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID() != reg.User.ID() || sess.Token == "" {
		t.Fatalf("Login() = %+v, %+v", sess, u)
	}

	got, err := svc.Authenticate(ctx, sess.Token)
	if err != nil || got.ID() != u.ID() {
		t.Fatalf("Authenticate() = %v, %v", got, err)
	}
	if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, sharedErrors.ErrUnauthorized) {
		t.Errorf("empty token err = %v", err)
	}

	if err := svc.Logout(ctx, sess.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Authenticate(ctx, sess.Token); !errors.Is(err, sharedErrors.ErrUnauthorized) {
		t.Errorf("after logout err = %v", err)
	}

	sess, _, _ = svc.Login(ctx, "a@example.com", "password1")
	c.t = c.t.Add(2 * time.Hour)
	if _, err := svc.Authenticate(ctx, sess.Token); !errors.Is(err, sharedErrors.ErrSessionExpired) {
		t.Errorf("expired session err = %v", err)
	}
}

func TestAdminUserManagement(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	admin, _ := svc.Register(ctx, "admin@example.com", "password1", "")
	other, _ := svc.Register(ctx, "other@example.com", "password1", "")

	if err := svc.SetRole(ctx, admin.User.ID(), admin.User.ID(), user.RoleUser); !errors.Is(err, sharedErrors.ErrSelfDemotion) {
		t.Errorf("self demotion err = %v", err)
	}
	if err := svc.SetRole(ctx, admin.User.ID(), other.User.ID(), "OWNER"); err == nil {
		t.Error("expected invalid role error")
	}
	if err := svc.SetRole(ctx, admin.User.ID(), other.User.ID(), user.RoleAdmin); err != nil {
		t.Fatal(err)
	}
	if u, _ := svc.GetUser(ctx, other.User.ID()); !u.IsAdmin() {
		t.Error("role change not persisted")
	}

	if err := svc.DeleteUser(ctx, admin.User.ID(), admin.User.ID()); !errors.Is(err, sharedErrors.ErrSelfDeletion) {
		t.Errorf("self deletion err = %v", err)
	}
	if err := svc.DeleteUser(ctx, admin.User.ID(), other.User.ID()); err != nil {
		t.Fatal(err)
	}
	users, _ := svc.ListUsers(ctx)
	if len(users) != 1 {
		t.Errorf("ListUsers() = %+v", users)
	}
}

func TestPromoteAndSweep(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Register(ctx, "first@example.com", "password1", "")
	reg, _ := svc.Register(ctx, "second@example.com", "password1", "")

	u, err := svc.Promote(ctx, "second@example.com")
	if err != nil || !u.IsAdmin() || u.ID() != reg.User.ID() {
		t.Fatalf("Promote() = %v, %v", u, err)
	}
	if _, err := svc.Promote(ctx, "ghost@example.com"); !errors.Is(err, sharedErrors.ErrNotFound) {
		t.Errorf("Promote(unknown) err = %v", err)
	}

	_, _, _ = svc.Login(ctx, "second@example.com", "password1")
	c.t = c.t.Add(3 * time.Hour)
	if n, err := svc.SweepSessions(ctx); err != nil || n != 1 {
		t.Errorf("SweepSessions() = %d, %v", n, err)
	}
}
