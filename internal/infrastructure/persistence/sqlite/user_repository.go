package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/khanhnv2901/siteterminal/internal/domain/user"
	sharedErrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

// UserRepository implements user.Repository and user.SessionRepository.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new SQLite-backed account repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, password, role, created_at`

func scanUser(row interface{ Scan(...any) error }) (*user.User, error) {
	var id, email, name, password, role, createdAt string
	if err := row.Scan(&id, &email, &name, &password, &role, &createdAt); err != nil {
		return nil, err
	}
	return user.Reconstruct(id, email, name, password, user.Role(role), parseTime(createdAt)), nil
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.db.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID(), u.Email(), u.Name(), u.PasswordHash(), string(u.Role()), formatTime(u.CreatedAt()))
	if err != nil {
		return wrap("create user", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	u, err := scanUser(r.db.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, wrap("find user", err)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	u, err := scanUser(r.db.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, user.NormalizeEmail(email)))
	if err != nil {
		return nil, wrap("find user", err)
	}
	return u, nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role user.Role) error {
	res, err := r.db.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id)
	if err != nil {
		return wrap("update role", err)
	}
	return requireRow(res, "update role")
}

// Delete removes the user and everything it owns in one transaction.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("delete user", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM sessions WHERE user_id = ?`,
		`DELETE FROM command_logs WHERE user_id = ?`,
		`DELETE FROM search_records WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return wrap("delete user", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return wrap("delete user", err)
	}
	if err := requireRow(res, "delete user"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrap("delete user", err)
	}
	return nil
}

func (r *UserRepository) Count(ctx context.Context, role user.Role) (int, error) {
	var n int
	var err error
	if role == "" {
		err = r.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	} else {
		err = r.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = ?`, string(role)).Scan(&n)
	}
	if err != nil {
		return 0, wrap("count users", err)
	}
	return n, nil
}

func (r *UserRepository) List(ctx context.Context) ([]user.Summary, error) {
	rows, err := r.db.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.name, u.role, u.created_at,
			(SELECT COUNT(*) FROM command_logs l WHERE l.user_id = u.id)
		FROM users u
		ORDER BY u.created_at ASC, u.rowid ASC`)
	if err != nil {
		return nil, wrap("list users", err)
	}
	defer func() { _ = rows.Close() }()

	users := []user.Summary{}
	for rows.Next() {
		var s user.Summary
		var role, createdAt string
		if err := rows.Scan(&s.ID, &s.Email, &s.Name, &role, &createdAt, &s.LogCount); err != nil {
			return nil, wrap("list users", err)
		}
		s.Role = user.Role(role)
		s.CreatedAt = parseTime(createdAt)
		users = append(users, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list users", err)
	}
	return users, nil
}

func (r *UserRepository) SaveSession(ctx context.Context, s *user.Session) error {
	_, err := r.db.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		s.Token, s.UserID, formatTime(s.CreatedAt), formatTime(s.ExpiresAt))
	if err != nil {
		return wrap("save session", err)
	}
	return nil
}

func (r *UserRepository) FindSession(ctx context.Context, token string) (*user.Session, error) {
	var s user.Session
	var createdAt, expiresAt string
	err := r.db.db.QueryRowContext(ctx,
		`SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&s.Token, &s.UserID, &createdAt, &expiresAt)
	if err != nil {
		return nil, wrap("find session", err)
	}
	s.CreatedAt = parseTime(createdAt)
	s.ExpiresAt = parseTime(expiresAt)
	return &s, nil
}

func (r *UserRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return wrap("delete session", err)
	}
	return nil
}

func (r *UserRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, wrap("sweep sessions", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sharedErrors.ErrNotFound)
	}
	return nil
}
