package sqlite

import (
	"context"
	"strings"

	"github.com/khanhnv2901/siteterminal/internal/domain/history"
)

// HistoryRepository implements history.Repository.
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new SQLite-backed history repository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) SaveLog(ctx context.Context, l *history.CommandLog) error {
	res, err := r.db.db.ExecContext(ctx,
		`INSERT INTO command_logs (user_id, command, target, success, created_at) VALUES (?, ?, ?, ?, ?)`,
		l.UserID, l.Command, l.Target, l.Success, formatTime(l.CreatedAt))
	if err != nil {
		return wrap("save log", err)
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

func (r *HistoryRepository) LogsByUser(ctx context.Context, userID string, limit int) ([]history.CommandLog, error) {
	return r.queryLogs(ctx, `
		SELECT l.id, l.user_id, l.command, l.target, l.success, l.created_at, '', ''
		FROM command_logs l
		WHERE l.user_id = ?
		ORDER BY l.id DESC LIMIT ?`, userID, limit)
}

func (r *HistoryRepository) RecentLogs(ctx context.Context, limit int) ([]history.CommandLog, error) {
	return r.queryLogs(ctx, `
		SELECT l.id, l.user_id, l.command, l.target, l.success, l.created_at,
			COALESCE(u.email, ''), COALESCE(u.name, '')
		FROM command_logs l LEFT JOIN users u ON u.id = l.user_id
		ORDER BY l.id DESC LIMIT ?`, limit)
}

func (r *HistoryRepository) queryLogs(ctx context.Context, query string, args ...any) ([]history.CommandLog, error) {
	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list logs", err)
	}
	defer func() { _ = rows.Close() }()

	logs := []history.CommandLog{}
	for rows.Next() {
		var l history.CommandLog
		var createdAt string
		if err := rows.Scan(&l.ID, &l.UserID, &l.Command, &l.Target, &l.Success, &createdAt, &l.UserEmail, &l.UserName); err != nil {
			return nil, wrap("list logs", err)
		}
		l.CreatedAt = parseTime(createdAt)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list logs", err)
	}
	return logs, nil
}

func (r *HistoryRepository) CountLogs(ctx context.Context) (int, error) {
	var n int
	if err := r.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM command_logs`).Scan(&n); err != nil {
		return 0, wrap("count logs", err)
	}
	return n, nil
}

func (r *HistoryRepository) TopCommands(ctx context.Context, limit int) ([]history.CommandCount, error) {
	rows, err := r.db.db.QueryContext(ctx, `
		SELECT command, COUNT(*) AS n FROM command_logs
		GROUP BY command ORDER BY n DESC, command ASC LIMIT ?`, limit)
	if err != nil {
		return nil, wrap("top commands", err)
	}
	defer func() { _ = rows.Close() }()

	out := []history.CommandCount{}
	for rows.Next() {
		var c history.CommandCount
		if err := rows.Scan(&c.Command, &c.Count); err != nil {
			return nil, wrap("top commands", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("top commands", err)
	}
	return out, nil
}

func (r *HistoryRepository) SaveSearch(ctx context.Context, rec *history.SearchRecord) error {
	res, err := r.db.db.ExecContext(ctx,
		`INSERT INTO search_records (user_id, command, target, result_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.UserID, rec.Command, rec.Target, rec.ResultJSON, formatTime(rec.CreatedAt))
	if err != nil {
		return wrap("save search", err)
	}
	rec.ID, _ = res.LastInsertId()
	rec.UID = history.FormatUID(rec.ID)
	return nil
}

func (r *HistoryRepository) SearchesByUser(ctx context.Context, userID string, limit int) ([]history.SearchRecord, error) {
	return r.querySearches(ctx, `
		SELECT s.id, s.user_id, s.command, s.target, '', s.created_at, '', ''
		FROM search_records s
		WHERE s.user_id = ?
		ORDER BY s.id DESC LIMIT ?`, userID, limit)
}

func (r *HistoryRepository) FindSearch(ctx context.Context, id int64) (*history.SearchRecord, error) {
	recs, err := r.querySearches(ctx, `
		SELECT s.id, s.user_id, s.command, s.target, s.result_json, s.created_at,
			COALESCE(u.email, ''), COALESCE(u.name, '')
		FROM search_records s LEFT JOIN users u ON u.id = s.user_id
		WHERE s.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, wrap("find search", errNoRows)
	}
	return &recs[0], nil
}

func (r *HistoryRepository) ListSearches(ctx context.Context, f history.SearchFilter, withResult bool) ([]history.SearchRecord, error) {
	var b strings.Builder
	b.WriteString(`SELECT s.id, s.user_id, s.command, s.target, `)
	if withResult {
		b.WriteString(`s.result_json`)
	} else {
		b.WriteString(`''`)
	}
	b.WriteString(`, s.created_at, COALESCE(u.email, ''), COALESCE(u.name, '')
		FROM search_records s LEFT JOIN users u ON u.id = s.user_id WHERE 1 = 1`)

	var args []any
	if f.Command != "" {
		b.WriteString(` AND s.command = ?`)
		args = append(args, f.Command)
	}
	if f.UserID != "" {
		b.WriteString(` AND s.user_id = ?`)
		args = append(args, f.UserID)
	}
	if f.Ascending {
		b.WriteString(` ORDER BY s.id ASC`)
	} else {
		b.WriteString(` ORDER BY s.id DESC`)
	}
	if f.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}
	return r.querySearches(ctx, b.String(), args...)
}

func (r *HistoryRepository) querySearches(ctx context.Context, query string, args ...any) ([]history.SearchRecord, error) {
	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list searches", err)
	}
	defer func() { _ = rows.Close() }()

	recs := []history.SearchRecord{}
	for rows.Next() {
		var s history.SearchRecord
		var createdAt string
		if err := rows.Scan(&s.ID, &s.UserID, &s.Command, &s.Target, &s.ResultJSON, &createdAt, &s.UserEmail, &s.UserName); err != nil {
			return nil, wrap("list searches", err)
		}
		s.UID = history.FormatUID(s.ID)
		s.CreatedAt = parseTime(createdAt)
		recs = append(recs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list searches", err)
	}
	return recs, nil
}
