package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/khanhnv2901/siteterminal/internal/domain/history"
	"github.com/khanhnv2901/siteterminal/internal/domain/user"
	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
)

// Listing limits.
const (
	UserLogLimit         = 50
	UserSearchLimit      = 100
	AdminSearchDefault   = 500
	AdminSearchMax       = 2000
	ExportDefaultLimit   = 10000
	ExportMaxLimit       = 50000
	StatsRecentLogs      = 20
	StatsTopCommandLimit = 10
)

// ExportHeader is the first CSV row of an export.
var ExportHeader = []string{"UID", "Timestamp (UTC)", "User Email", "User Name", "Command", "Target", "Result JSON"}

// UserCounter is the part of user.Repository used for stats.
type UserCounter interface {
	Count(ctx context.Context, role user.Role) (int, error)
}

// Service provides command log, search record and export operations
type Service struct {
	repo  history.Repository
	users UserCounter
}

// NewService creates a new history service
func NewService(repo history.Repository, users UserCounter) *Service {
	return &Service{repo: repo, users: users}
}

// LogCommand records that userID ran command against target.
func (s *Service) LogCommand(ctx context.Context, userID, command, target string, success bool) error {
	l, err := history.NewCommandLog(userID, command, target, success)
	if err != nil {
		return err
	}
	if err := s.repo.SaveLog(ctx, l); err != nil {
		return fmt.Errorf("failed to save command log: %w", err)
	}
	return nil
}

// Logs returns a user's latest command logs.
func (s *Service) Logs(ctx context.Context, userID string) ([]history.CommandLog, error) {
	return s.repo.LogsByUser(ctx, userID, UserLogLimit)
}

// RecordSearch stores result, encoded as JSON, and returns the new record.
func (s *Service) RecordSearch(ctx context.Context, userID, command, target string, result any) (*history.SearchRecord, error) {
	var encoded string
	switch v := result.(type) {
	case json.RawMessage:
		encoded = string(v)
	case nil:
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}
		encoded = string(b)
	}
	rec, err := history.NewSearchRecord(userID, command, target, encoded)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveSearch(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save search record: %w", err)
	}
	return rec, nil
}

// Searches returns a user's latest searches without results.
func (s *Service) Searches(ctx context.Context, userID string) ([]history.SearchRecord, error) {
	return s.repo.SearchesByUser(ctx, userID, UserSearchLimit)
}

// AllSearches lists every user's searches newest first. limit <= 0 uses
// AdminSearchDefault and is capped at AdminSearchMax.
func (s *Service) AllSearches(ctx context.Context, limit int) ([]history.SearchRecord, error) {
	return s.repo.ListSearches(ctx, history.SearchFilter{Limit: clampLimit(limit, AdminSearchDefault, AdminSearchMax)}, false)
}

// Search returns one full record.
func (s *Service) Search(ctx context.Context, id int64) (*history.SearchRecord, error) {
	return s.repo.FindSearch(ctx, id)
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}

// Counts are the headline numbers of the admin dashboard.
type Counts struct {
	TotalUsers       int `json:"totalUsers"`
	TotalCommands    int `json:"totalCommands"`
	AdminCount       int `json:"adminCount"`
	RegularUserCount int `json:"regularUserCount"`
}

// Stats is the admin dashboard payload.
type Stats struct {
	Stats       Counts                 `json:"stats"`
	RecentLogs  []history.CommandLog   `json:"recentLogs"`
	TopCommands []history.CommandCount `json:"topCommands"`
}

// Stats aggregates usage across all users.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.users.Count(ctx, "")
	if err != nil {
		return nil, err
	}
	admins, err := s.users.Count(ctx, user.RoleAdmin)
	if err != nil {
		return nil, err
	}
	commands, err := s.repo.CountLogs(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.RecentLogs(ctx, StatsRecentLogs)
	if err != nil {
		return nil, err
	}
	top, err := s.repo.TopCommands(ctx, StatsTopCommandLimit)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Stats: Counts{
			TotalUsers:       total,
			TotalCommands:    commands,
			AdminCount:       admins,
			RegularUserCount: total - admins,
		},
		RecentLogs:  recent,
		TopCommands: top,
	}, nil
}

// ExportFilter selects the records written by Export.
type ExportFilter struct {
	Command string
	UserID  string
	Limit   int
}

// ExportFilename names a CSV export produced at now.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("%s-searches-%s.csv", constants.AppName, now.UTC().Format("2006-01-02"))
}

// Export writes matching search records, oldest first, as CSV. Data fields
// are always quoted; rows are CRLF separated. It returns the row count.
func (s *Service) Export(ctx context.Context, w io.Writer, f ExportFilter) (int, error) {
	recs, err := s.repo.ListSearches(ctx, history.SearchFilter{
		Command:   f.Command,
		UserID:    f.UserID,
		Limit:     clampLimit(f.Limit, ExportDefaultLimit, ExportMaxLimit),
		Ascending: true,
	}, true)
	if err != nil {
		return 0, fmt.Errorf("failed to load search records: %w", err)
	}

	if _, err := io.WriteString(w, strings.Join(ExportHeader, ",")); err != nil {
		return 0, err
	}
	for _, r := range recs {
		row := []string{
			quoteCSV(r.UID),
			quoteCSV(r.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z")),
			quoteCSV(r.UserEmail),
			quoteCSV(r.UserName),
			quoteCSV(r.Command),
			quoteCSV(r.Target),
			quoteCSV(r.ResultJSON),
		}
		if _, err := io.WriteString(w, "\r\n"+strings.Join(row, ",")); err != nil {
			return 0, err
		}
	}
	return len(recs), nil
}

func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
