package history

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/khanhnv2901/siteterminal/internal/domain/user"
	"github.com/khanhnv2901/siteterminal/internal/infrastructure/persistence/sqlite"
)

func newTestService(t *testing.T) (*Service, *user.User, *user.User) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	users := sqlite.NewUserRepository(db)
	admin, _ := user.NewUser("admin@example.com", "Ada \"The Admin\"", "hash", user.RoleAdmin)
	member, _ := user.NewUser("member@example.com", "", "hash", user.RoleUser)
	for _, u := range []*user.User{admin, member} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	return NewService(sqlite.NewHistoryRepository(db), users), admin, member
}

func TestLogCommandAndStats(t *testing.T) {
	svc, admin, member := newTestService(t)
	ctx := context.Background()

	_ = svc.LogCommand(ctx, admin.ID(), "dns", "example.com", true)
	_ = svc.LogCommand(ctx, member.ID(), "dns", "example.org", false)
	_ = svc.LogCommand(ctx, member.ID(), "tls", "example.org", true)
	if err := svc.LogCommand(ctx, member.ID(), "", "x", true); err == nil {
		t.Error("expected missing fields error")
	}

	logs, err := svc.Logs(ctx, member.ID())
	if err != nil || len(logs) != 2 {
		t.Fatalf("Logs() = %+v, %v", logs, err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := Counts{TotalUsers: 2, TotalCommands: 3, AdminCount: 1, RegularUserCount: 1}
	if stats.Stats != want {
		t.Errorf("Stats = %+v, want %+v", stats.Stats, want)
	}
	if len(stats.RecentLogs) != 3 || stats.TopCommands[0].Command != "dns" || stats.TopCommands[0].Count != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRecordSearch(t *testing.T) {
	svc, admin, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.RecordSearch(ctx, admin.ID(), "headers", "https://example.com", map[string]any{"grade": "A"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.UID != "SR-0000001" || rec.ResultJSON != `{"grade":"A"}` {
		t.Errorf("record = %+v", rec)
	}
	raw, _ := svc.RecordSearch(ctx, admin.ID(), "dns", "example.com", json.RawMessage(`[1,2]`))
	if raw.ResultJSON != "[1,2]" {
		t.Errorf("raw ResultJSON = %s", raw.ResultJSON)
	}
	empty, _ := svc.RecordSearch(ctx, admin.ID(), "dns", "example.com", nil)
	if empty.ResultJSON != "{}" {
		t.Errorf("nil ResultJSON = %s", empty.ResultJSON)
	}

	mine, _ := svc.Searches(ctx, admin.ID())
	if len(mine) != 3 || mine[0].UID != "SR-0000003" {
		t.Errorf("Searches() = %+v", mine)
	}
	all, _ := svc.AllSearches(ctx, 2)
	if len(all) != 2 || all[0].UserEmail != "admin@example.com" {
		t.Errorf("AllSearches(2) = %+v", all)
	}
	full, err := svc.Search(ctx, rec.ID)
	if err != nil || full.ResultJSON != `{"grade":"A"}` {
		t.Errorf("Search() = %+v, %v", full, err)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{{0, 500}, {-3, 500}, {10, 10}, {5000, 2000}}
	for _, tt := range tests {
		if got := clampLimit(tt.in, AdminSearchDefault, AdminSearchMax); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestExport(t *testing.T) {
	svc, admin, member := newTestService(t)
	ctx := context.Background()
	_, _ = svc.RecordSearch(ctx, admin.ID(), "dns", "example.com", map[string]string{"a": "b"})
	_, _ = svc.RecordSearch(ctx, member.ID(), "tls", "example.org", nil)

	var buf strings.Builder
	n, err := svc.Export(ctx, &buf, ExportFilter{})
	if err != nil || n != 2 {
		t.Fatalf("Export() = %d, %v", n, err)
	}
	lines := strings.Split(buf.String(), "\r\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if lines[0] != "UID,Timestamp (UTC),User Email,User Name,Command,Target,Result JSON" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], `"SR-0000001","`) ||
		!strings.HasSuffix(lines[1], `"admin@example.com","Ada ""The Admin""","dns","example.com","{""a"":""b""}"`) {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], `"member@example.com","","tls","example.org","{}"`) {
		t.Errorf("row 2 = %q", lines[2])
	}

	buf.Reset()
	n, _ = svc.Export(ctx, &buf, ExportFilter{UserID: member.ID()})
	if n != 1 || !strings.Contains(buf.String(), "SR-0000002") {
		t.Errorf("filtered export = %d %q", n, buf.String())
	}
	buf.Reset()
	n, _ = svc.Export(ctx, &buf, ExportFilter{Command: "whois"})
	if n != 0 || strings.Contains(buf.String(), "\r\n") {
		t.Errorf("empty export = %d %q", n, buf.String())
	}
}

func TestExportFilename(t *testing.T) {
	got := ExportFilename(time.Date(2025, 7, 4, 23, 0, 0, 0, time.UTC))
	if got != "siteterminal-searches-2025-07-04.csv" {
		t.Errorf("ExportFilename() = %s", got)
	}
}
