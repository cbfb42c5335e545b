package cmd

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// runRoot executes the root command with args and returns stdout.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestRootRegistersCommands(t *testing.T) {
	want := []string{"serve", "check", "report", "user", "export", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("missing %q subcommand", name)
		}
	}
}

func TestInitConfigExplicitFileMustExist(t *testing.T) {
	isolateConfig(t)
	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { cfgFile = "" })
	if err := initConfig(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestInitConfigReadsFileAndEnv(t *testing.T) {
	isolateConfig(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ratelimit:\n  max: 9\nserver:\n  addr: 127.0.0.1:9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })
	t.Setenv("SHODAN_API_KEY", "from-env")

	if err := initConfig(); err != nil {
		t.Fatal(err)
	}
	cfg := loadCLIConfig()
	if cfg.RateLimit.Max != 9 || cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("file values not applied: %+v %+v", cfg.RateLimit, cfg.Server)
	}
	if cfg.Integrations.ShodanAPIKey != "from-env" {
		t.Errorf("shodan key = %q", cfg.Integrations.ShodanAPIKey)
	}
}

func TestVersionCommand(t *testing.T) {
	isolateConfig(t)
	out, err := runRoot(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "SiteTerminal version "+Version) {
		t.Errorf("output = %q", out)
	}
}

func TestUserAndExportCommands(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "cli.db")

	if _, err := runRoot(t, "user", "create", "--db", db, "--email", "ops@example.com", "--password", "password123", "--name", "Ops"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := runRoot(t, "user", "create", "--db", db, "--email", "ops@example.com", "--password", "password123"); err == nil {
		t.Fatal("duplicate create should fail")
	}

	out, err := runRoot(t, "user", "promote", "--db", db, "OPS@example.com")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !strings.Contains(out, "ADMIN") {
		t.Errorf("promote output = %q", out)
	}

	out, err = runRoot(t, "user", "list", "--db", db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "ops@example.com") {
		t.Errorf("list output = %q", out)
	}

	csvPath := filepath.Join(dir, "out.csv")
	if _, err := runRoot(t, "export", "--db", db, "--output", csvPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0][0] != "UID" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestExportPath(t *testing.T) {
	dir := t.TempDir()
	now := mustTime(t, "2025-06-07T08:00:00Z")

	got, err := exportPath("", dir, now)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "siteterminal-searches-2025-06-07.csv" || !filepath.IsAbs(got) {
		t.Errorf("path = %q", got)
	}
	if _, err := exportPath("../escape.csv", dir, now); err == nil {
		t.Error("traversal should be rejected")
	}
}
