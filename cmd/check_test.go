package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/khanhnv2901/siteterminal/internal/checker"
	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

type fakeAnalyzer struct {
	name string
	data any
	err  error
}

func (f *fakeAnalyzer) Name() string { return f.name }

func (f *fakeAnalyzer) Analyze(context.Context, checker.Target) (any, error) {
	return f.data, f.err
}

func sampleResults() []checker.RunResult {
	return []checker.RunResult{
		{
			Target:    "https://example.com/",
			Analyzer:  "headers-grade",
			CheckedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			Duration:  12.5,
			Data: map[string]any{
				"grade": "B",
				"issues": []checker.Issue{
					{Severity: checker.SeverityHigh, Message: "Missing Content-Security-Policy"},
				},
			},
		},
		{Target: "https://down.example/", Analyzer: "headers-grade", Error: "connection refused"},
	}
}

func TestWriteResultsFormats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResults(&buf, formatJSON, sampleResults()); err != nil {
			t.Fatal(err)
		}
		var decoded []map[string]any
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatal(err)
		}
		if len(decoded) != 2 || decoded[1]["error"] != "connection refused" {
			t.Fatalf("decoded = %v", decoded)
		}
	})

	t.Run("yaml uses json field names", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResults(&buf, formatYAML, sampleResults()); err != nil {
			t.Fatal(err)
		}
		var decoded []map[string]any
		if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatal(err)
		}
		if decoded[0]["analyzer"] != "headers-grade" || decoded[0]["duration_ms"] != 12.5 {
			t.Fatalf("decoded = %v", decoded[0])
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResults(&buf, formatText, sampleResults()); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{"https://example.com/", "grade: B", "Missing Content-Security-Policy", "connection refused"} {
			if !strings.Contains(out, want) {
				t.Errorf("text output missing %q:\n%s", want, out)
			}
		}
	})
}

func TestParseTargets(t *testing.T) {
	entry := checker.Entry{Analyzer: &fakeAnalyzer{name: "dns"}, Input: checker.InputDomain}
	targets, err := parseTargets(entry, []string{"Example.com", "https://www.example.com/path"})
	if err != nil {
		t.Fatal(err)
	}
	if targets[0].Domain != "example.com" || targets[1].Domain != "www.example.com" {
		t.Fatalf("targets = %+v", targets)
	}

	_, err = parseTargets(entry, []string{"ok.example", " "})
	if !errors.Is(err, apperrors.ErrMissingParameter) {
		t.Fatalf("err = %v", err)
	}
}

func TestCountFailedAndRunError(t *testing.T) {
	if n := countFailed(sampleResults()); n != 1 {
		t.Fatalf("countFailed = %d", n)
	}
	err := &RunFailedError{Failed: 1, Total: 2}
	if err.Error() != "1 of 2 analyzer runs failed" {
		t.Errorf("Error() = %q", err.Error())
	}
	if (&RunFailedError{Failed: 1, Total: 1}).Error() != "analyzer run failed" {
		t.Error("single run message")
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"json", "yaml", "text"} {
		if !validFormat(f) {
			t.Errorf("%s should be valid", f)
		}
	}
	if validFormat("xml") {
		t.Error("xml should be rejected")
	}
	err := &UnknownFormatError{Format: "xml", Allowed: outputFormats}
	if !strings.Contains(err.Error(), `"xml"`) {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestPrintAnalyzerList(t *testing.T) {
	registry := checker.NewRegistryFromEntries(
		checker.Entry{Analyzer: &fakeAnalyzer{name: "status"}, Input: checker.InputURL},
		checker.Entry{Analyzer: &fakeAnalyzer{name: "whois"}, Input: checker.InputDomain, Privileged: true},
	)
	var buf bytes.Buffer
	printAnalyzerList(&buf, registry)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "status") || !strings.Contains(lines[1], "privileged") {
		t.Fatalf("list = %q", buf.String())
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("héllo", 10); got != "héllo" {
		t.Errorf("short = %q", got)
	}
	if got := truncateText("héllo world", 5); got != "héllo…" {
		t.Errorf("long = %q", got)
	}
}
