package checker

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func countSeverity(issues []Issue, sev Severity) int {
	n := 0
	for _, i := range issues {
		if i.Severity == sev {
			n++
		}
	}
	return n
}

func TestAnalyzeCORS_NoHeaders(t *testing.T) {
	result := AnalyzeCORS(map[string]string{"content-type": "text/html"})
	if !result.Safe {
		t.Error("expected Safe when no CORS headers are present")
	}
	if result.AllowOrigin != nil || result.AllowCredentials != nil {
		t.Errorf("expected nil header fields, got %+v", result)
	}
	if result.Summary != "No CORS headers present — cross-origin requests blocked by default." {
		t.Errorf("Summary = %q", result.Summary)
	}
	if len(result.Issues) != 0 {
		t.Errorf("Issues = %+v", result.Issues)
	}
}

func TestAnalyzeCORS_WildcardWithCredentials(t *testing.T) {
	result := AnalyzeCORS(map[string]string{
		"access-control-allow-origin":      "*",
		"access-control-allow-credentials": "true",
	})

	if got := countSeverity(result.Issues, SeverityCritical); got != 1 {
		t.Fatalf("critical issues = %d, want 1 (%+v)", got, result.Issues)
	}
	if result.Issues[0].Severity != SeverityCritical {
		t.Errorf("first issue should be the critical one: %+v", result.Issues[0])
	}
	if result.Safe {
		t.Error("expected Safe=false")
	}
	if result.Summary != "2 CORS issue(s) detected." {
		t.Errorf("Summary = %q", result.Summary)
	}
}

func TestAnalyzeCORS_Cases(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		wantSevs []Severity
		wantSafe bool
		wantMsg  string
	}{
		{
			name:     "wildcard only",
			headers:  map[string]string{"access-control-allow-origin": "*"},
			wantSevs: []Severity{SeverityMedium},
		},
		{
			name:     "null origin",
			headers:  map[string]string{"access-control-allow-origin": "null"},
			wantSevs: []Severity{SeverityHigh},
		},
		{
			name: "credentials with explicit origin",
			headers: map[string]string{
				"access-control-allow-origin":      "https://app.example.com",
				"access-control-allow-credentials": "TRUE",
			},
			wantSevs: []Severity{SeverityMedium},
		},
		{
			name: "risky methods only",
			headers: map[string]string{
				"access-control-allow-origin":  "https://app.example.com",
				"access-control-allow-methods": "get, patch, DELETE",
			},
			wantSevs: []Severity{SeverityLow},
			wantSafe: true,
			wantMsg:  "CORS allows PATCH, DELETE methods cross-origin — ensure this is intentional.",
		},
		{
			name: "sensitive exposed headers",
			headers: map[string]string{
				"access-control-allow-origin":   "https://app.example.com",
				"access-control-expose-headers": "X-Auth-Token, Content-Length, Authorization",
			},
			wantSevs: []Severity{SeverityHigh},
			wantMsg:  "Sensitive header(s) exposed via Access-Control-Expose-Headers: authorization, x-auth-token",
		},
		{
			name:     "explicit origin",
			headers:  map[string]string{"access-control-allow-origin": "https://app.example.com"},
			wantSevs: nil,
			wantSafe: true,
			wantMsg:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := AnalyzeCORS(tt.headers)
			if len(result.Issues) != len(tt.wantSevs) {
				t.Fatalf("Issues = %+v, want severities %v", result.Issues, tt.wantSevs)
			}
			for i, sev := range tt.wantSevs {
				if result.Issues[i].Severity != sev {
					t.Errorf("Issues[%d].Severity = %s, want %s", i, result.Issues[i].Severity, sev)
				}
			}
			if result.Safe != tt.wantSafe {
				t.Errorf("Safe = %v, want %v", result.Safe, tt.wantSafe)
			}
			if tt.wantMsg != "" && result.Issues[0].Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", result.Issues[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestCORSAnalyzer_Deterministic(t *testing.T) {
	h := http.Header{}
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, PUT")
	analyzer := &CORSAnalyzer{Fetcher: &stubFetcher{status: 200, headers: h}}

	target, _ := ParseURLTarget("https://example.com")
	first, err := analyzer.Analyze(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := analyzer.Analyze(context.Background(), target)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("verdicts differ:\n%s\n%s", a, b)
	}
}
