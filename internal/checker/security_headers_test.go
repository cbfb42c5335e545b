package checker

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"testing"
)

func idealHeaders() map[string]string {
	return map[string]string{
		"content-security-policy":   "default-src 'self'",
		"strict-transport-security": "max-age=31536000; includeSubDomains; preload",
		"x-frame-options":           "DENY",
		"x-content-type-options":    "nosniff",
		"referrer-policy":           "strict-origin-when-cross-origin",
		"permissions-policy":        "geolocation=()",
	}
}

func TestGradeHeaders_NoHeaders(t *testing.T) {
	result := GradeHeaders(map[string]string{})
	if result.Score != 0 {
		t.Errorf("Score = %d, want 0", result.Score)
	}
	if result.Grade != "F" {
		t.Errorf("Grade = %q, want F", result.Grade)
	}
	if result.TotalCount != 7 || result.PassCount != 1 {
		t.Errorf("PassCount/TotalCount = %d/%d, want 1/7", result.PassCount, result.TotalCount)
	}
	if len(result.Issues) != 6 {
		t.Errorf("len(Issues) = %d, want 6", len(result.Issues))
	}
}

func TestGradeHeaders_Ideal(t *testing.T) {
	result := GradeHeaders(idealHeaders())
	if result.Score != 100 || result.Grade != "A+" {
		t.Errorf("Score/Grade = %d/%s, want 100/A+", result.Score, result.Grade)
	}
	if len(result.Issues) != 0 {
		t.Errorf("Issues = %+v, want none", result.Issues)
	}
	if result.PassCount != result.TotalCount {
		t.Errorf("PassCount = %d, want %d", result.PassCount, result.TotalCount)
	}
}

func TestGradeHeaders_Order(t *testing.T) {
	want := []string{
		"Content-Security-Policy",
		"Strict-Transport-Security",
		"X-Frame-Options",
		"X-Content-Type-Options",
		"Referrer-Policy",
		"Permissions-Policy",
		"CORS",
	}
	result := GradeHeaders(idealHeaders())
	for i, c := range result.Checks {
		if c.Name != want[i] {
			t.Errorf("Checks[%d].Name = %q, want %q", i, c.Name, want[i])
		}
	}
}

func TestGradeHeaders_PartialCredit(t *testing.T) {
	headers := idealHeaders()
	headers["content-security-policy"] = "script-src 'self' 'unsafe-inline'"

	result := GradeHeaders(headers)
	// (70 + 25*0.4) / 95
	if result.Score != 84 || result.Grade != "B" {
		t.Errorf("Score/Grade = %d/%s, want 84/B", result.Score, result.Grade)
	}
	if len(result.Issues) != 1 || result.Issues[0].Severity != SeverityCritical {
		t.Fatalf("Issues = %+v", result.Issues)
	}
	if result.Issues[0].Header != "Content-Security-Policy" {
		t.Errorf("Header = %q", result.Issues[0].Header)
	}
}

func TestGradeHeaders_MissingCSPWithoutCORS(t *testing.T) {
	headers := idealHeaders()
	delete(headers, "content-security-policy")

	result := GradeHeaders(headers)
	// 70 / 95: the absent CORS header drops out of the denominator.
	if result.Score != 74 || result.Grade != "C" {
		t.Errorf("Score/Grade = %d/%s, want 74/C", result.Score, result.Grade)
	}
}

func TestLeadingInt(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		parsed bool
	}{
		{"31536000", 31536000, true},
		{"600abc", 600, true},
		{"abc", 0, false},
		{"", 0, false},
		{"99999999999999999999", math.MaxInt, true},
	}
	for _, tt := range tests {
		got, ok := leadingInt(tt.in)
		if got != tt.want || ok != tt.parsed {
			t.Errorf("leadingInt(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.parsed)
		}
	}
}

func TestGradeHeaders_HSTSPreloadIsInformational(t *testing.T) {
	headers := idealHeaders()
	headers["strict-transport-security"] = "max-age=31536000; includeSubDomains"

	result := GradeHeaders(headers)
	if result.Score != 100 {
		t.Errorf("Score = %d, want 100", result.Score)
	}
	if !result.Checks[1].Passed {
		t.Error("HSTS check should pass without preload")
	}
	if len(result.Issues) != 1 || result.Issues[0].Severity != SeverityInfo {
		t.Errorf("Issues = %+v, want one info issue", result.Issues)
	}
}

func TestCheckHSTS(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{
			name:  "missing max-age",
			value: "includeSubDomains; preload",
			want:  []string{"HSTS missing max-age directive"},
		},
		{
			name:  "too low",
			value: "max-age=3600; includeSubDomains; preload",
			want:  []string{"HSTS max-age too low (3600s — minimum recommended is 6 months / 15552000s)"},
		},
		{
			name:  "acceptable",
			value: "max-age=15552000; includeSubDomains; preload",
			want:  []string{"HSTS max-age is acceptable but recommend ≥ 1 year (15552000s)"},
		},
		{
			name:  "quoted value",
			value: `max-age="31536000"; includeSubDomains; preload`,
			want:  nil,
		},
		{
			name:  "overflowing max-age",
			value: "max-age=99999999999999999999; includeSubDomains; preload",
			want:  nil,
		},
		{
			name:  "no subdomains",
			value: "max-age=31536000; preload",
			want:  []string{"HSTS missing 'includeSubDomains'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := checkHSTS(tt.value, true, nil)
			if len(findings) != len(tt.want) {
				t.Fatalf("findings = %+v, want %v", findings, tt.want)
			}
			for i, f := range findings {
				if f.message != tt.want[i] {
					t.Errorf("finding[%d] = %q, want %q", i, f.message, tt.want[i])
				}
			}
		})
	}
}

func TestCheckXFrameOptions(t *testing.T) {
	tests := []struct {
		value  string
		passed bool
		msg    string
	}{
		{"deny", true, ""},
		{" SAMEORIGIN ", true, ""},
		{"ALLOW-FROM https://example.com", false, "X-Frame-Options ALLOW-FROM is deprecated; use CSP frame-ancestors instead"},
		{"ALLOWALL", false, "X-Frame-Options has unexpected value: 'ALLOWALL'"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			findings := checkXFrameOptions(tt.value, true, nil)
			if (len(findings) == 0) != tt.passed {
				t.Fatalf("findings = %+v, passed want %v", findings, tt.passed)
			}
			if !tt.passed && findings[0].message != tt.msg {
				t.Errorf("message = %q, want %q", findings[0].message, tt.msg)
			}
		})
	}
}

func TestCheckReferrerPolicy(t *testing.T) {
	tests := []struct {
		value  string
		passed bool
	}{
		{"no-referrer", true},
		{"Strict-Origin-When-Cross-Origin", true},
		{"unsafe-url", false},
		{"", false},
		{"something-else", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			findings := checkReferrerPolicy(tt.value, true, nil)
			if (len(findings) == 0) != tt.passed {
				t.Errorf("checkReferrerPolicy(%q) = %+v", tt.value, findings)
			}
		})
	}
}

func TestCheckPermissionsPolicy(t *testing.T) {
	findings := checkPermissionsPolicy("camera=*, microphone=*, geolocation=(self)", true, nil)
	if len(findings) != 2 {
		t.Fatalf("findings = %+v, want 2", findings)
	}
	if findings[0].message != "Permissions-Policy allows camera to all origins" {
		t.Errorf("first finding = %q", findings[0].message)
	}
}

func TestGradeHeaders_CORSWildcardWithCredentials(t *testing.T) {
	headers := idealHeaders()
	headers["access-control-allow-origin"] = "*"
	headers["access-control-allow-credentials"] = "true"

	result := GradeHeaders(headers)
	cors := result.Checks[6]
	if cors.Passed || !cors.Present || cors.Value == nil || *cors.Value != "*" {
		t.Errorf("CORS check = %+v", cors)
	}
	if !strings.HasPrefix(cors.Issues[0], "CORS misconfiguration") {
		t.Errorf("issue = %q", cors.Issues[0])
	}
	// 95 + 5*0.4 = 97
	if result.Score != 97 || result.Grade != "A+" {
		t.Errorf("Score/Grade = %d/%s, want 97/A+", result.Score, result.Grade)
	}
}

func TestGradeHeaders_Deterministic(t *testing.T) {
	headers := idealHeaders()
	headers["x-frame-options"] = "ALLOW-FROM https://a.example"

	first, err := json.Marshal(GradeHeaders(headers))
	if err != nil {
		t.Fatal(err)
	}
	second, err := json.Marshal(GradeHeaders(headers))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("grading is not deterministic:\n%s\n%s", first, second)
	}
}

func TestAuditHeaders(t *testing.T) {
	audit := AuditHeaders(idealHeaders())
	if audit.Score != 100 || len(audit.Checks) != 7 {
		t.Errorf("audit = %+v", audit)
	}
	raw, _ := json.Marshal(audit.Checks[0])
	if strings.Contains(string(raw), "issues") {
		t.Errorf("compact check should not carry issues: %s", raw)
	}
}

func TestFlattenHeaders(t *testing.T) {
	h := http.Header{}
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")
	h.Set("X-Frame-Options", "DENY")

	flat := FlattenHeaders(h)
	if flat["set-cookie"] != "a=1, b=2" {
		t.Errorf("set-cookie = %q", flat["set-cookie"])
	}
	if flat["x-frame-options"] != "DENY" {
		t.Errorf("x-frame-options = %q", flat["x-frame-options"])
	}
}
