package checker

import (
	"net/http"
	"testing"
)

func TestAnalyzeCookies(t *testing.T) {
	headers := http.Header{}
	headers.Add("Set-Cookie", "session=abc123; Path=/")
	headers.Add("Set-Cookie", "prefs=dark; Path=/; Secure")
	headers.Add("Set-Cookie", "locked=1; Path=/; Secure; HttpOnly; SameSite=Lax")

	findings := AnalyzeCookies(headers)
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(findings))
	}

	if !findings[0].MissingSecure || !findings[0].MissingHTTPOnly || !findings[0].MissingSameSite {
		t.Errorf("expected session cookie to miss every flag: %+v", findings[0])
	}

	if findings[1].MissingSecure {
		t.Errorf("expected prefs cookie to include Secure flag")
	}

	if !findings[1].MissingHTTPOnly {
		t.Errorf("expected prefs cookie to miss HttpOnly flag")
	}
}

func TestAnalyzeCookies_NoSetCookie(t *testing.T) {
	findings := AnalyzeCookies(http.Header{})
	if findings == nil || len(findings) != 0 {
		t.Fatalf("expected empty findings, got %v", findings)
	}
}

func TestAnalyzeCookies_SameSite(t *testing.T) {
	tests := []struct {
		name    string
		cookie  string
		missing bool
	}{
		{"absent", "a=1; Secure; HttpOnly", true},
		{"bare attribute", "a=1; Secure; HttpOnly; SameSite", true},
		{"unknown value", "a=1; Secure; HttpOnly; SameSite=Sometimes", true},
		{"lax", "a=1; Secure; HttpOnly; SameSite=Lax", false},
		{"strict", "a=1; Secure; HttpOnly; SameSite=Strict", false},
		{"none", "a=1; Secure; HttpOnly; SameSite=None", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			headers.Add("Set-Cookie", tt.cookie)
			findings := AnalyzeCookies(headers)
			got := len(findings) == 1 && findings[0].MissingSameSite
			if got != tt.missing {
				t.Errorf("MissingSameSite = %v, want %v (findings %+v)", got, tt.missing, findings)
			}
		})
	}
}
