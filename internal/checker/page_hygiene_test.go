package checker

import (
	"crypto/tls"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestAnalyzeCachePolicy(t *testing.T) {
	tests := []struct {
		name    string
		headers http.Header
		issues  []string
	}{
		{"nothing", http.Header{}, []string{"No caching headers (Cache-Control/Expires) present"}},
		{"expires only", http.Header{"Expires": {"0"}}, []string{"Cache-Control header missing"}},
		{"explicit max-age", http.Header{"Cache-Control": {"public, max-age=60"}}, nil},
		{"no directive", http.Header{"Cache-Control": {"public"}}, []string{"Cache-Control lacks explicit max-age/no-cache directives"}},
		{"legacy pragma", http.Header{"Cache-Control": {"no-store"}, "Pragma": {"no-cache"}}, []string{"Pragma: no-cache detected (legacy caching directive)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := AnalyzeCachePolicy(tt.headers)
			var got []string
			for _, issue := range policy.Issues {
				got = append(got, issue.Message)
			}
			if !reflect.DeepEqual(got, tt.issues) {
				t.Errorf("issues = %v, want %v", got, tt.issues)
			}
		})
	}
	if AnalyzeCachePolicy(nil) != nil {
		t.Error("nil headers should give nil policy")
	}
}

func TestThirdPartyScripts(t *testing.T) {
	html := `<html><head>
<script src="/app.js"></script>
<script src="https://example.com/local.js"></script>
<script src="//cdn.example.net/lib.js"></script>
<script src="https://cdn.example.net/lib.js"></script>
<script src="https://analytics.example.org/a.js"></script>
<script src="data:text/javascript,alert(1)"></script>
<script>inline()</script>
</head></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	got := ThirdPartyScripts(doc, "https://example.com/page")
	want := []string{"https://cdn.example.net/lib.js", "https://analytics.example.org/a.js"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("scripts = %v, want %v", got, want)
	}
}

func TestAssessTLS(t *testing.T) {
	tests := []struct {
		name     string
		version  uint16
		suite    uint16
		strength string
		pfs      bool
		severity Severity
	}{
		{"tls13", tls.VersionTLS13, tls.TLS_AES_128_GCM_SHA256, CipherStrong, true, ""},
		{"tls12 ecdhe gcm", tls.VersionTLS12, tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, CipherStrong, true, SeverityInfo},
		{"rsa cbc", tls.VersionTLS12, tls.TLS_RSA_WITH_AES_128_CBC_SHA, CipherWeak, false, SeverityHigh},
		{"tls10", tls.VersionTLS10, tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA, CipherStandard, true, SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := AssessTLS(tt.version, tt.suite)
			if p.Strength != tt.strength || p.ForwardSecrecy != tt.pfs {
				t.Fatalf("posture = %+v", p)
			}
			if tt.severity == "" {
				if len(p.Issues) != 0 {
					t.Fatalf("issues = %+v", p.Issues)
				}
				return
			}
			found := false
			for _, issue := range p.Issues {
				if issue.Severity == tt.severity {
					found = true
				}
			}
			if !found {
				t.Errorf("no %s issue in %+v", tt.severity, p.Issues)
			}
		})
	}
}
