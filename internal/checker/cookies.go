package checker

import (
	"net/http"
	"strings"
)

// CookieFinding describes a Set-Cookie missing a protective attribute.
type CookieFinding struct {
	Name            string `json:"name"`
	MissingSecure   bool   `json:"missingSecure"`
	MissingHTTPOnly bool   `json:"missingHttpOnly"`
	MissingSameSite bool   `json:"missingSameSite"`
}

// AnalyzeCookies inspects Set-Cookie headers for missing Secure, HttpOnly or
// SameSite attributes. Cookies with all three set are omitted. A bare or
// unrecognized SameSite counts as missing.
func AnalyzeCookies(headers http.Header) []CookieFinding {
	findings := []CookieFinding{}
	raw := headers.Values("Set-Cookie")
	if len(raw) == 0 {
		return findings
	}

	resp := http.Response{Header: http.Header{"Set-Cookie": raw}}
	for _, cookie := range resp.Cookies() {
		finding := CookieFinding{
			Name:            cookie.Name,
			MissingSecure:   !cookie.Secure,
			MissingHTTPOnly: !cookie.HttpOnly,
			MissingSameSite: cookie.SameSite == 0 || cookie.SameSite == http.SameSiteDefaultMode,
		}
		if finding.MissingSecure || finding.MissingHTTPOnly || finding.MissingSameSite {
			findings = append(findings, finding)
		}
	}
	return findings
}

// cookieHeader joins every Set-Cookie value for substring matching.
func cookieHeader(headers http.Header) string {
	return strings.Join(headers.Values("Set-Cookie"), "; ")
}
