package checker

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// HeaderCheck is the verdict for one graded header.
type HeaderCheck struct {
	Name    string   `json:"name"`
	Present bool     `json:"present"`
	Value   *string  `json:"value"`
	Passed  bool     `json:"passed"`
	Issues  []string `json:"issues"`
}

// HeaderIssue is one finding attributed to a header.
type HeaderIssue struct {
	Header   string   `json:"header"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// GradeResult is the full header grading verdict.
type GradeResult struct {
	Score      int           `json:"score"`
	Grade      string        `json:"grade"`
	Checks     []HeaderCheck `json:"checks"`
	Issues     []HeaderIssue `json:"issues"`
	PassCount  int           `json:"passCount"`
	TotalCount int           `json:"totalCount"`
}

// AuditCheck is the compact check shape embedded in other verdicts.
type AuditCheck struct {
	Name    string  `json:"name"`
	Present bool    `json:"present"`
	Value   *string `json:"value"`
	Passed  bool    `json:"passed"`
}

// HeaderAudit is the compact grading shape (securityAudit).
type HeaderAudit struct {
	Score  int           `json:"score"`
	Grade  string        `json:"grade"`
	Checks []AuditCheck  `json:"checks"`
	Issues []HeaderIssue `json:"issues"`
}

// headerFinding is one message produced by a validator. Informational
// findings are reported without failing the check.
type headerFinding struct {
	message string
	info    bool
}

type headerSpec struct {
	name     string
	key      string
	severity Severity
	weight   int
	// optional checks carry no weight when their header is absent, so a
	// page without Access-Control-Allow-Origin is scored out of 95.
	optional bool
	check    func(value string, present bool, headers map[string]string) []headerFinding
}

// headerSpecs is evaluated in order; weights sum to 100.
var headerSpecs = []headerSpec{
	{name: "Content-Security-Policy", key: "content-security-policy", severity: SeverityCritical, weight: 25, check: checkCSP},
	{name: "Strict-Transport-Security", key: "strict-transport-security", severity: SeverityHigh, weight: 20, check: checkHSTS},
	{name: "X-Frame-Options", key: "x-frame-options", severity: SeverityHigh, weight: 15, check: checkXFrameOptions},
	{name: "X-Content-Type-Options", key: "x-content-type-options", severity: SeverityMedium, weight: 15, check: checkXContentTypeOptions},
	{name: "Referrer-Policy", key: "referrer-policy", severity: SeverityMedium, weight: 10, check: checkReferrerPolicy},
	{name: "Permissions-Policy", key: "permissions-policy", severity: SeverityLow, weight: 10, check: checkPermissionsPolicy},
	{name: "CORS", key: "access-control-allow-origin", severity: SeverityHigh, weight: 5, optional: true, check: checkCORSHeader},
}

// FlattenHeaders lowercases header names and joins repeated values with ", ".
func FlattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		key := strings.ToLower(k)
		if prev, ok := out[key]; ok {
			out[key] = prev + ", " + strings.Join(vs, ", ")
			continue
		}
		out[key] = strings.Join(vs, ", ")
	}
	return out
}

// GradeHeaders grades a lowercase-keyed header map.
func GradeHeaders(headers map[string]string) *GradeResult {
	result := &GradeResult{
		Checks: make([]HeaderCheck, 0, len(headerSpecs)),
		Issues: []HeaderIssue{},
	}

	total := 0.0
	earned := 0.0

	for _, spec := range headerSpecs {
		value, present := headers[spec.key]
		findings := spec.check(value, present, headers)

		passed := true
		messages := make([]string, 0, len(findings))
		for _, f := range findings {
			messages = append(messages, f.message)
			if !f.info {
				passed = false
			}
		}

		check := HeaderCheck{
			Name:    spec.name,
			Present: present,
			Passed:  passed,
			Issues:  messages,
		}
		if present {
			v := value
			check.Value = &v
		}
		result.Checks = append(result.Checks, check)

		if passed {
			result.PassCount++
		}
		if spec.optional && !present {
			continue
		}

		total += float64(spec.weight)
		switch {
		case passed:
			earned += float64(spec.weight)
		case present:
			// Present but failing earns partial credit.
			earned += float64(spec.weight) * 0.4
		}

		for _, f := range findings {
			switch {
			case f.info:
				result.Issues = append(result.Issues, HeaderIssue{Header: spec.name, Severity: SeverityInfo, Message: f.message})
			case !passed:
				result.Issues = append(result.Issues, HeaderIssue{Header: spec.name, Severity: spec.severity, Message: f.message})
			}
		}
	}

	score := int(roundHalfUp(100 * earned / total))
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	result.Score = score
	result.Grade = headerGrade(score)
	result.TotalCount = len(result.Checks)
	return result
}

// AuditHeaders returns the compact securityAudit view of GradeHeaders.
func AuditHeaders(headers map[string]string) *HeaderAudit {
	g := GradeHeaders(headers)
	audit := &HeaderAudit{
		Score:  g.Score,
		Grade:  g.Grade,
		Checks: make([]AuditCheck, 0, len(g.Checks)),
		Issues: g.Issues,
	}
	for _, c := range g.Checks {
		audit.Checks = append(audit.Checks, AuditCheck{Name: c.Name, Present: c.Present, Value: c.Value, Passed: c.Passed})
	}
	return audit
}

func roundHalfUp(f float64) float64 {
	return float64(int64(f + 0.5))
}

func headerGrade(score int) string {
	switch {
	case score >= 97:
		return "A+"
	case score >= 90:
		return "A"
	case score >= 85:
		return "B+"
	case score >= 80:
		return "B"
	case score >= 75:
		return "B-"
	case score >= 65:
		return "C"
	case score >= 50:
		return "D"
	default:
		return "F"
	}
}

func fail(msgs ...string) []headerFinding {
	out := make([]headerFinding, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, headerFinding{message: m})
	}
	return out
}

// parseDirectives splits a ;-separated header into lowercase directive names
// and values. Both "name=value" and "name value" forms are accepted.
func parseDirectives(value string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val := part, ""
		if i := strings.IndexAny(part, "= \t"); i >= 0 {
			name, val = part[:i], strings.TrimSpace(strings.TrimLeft(part[i:], "= \t"))
		}
		out[strings.ToLower(name)] = strings.Trim(val, `"`)
	}
	return out
}

// leadingInt parses the leading decimal digits of s, saturating at
// math.MaxInt on overflow.
func leadingInt(s string) (int, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt, true
	}
	if err != nil {
		return 0, false
	}
	return n, true
}

func checkCSP(value string, present bool, _ map[string]string) []headerFinding {
	if !present || value == "" {
		return fail("Missing Content-Security-Policy")
	}
	var out []headerFinding
	v := strings.ToLower(value)
	if strings.Contains(v, "unsafe-inline") {
		out = append(out, headerFinding{message: "CSP allows 'unsafe-inline' — XSS protection weakened"})
	}
	if strings.Contains(v, "unsafe-eval") {
		out = append(out, headerFinding{message: "CSP allows 'unsafe-eval' — arbitrary code execution risk"})
	}
	if strings.Contains(v, "*") {
		out = append(out, headerFinding{message: "CSP contains wildcard (*) source — overly permissive"})
	}
	if !strings.Contains(v, "default-src") && !strings.Contains(v, "script-src") {
		out = append(out, headerFinding{message: "CSP missing 'default-src' or 'script-src' directive"})
	}
	return out
}

const (
	hstsSixMonths = 15_552_000
	hstsOneYear   = 31_536_000
)

func checkHSTS(value string, present bool, _ map[string]string) []headerFinding {
	if !present || value == "" {
		return fail("Missing Strict-Transport-Security")
	}
	var out []headerFinding
	dirs := parseDirectives(value)

	raw, ok := dirs["max-age"]
	maxAge, parsed := leadingInt(raw)
	switch {
	case !ok || !parsed:
		out = append(out, headerFinding{message: "HSTS missing max-age directive"})
	case maxAge < hstsSixMonths:
		out = append(out, headerFinding{message: fmt.Sprintf("HSTS max-age too low (%ds — minimum recommended is 6 months / 15552000s)", maxAge)})
	case maxAge < hstsOneYear:
		out = append(out, headerFinding{message: fmt.Sprintf("HSTS max-age is acceptable but recommend ≥ 1 year (%ds)", maxAge)})
	}

	if _, ok := dirs["includesubdomains"]; !ok {
		out = append(out, headerFinding{message: "HSTS missing 'includeSubDomains'"})
	}
	if _, ok := dirs["preload"]; !ok {
		out = append(out, headerFinding{message: "HSTS missing 'preload' (optional but recommended for HSTS preload list)", info: true})
	}
	return out
}

func checkXFrameOptions(value string, present bool, _ map[string]string) []headerFinding {
	if !present || value == "" {
		return fail("Missing X-Frame-Options — clickjacking risk")
	}
	v := strings.ToUpper(strings.TrimSpace(value))
	switch {
	case v == "DENY" || v == "SAMEORIGIN":
		return nil
	case strings.HasPrefix(v, "ALLOW-FROM"):
		return fail("X-Frame-Options ALLOW-FROM is deprecated; use CSP frame-ancestors instead")
	default:
		return fail(fmt.Sprintf("X-Frame-Options has unexpected value: '%s'", value))
	}
}

func checkXContentTypeOptions(value string, present bool, _ map[string]string) []headerFinding {
	if !present || value == "" {
		return fail("Missing X-Content-Type-Options — MIME sniffing enabled")
	}
	if strings.ToLower(strings.TrimSpace(value)) == "nosniff" {
		return nil
	}
	return fail(fmt.Sprintf("X-Content-Type-Options unexpected value: '%s' (expected 'nosniff')", value))
}

var safeReferrerPolicies = map[string]bool{
	"no-referrer":                     true,
	"no-referrer-when-downgrade":      true,
	"origin":                          true,
	"origin-when-cross-origin":        true,
	"same-origin":                     true,
	"strict-origin":                   true,
	"strict-origin-when-cross-origin": true,
}

func checkReferrerPolicy(value string, present bool, _ map[string]string) []headerFinding {
	if !present {
		return fail("Missing Referrer-Policy — referrer data may leak to third parties")
	}
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case v == "unsafe-url":
		return fail("Referrer-Policy is 'unsafe-url' — leaks full URL including sensitive query params")
	case v == "":
		return fail("Referrer-Policy is empty — behaves as 'no-referrer-when-downgrade'")
	case !safeReferrerPolicies[v]:
		return fail(fmt.Sprintf("Referrer-Policy unknown value: '%s'", value))
	}
	return nil
}

var (
	cameraWildcard      = regexp.MustCompile(`camera=\*|camera=\(not-parsed`)
	microphoneWildcard  = regexp.MustCompile(`microphone=\*`)
	geolocationWildcard = regexp.MustCompile(`geolocation=\*`)
)

func checkPermissionsPolicy(value string, present bool, _ map[string]string) []headerFinding {
	if !present || value == "" {
		return fail("Missing Permissions-Policy — browser features unrestricted")
	}
	var out []headerFinding
	v := strings.ToLower(value)
	if cameraWildcard.MatchString(v) {
		out = append(out, headerFinding{message: "Permissions-Policy allows camera to all origins"})
	}
	if microphoneWildcard.MatchString(v) {
		out = append(out, headerFinding{message: "Permissions-Policy allows microphone to all origins"})
	}
	if geolocationWildcard.MatchString(v) {
		out = append(out, headerFinding{message: "Permissions-Policy allows geolocation to all origins"})
	}
	return out
}

func checkCORSHeader(_ string, _ bool, headers map[string]string) []headerFinding {
	acao := headers["access-control-allow-origin"]
	acac := headers["access-control-allow-credentials"]
	switch {
	case acao == "*" && acac == "true":
		return fail("CORS misconfiguration: Access-Control-Allow-Origin=* combined with Allow-Credentials=true is invalid and dangerous")
	case acao == "*":
		return fail("Access-Control-Allow-Origin=* — allows any origin to read responses (acceptable for public APIs, dangerous otherwise)")
	}
	return nil
}

// sortedHeaderLines renders headers as "name: value" lines in name order.
func sortedHeaderLines(headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headers[k])
	}
	return b.String()
}
