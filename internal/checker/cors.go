package checker

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var listSeparator = regexp.MustCompile(`,\s*`)

// CORSResult is the verdict over a response's Access-Control-* headers.
// Absent headers are null.
type CORSResult struct {
	Safe             bool    `json:"safe"`
	AllowOrigin      *string `json:"allowOrigin"`
	AllowCredentials *string `json:"allowCredentials"`
	AllowMethods     *string `json:"allowMethods"`
	AllowHeaders     *string `json:"allowHeaders"`
	ExposeHeaders    *string `json:"exposeHeaders"`
	Issues           []Issue `json:"issues"`
	Summary          string  `json:"summary"`
}

// sensitiveExposed lists headers that must never be readable cross-origin.
var sensitiveExposed = []string{"authorization", "set-cookie", "x-api-key", "x-auth-token"}

func headerPtr(headers map[string]string, key string) *string {
	if v, ok := headers[key]; ok {
		return &v
	}
	return nil
}

// AnalyzeCORS reads lowercased response headers and reports risky CORS
// configuration. It never issues credentialed requests.
func AnalyzeCORS(headers map[string]string) *CORSResult {
	result := &CORSResult{
		AllowOrigin:      headerPtr(headers, "access-control-allow-origin"),
		AllowCredentials: headerPtr(headers, "access-control-allow-credentials"),
		AllowMethods:     headerPtr(headers, "access-control-allow-methods"),
		AllowHeaders:     headerPtr(headers, "access-control-allow-headers"),
		ExposeHeaders:    headerPtr(headers, "access-control-expose-headers"),
		Issues:           []Issue{},
	}

	if result.AllowOrigin == nil || *result.AllowOrigin == "" {
		result.Safe = true
		result.Summary = "No CORS headers present — cross-origin requests blocked by default."
		return result
	}

	origin := *result.AllowOrigin
	credentials := result.AllowCredentials != nil && strings.EqualFold(*result.AllowCredentials, "true")

	if origin == "*" && credentials {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityCritical,
			Message: "CRITICAL: Access-Control-Allow-Origin=* cannot be combined with Allow-Credentials=true. " +
				"Browsers reject this, but some server misconfigurations try to do it — indicates poor CORS setup.",
		})
	}
	if origin == "*" {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityMedium,
			Message: "Access-Control-Allow-Origin=* — any origin can read responses. " +
				"Fine for public APIs, dangerous for authenticated or private data.",
		})
	}
	if origin == "null" {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityHigh,
			Message:  "Access-Control-Allow-Origin: 'null' — attackers can abuse this via sandboxed iframes to bypass same-origin policy.",
		})
	}
	if credentials && origin != "*" {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityMedium,
			Message: "Access-Control-Allow-Credentials=true — cookies and auth headers will be sent cross-origin. " +
				"Ensure the allowed origin is strictly validated server-side.",
		})
	}

	if result.AllowMethods != nil && *result.AllowMethods != "" {
		var risky []string
		for _, m := range listSeparator.Split(strings.ToUpper(*result.AllowMethods), -1) {
			if m == "DELETE" || m == "PUT" || m == "PATCH" {
				risky = append(risky, m)
			}
		}
		if len(risky) > 0 {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityLow,
				Message:  fmt.Sprintf("CORS allows %s methods cross-origin — ensure this is intentional.", strings.Join(risky, ", ")),
			})
		}
	}

	if result.ExposeHeaders != nil && *result.ExposeHeaders != "" {
		exposed := map[string]bool{}
		for _, h := range listSeparator.Split(strings.ToLower(*result.ExposeHeaders), -1) {
			exposed[h] = true
		}
		var bad []string
		for _, s := range sensitiveExposed {
			if exposed[s] {
				bad = append(bad, s)
			}
		}
		if len(bad) > 0 {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityHigh,
				Message:  "Sensitive header(s) exposed via Access-Control-Expose-Headers: " + strings.Join(bad, ", "),
			})
		}
	}

	result.Safe = true
	for _, issue := range result.Issues {
		if issue.Severity != SeverityLow && issue.Severity != SeverityInfo {
			result.Safe = false
			break
		}
	}
	if len(result.Issues) == 0 {
		result.Summary = "CORS configuration looks reasonable."
	} else {
		result.Summary = fmt.Sprintf("%d CORS issue(s) detected.", len(result.Issues))
	}
	return result
}

// CORSReport is the CORS verdict for a fetched page.
type CORSReport struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
	*CORSResult
}

// CORSAnalyzer fetches a page and analyzes its CORS headers.
type CORSAnalyzer struct {
	Fetcher PageFetcher
}

func (a *CORSAnalyzer) Name() string { return "cors" }

func (a *CORSAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	res, err := a.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return nil, err
	}
	return &CORSReport{
		URL:        res.FinalURL,
		Status:     res.Status,
		CORSResult: AnalyzeCORS(FlattenHeaders(res.Headers)),
	}, nil
}
