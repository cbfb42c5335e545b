package checker

import (
	"context"

	"github.com/khanhnv2901/siteterminal/internal/fetch"
)

// PageFetcher retrieves a single page under the fetch bounds.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// StatusReport is the reachability summary of a page.
type StatusReport struct {
	InputURL  string           `json:"inputUrl"`
	FinalURL  string           `json:"finalUrl"`
	Status    int              `json:"status"`
	Redirects []fetch.Redirect `json:"redirects"`
	TimingMs  int64            `json:"timingMs"`
}

func newStatusReport(input string, res *fetch.Result) StatusReport {
	redirects := res.Redirects
	if redirects == nil {
		redirects = []fetch.Redirect{}
	}
	return StatusReport{
		InputURL:  input,
		FinalURL:  res.FinalURL,
		Status:    res.Status,
		Redirects: redirects,
		TimingMs:  res.TimingMs(),
	}
}

// StatusAnalyzer reports status, redirect trail and timing.
type StatusAnalyzer struct {
	Fetcher PageFetcher
}

func (a *StatusAnalyzer) Name() string { return "status" }

func (a *StatusAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	res, err := a.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return nil, err
	}
	report := newStatusReport(target.URL, res)
	return &report, nil
}

// HeadersReport carries the raw response headers with the compact audit and
// any cookie flag findings.
type HeadersReport struct {
	URL           string            `json:"url"`
	Status        int               `json:"status"`
	Headers       map[string]string `json:"headers"`
	SecurityAudit *HeaderAudit      `json:"securityAudit"`
	Cookies       []CookieFinding   `json:"cookies"`
}

// HeadersAnalyzer dumps response headers and audits them.
type HeadersAnalyzer struct {
	Fetcher PageFetcher
}

func (a *HeadersAnalyzer) Name() string { return "headers" }

func (a *HeadersAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	res, err := a.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return nil, err
	}
	flat := FlattenHeaders(res.Headers)
	return &HeadersReport{
		URL:           res.FinalURL,
		Status:        res.Status,
		Headers:       flat,
		SecurityAudit: AuditHeaders(flat),
		Cookies:       AnalyzeCookies(res.Headers),
	}, nil
}

// HeadersGradeReport is the full weighted header grade for a page.
type HeadersGradeReport struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
	*GradeResult
}

// HeadersGradeAnalyzer grades a page's security headers.
type HeadersGradeAnalyzer struct {
	Fetcher PageFetcher
}

func (a *HeadersGradeAnalyzer) Name() string { return "headers-grade" }

func (a *HeadersGradeAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	res, err := a.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return nil, err
	}
	return &HeadersGradeReport{
		URL:         res.FinalURL,
		Status:      res.Status,
		GradeResult: GradeHeaders(FlattenHeaders(res.Headers)),
	}, nil
}
