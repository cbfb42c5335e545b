package checker

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"

	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
)

const maxSitemapURLs = 20

// RobotsReport describes a site's robots.txt.
type RobotsReport struct {
	URL         string   `json:"url"`
	RobotsURL   string   `json:"robotsUrl"`
	Found       bool     `json:"found"`
	Content     *string  `json:"content"`
	Sitemaps    []string `json:"sitemaps"`
	RootAllowed bool     `json:"rootAllowed"`
}

// RobotsAnalyzer fetches and parses /robots.txt.
type RobotsAnalyzer struct {
	Fetcher PageFetcher
}

func (a *RobotsAnalyzer) Name() string { return "robots" }

func (a *RobotsAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	robotsURL := target.Origin() + "/robots.txt"
	report := &RobotsReport{URL: target.URL, RobotsURL: robotsURL, Sitemaps: []string{}, RootAllowed: true}

	robots, body, ok := fetchRobots(ctx, a.Fetcher, robotsURL)
	if !ok {
		return report, nil
	}
	content := string(body)
	report.Found = true
	report.Content = &content
	report.Sitemaps = dedupe(robots.Sitemaps)
	report.RootAllowed = robots.TestAgent("/", constants.BotName)
	return report, nil
}

// fetchRobots returns the parsed file only for a 2xx answer. Fetch errors
// count as "not found".
func fetchRobots(ctx context.Context, f PageFetcher, robotsURL string) (*robotstxt.RobotsData, []byte, bool) {
	res, err := f.Fetch(ctx, robotsURL)
	if err != nil || res.Status < 200 || res.Status >= 300 {
		return nil, nil, false
	}
	robots, err := robotstxt.FromBytes(res.Body)
	if err != nil {
		return nil, nil, false
	}
	return robots, res.Body, true
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := []string{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Sitemap discovery sources.
const (
	SitemapFromRobots = "robots"
	SitemapFromCommon = "common"
	SitemapFromNone   = "none"
)

// SitemapReport lists the first URLs of a site's sitemap.
type SitemapReport struct {
	URL            string   `json:"url"`
	SitemapURL     *string  `json:"sitemapUrl"`
	DiscoveredFrom string   `json:"discoveredFrom"`
	URLs           []string `json:"urls"`
}

// SitemapAnalyzer locates a sitemap through robots.txt, falling back to
// /sitemap.xml.
type SitemapAnalyzer struct {
	Fetcher PageFetcher
}

func (a *SitemapAnalyzer) Name() string { return "sitemap" }

func (a *SitemapAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	report := &SitemapReport{URL: target.URL, DiscoveredFrom: SitemapFromNone, URLs: []string{}}

	sitemapURL := ""
	if robots, _, ok := fetchRobots(ctx, a.Fetcher, target.Origin()+"/robots.txt"); ok && len(robots.Sitemaps) > 0 {
		sitemapURL = strings.TrimSpace(robots.Sitemaps[0])
		report.DiscoveredFrom = SitemapFromRobots
	}
	if sitemapURL == "" {
		sitemapURL = target.Origin() + "/sitemap.xml"
		report.DiscoveredFrom = SitemapFromCommon
	}

	res, err := a.Fetcher.Fetch(ctx, sitemapURL)
	if err != nil || res.Status < 200 || res.Status >= 300 {
		report.DiscoveredFrom = SitemapFromNone
		return report, nil
	}
	report.SitemapURL = &sitemapURL
	report.URLs = sitemapLocs(res.Body, maxSitemapURLs)
	return report, nil
}

// sitemapLocs returns up to limit <loc> values from a urlset or sitemap
// index.
func sitemapLocs(body []byte, limit int) []string {
	locs := []string{}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return locs
	}
	doc.Find("loc").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if loc := strings.TrimSpace(s.Text()); loc != "" {
			locs = append(locs, loc)
		}
		return len(locs) < limit
	})
	return locs
}

var securityTxtPaths = []string{"/.well-known/security.txt", "/security.txt"}

const (
	securityTxtMaxBody    = 10_000
	securityTxtMaxContent = 4_000
)

var (
	contactField    = regexp.MustCompile(`(?im)^Contact:`)
	expiresField    = regexp.MustCompile(`(?im)^Expires:\s*(.+)$`)
	encryptionField = regexp.MustCompile(`(?im)^Encryption:`)
	policyField     = regexp.MustCompile(`(?im)^Policy:`)
)

// SecurityTxtReport checks a security.txt against RFC 9116.
type SecurityTxtReport struct {
	Domain         string   `json:"domain"`
	Found          bool     `json:"found"`
	Path           *string  `json:"path"`
	Content        *string  `json:"content"`
	HasContact     bool     `json:"hasContact"`
	HasExpires     bool     `json:"hasExpires"`
	HasEncryption  bool     `json:"hasEncryption"`
	HasPolicy      bool     `json:"hasPolicy"`
	Expired        bool     `json:"expired"`
	Issues         []string `json:"issues"`
	Recommendation string   `json:"recommendation"`
}

// SecurityTxtAnalyzer looks for security.txt in its two standard places.
type SecurityTxtAnalyzer struct {
	Fetcher PageFetcher
	Now     func() time.Time
}

func (a *SecurityTxtAnalyzer) Name() string { return "securitytxt" }

func (a *SecurityTxtAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	report := &SecurityTxtReport{Domain: target.Domain, Issues: []string{}}

	origin := "https://" + target.Domain
	for _, path := range securityTxtPaths {
		res, err := a.Fetcher.Fetch(ctx, origin+path)
		if err != nil || res.Status != 200 || len(res.Body) >= securityTxtMaxBody {
			continue
		}
		content := string(res.Body)
		if len(content) > securityTxtMaxContent {
			content = content[:securityTxtMaxContent]
		}
		report.Found = true
		report.Path = &path
		report.Content = &content
		break
	}

	if !report.Found {
		report.Issues = append(report.Issues, "No security.txt found — responsible disclosure contact not defined (RFC 9116 best practice)")
		report.Recommendation = fmt.Sprintf("Add a security.txt at https://%s/.well-known/security.txt (see securitytxt.org)", target.Domain)
		return report, nil
	}

	content := *report.Content
	report.HasContact = contactField.MatchString(content)
	report.HasEncryption = encryptionField.MatchString(content)
	report.HasPolicy = policyField.MatchString(content)
	expires := expiresField.FindStringSubmatch(content)
	report.HasExpires = expires != nil

	if !report.HasContact {
		report.Issues = append(report.Issues, "Missing required 'Contact:' field (RFC 9116)")
	}
	if !report.HasExpires {
		report.Issues = append(report.Issues, "Missing 'Expires:' field (RFC 9116 requires it)")
	} else {
		value := strings.TrimSpace(expires[1])
		now := time.Now
		if a.Now != nil {
			now = a.Now
		}
		if t, err := time.Parse(time.RFC3339, value); err == nil && t.Before(now()) {
			report.Expired = true
			report.Issues = append(report.Issues, fmt.Sprintf("security.txt has expired (Expires: %s)", value))
		}
	}

	if len(report.Issues) == 0 {
		report.Recommendation = "security.txt looks valid."
	} else {
		report.Recommendation = "Fix the issues listed above."
	}
	return report, nil
}
