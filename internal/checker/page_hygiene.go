package checker

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CachePolicy summarizes the caching headers of a page.
type CachePolicy struct {
	CacheControl string  `json:"cacheControl,omitempty"`
	Expires      string  `json:"expires,omitempty"`
	Pragma       string  `json:"pragma,omitempty"`
	Issues       []Issue `json:"issues"`
}

// AnalyzeCachePolicy reports missing or ambiguous caching directives.
func AnalyzeCachePolicy(h http.Header) *CachePolicy {
	if h == nil {
		return nil
	}
	policy := &CachePolicy{
		CacheControl: h.Get("Cache-Control"),
		Expires:      h.Get("Expires"),
		Pragma:       h.Get("Pragma"),
		Issues:       []Issue{},
	}
	add := func(msg string) {
		policy.Issues = append(policy.Issues, Issue{Severity: SeverityInfo, Message: msg})
	}

	cc := strings.ToLower(policy.CacheControl)
	switch {
	case policy.CacheControl == "" && policy.Expires == "":
		add("No caching headers (Cache-Control/Expires) present")
	case policy.CacheControl == "":
		add("Cache-Control header missing")
	case !strings.Contains(cc, "max-age") && !strings.Contains(cc, "no-cache") && !strings.Contains(cc, "no-store"):
		add("Cache-Control lacks explicit max-age/no-cache directives")
	}
	if strings.EqualFold(policy.Pragma, "no-cache") {
		add("Pragma: no-cache detected (legacy caching directive)")
	}
	return policy
}

// ThirdPartyScripts returns the distinct external script URLs a page loads,
// in document order. Scripts on the page's own host are first-party.
func ThirdPartyScripts(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil || base.Hostname() == "" {
		return []string{}
	}
	host := strings.ToLower(base.Hostname())

	seen := map[string]bool{}
	scripts := []string{}
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
			return
		}
		u, err := base.Parse(src)
		if err != nil || u.Hostname() == "" || strings.ToLower(u.Hostname()) == host {
			return
		}
		resolved := u.String()
		if !seen[resolved] {
			seen[resolved] = true
			scripts = append(scripts, resolved)
		}
	})
	return scripts
}
