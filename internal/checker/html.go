package checker

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

func parseDocument(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func pageTitle(doc *goquery.Document) *string {
	return optionalText(doc.Find("title").First().Text())
}

func metaDescription(doc *goquery.Document) *string {
	v, _ := doc.Find(`meta[name="description"]`).Attr("content")
	return optionalText(v)
}

// InspectReport is a one-page overview: status, title, link count, header
// audit and quick technology hints.
type InspectReport struct {
	StatusReport
	Title           *string            `json:"title"`
	MetaDescription *string            `json:"metaDescription"`
	LinkCount       int                `json:"linkCount"`
	SecurityAudit   *HeaderAudit       `json:"securityAudit"`
	TechHints       []string           `json:"techHints"`
	MixedContent    *MixedContentCheck `json:"mixedContent,omitempty"`
	CachePolicy     *CachePolicy       `json:"cachePolicy,omitempty"`
	ThirdParty      []string           `json:"thirdPartyScripts"`
}

// InspectAnalyzer fetches a page and summarizes it.
type InspectAnalyzer struct {
	Fetcher PageFetcher
}

func (a *InspectAnalyzer) Name() string { return "inspect" }

func (a *InspectAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	res, err := a.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(res.Body)
	if err != nil {
		return nil, err
	}
	flat := FlattenHeaders(res.Headers)

	return &InspectReport{
		StatusReport:    newStatusReport(target.URL, res),
		Title:           pageTitle(doc),
		MetaDescription: metaDescription(doc),
		LinkCount:       doc.Find("a[href]").Length(),
		SecurityAudit:   AuditHeaders(flat),
		TechHints:       techHints(string(res.Body), flat),
		MixedContent:    CheckMixedContent(doc, res.FinalURL),
		CachePolicy:     AnalyzeCachePolicy(res.Headers),
		ThirdParty:      ThirdPartyScripts(doc, res.FinalURL),
	}, nil
}

var (
	wordpressHint = regexp.MustCompile(`(?i)wp-content|wp-includes`)
	nextjsHint    = regexp.MustCompile(`(?i)__NEXT_DATA__`)
	shopifyHint   = regexp.MustCompile(`(?i)cdn\.shopify\.com`)
)

// techHints is the lightweight fingerprint used by inspect. At most ten hints
// are returned, in detection order.
func techHints(html string, headers map[string]string) []string {
	hints := []string{}
	seen := map[string]bool{}
	add := func(h string) {
		if !seen[h] {
			seen[h] = true
			hints = append(hints, h)
		}
	}

	if server := headers["server"]; server != "" {
		add("server:" + server)
	}
	if powered := headers["x-powered-by"]; powered != "" {
		add("powered:" + powered)
	}
	if wordpressHint.MatchString(html) {
		add("wordpress")
	}
	if nextjsHint.MatchString(html) {
		add("nextjs")
	}
	if shopifyHint.MatchString(html) {
		add("shopify")
	}

	if len(hints) > 10 {
		hints = hints[:10]
	}
	return hints
}

// MixedContentCheck counts http:// subresources on an https page.
type MixedContentCheck struct {
	HasMixedContent  bool     `json:"hasMixedContent"`
	MixedContentURLs []string `json:"urls"`
	InsecureScripts  int      `json:"insecureScripts"`
	InsecureStyles   int      `json:"insecureStyles"`
	InsecureImages   int      `json:"insecureImages"`
	InsecureMedia    int      `json:"insecureMedia"`
	InsecureIframes  int      `json:"insecureIframes"`
	Severity         Severity `json:"severity"`
	Recommendation   string   `json:"recommendation,omitempty"`
}

var cssImportPattern = regexp.MustCompile(`@import\s+url\(['"]?(http://[^'"\s)]+)['"]?\)`)

// CheckMixedContent returns nil for non-https pages.
func CheckMixedContent(doc *goquery.Document, pageURL string) *MixedContentCheck {
	if !strings.HasPrefix(strings.ToLower(pageURL), "https://") {
		return nil
	}

	check := &MixedContentCheck{MixedContentURLs: []string{}, Severity: SeverityInfo}
	seen := map[string]bool{}
	collect := func(selector, attr string, counter *int) {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			v, ok := s.Attr(attr)
			v = strings.TrimSpace(v)
			if !ok || !strings.HasPrefix(strings.ToLower(v), "http://") || seen[v] {
				return
			}
			seen[v] = true
			check.MixedContentURLs = append(check.MixedContentURLs, v)
			*counter++
		})
	}

	collect("script[src]", "src", &check.InsecureScripts)
	collect(`link[rel~="stylesheet"][href]`, "href", &check.InsecureStyles)
	collect("img[src]", "src", &check.InsecureImages)
	collect("video[src], audio[src], source[src]", "src", &check.InsecureMedia)
	collect("iframe[src]", "src", &check.InsecureIframes)

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, m := range cssImportPattern.FindAllStringSubmatch(s.Text(), -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				check.MixedContentURLs = append(check.MixedContentURLs, m[1])
				check.InsecureStyles++
			}
		}
	})

	if len(check.MixedContentURLs) == 0 {
		return check
	}
	check.HasMixedContent = true

	switch {
	case check.InsecureScripts > 0 || check.InsecureIframes > 0:
		check.Severity = SeverityCritical
		check.Recommendation = "HTTP scripts and iframes on HTTPS pages let a network attacker inject code. Serve them over HTTPS."
	case check.InsecureStyles > 0:
		check.Severity = SeverityHigh
		check.Recommendation = "HTTP stylesheets on HTTPS pages can be rewritten to inject overlays. Serve them over HTTPS."
	default:
		check.Severity = SeverityMedium
		check.Recommendation = "HTTP images or media on HTTPS pages can be replaced in transit and trigger browser warnings."
	}
	return check
}

// Heading is an h1-h3 element.
type Heading struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// SEOReport lists the page's search and social metadata.
type SEOReport struct {
	URL             string            `json:"url"`
	Title           *string           `json:"title"`
	MetaDescription *string           `json:"metaDescription"`
	Canonical       *string           `json:"canonical"`
	OpenGraph       map[string]string `json:"og"`
	Twitter         map[string]string `json:"twitter"`
	Headings        []Heading         `json:"headings"`
}

// SEOAnalyzer extracts title, description, canonical, og/twitter tags and
// headings.
type SEOAnalyzer struct {
	Fetcher PageFetcher
}

func (a *SEOAnalyzer) Name() string { return "seo" }

func (a *SEOAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	res, err := a.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(res.Body)
	if err != nil {
		return nil, err
	}

	canonical, _ := doc.Find(`link[rel="canonical"]`).Attr("href")
	report := &SEOReport{
		URL:             res.FinalURL,
		Title:           pageTitle(doc),
		MetaDescription: metaDescription(doc),
		Canonical:       optionalText(canonical),
		OpenGraph:       metaMap(doc, `meta[property^="og:"]`, "property"),
		Twitter:         metaMap(doc, `meta[name^="twitter:"]`, "name"),
		Headings:        []Heading{},
	}

	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(whitespaceRun.ReplaceAllString(s.Text(), " "))
		if text != "" {
			report.Headings = append(report.Headings, Heading{Tag: goquery.NodeName(s), Text: text})
		}
	})
	return report, nil
}

func metaMap(doc *goquery.Document, selector, keyAttr string) map[string]string {
	out := map[string]string{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		k, _ := s.Attr(keyAttr)
		v, _ := s.Attr("content")
		if k != "" && v != "" {
			out[k] = v
		}
	})
	return out
}

// maxLinkSamples bounds each sample list in a LinksReport.
const maxLinkSamples = 20

// LinksReport splits a page's anchors into same-host and other-host URLs.
type LinksReport struct {
	URL            string   `json:"url"`
	InternalCount  int      `json:"internalCount"`
	ExternalCount  int      `json:"externalCount"`
	SampleInternal []string `json:"sampleInternal"`
	SampleExternal []string `json:"sampleExternal"`
}

// LinksAnalyzer classifies anchors on a page.
type LinksAnalyzer struct {
	Fetcher PageFetcher
}

func (a *LinksAnalyzer) Name() string { return "links" }

func (a *LinksAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	res, err := a.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(res.FinalURL)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(res.Body)
	if err != nil {
		return nil, err
	}

	var internal, external []string
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		key := abs.String()
		if seen[key] {
			return
		}
		seen[key] = true
		if abs.Hostname() == base.Hostname() {
			internal = append(internal, key)
		} else {
			external = append(external, key)
		}
	})

	return &LinksReport{
		URL:            res.FinalURL,
		InternalCount:  len(internal),
		ExternalCount:  len(external),
		SampleInternal: sample(internal, maxLinkSamples),
		SampleExternal: sample(external, maxLinkSamples),
	}, nil
}

func sample(items []string, n int) []string {
	if len(items) > n {
		items = items[:n]
	}
	if items == nil {
		return []string{}
	}
	return items
}
