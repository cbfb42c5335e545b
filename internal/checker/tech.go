package checker

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DetectedTech is one fingerprinted technology.
type DetectedTech struct {
	Name        string  `json:"name"`
	Version     *string `json:"version"`
	Outdated    bool    `json:"outdated"`
	LatestKnown *string `json:"latestKnown"`
	Note        *string `json:"note"`
}

// knownSafeVersions holds minimum recommended versions keyed by library.
var knownSafeVersions = map[string]string{
	"jquery":    "3.7.0",
	"bootstrap": "5.3.0",
	"react":     "18.0.0",
	"vue":       "3.3.0",
	"angular":   "17.0.0",
	"lodash":    "4.17.21",
	"moment":    "2.29.4",
}

type techSignature struct {
	name    string
	safeKey string
	detect  *regexp.Regexp
	version *regexp.Regexp
}

func sig(name, detect, version string) techSignature {
	s := techSignature{name: name, safeKey: strings.ToLower(name), detect: regexp.MustCompile(detect)}
	if version != "" {
		s.version = regexp.MustCompile(version)
	}
	return s
}

// techCatalog is evaluated in order; each entry matches at most once.
var techCatalog = []techSignature{
	// CMS / platforms
	sig("WordPress", `(?i)wp-content|wp-includes`, `(?i)<meta[^>]+name=["']generator["'][^>]+content=["']WordPress\s*([\d.]+)`),
	sig("Drupal", `(?i)content=["']Drupal`, `(?i)<meta[^>]+content=["']Drupal\s*([\d.]+)`),
	sig("Joomla", `(?i)/media/jui/|Joomla!`, ""),
	sig("Shopify", `(?i)cdn\.shopify\.com`, ""),
	sig("Magento", `(?i)mage/|Magento`, ""),
	sig("Wix", `(?i)static\.wixstatic\.com`, ""),
	sig("Squarespace", `(?i)static\d*\.squarespace\.com`, ""),
	sig("Webflow", `(?i)webflow\.com/css`, ""),
	sig("Ghost", `(?i)ghost\.io|ghost-sdk`, ""),

	// JS frameworks
	sig("Next.js", `(?i)__NEXT_DATA__|_next/static`, ""),
	sig("React", `(?i)react(?:\.min)?\.js|__reactFiber|__react`, `(?i)react[@/]+([\d.]+)`),
	sig("Vue", `(?i)__vue_app__|vue(?:\.min)?\.js`, `(?i)vue[@/]([\d.]+)`),
	sig("Angular", `(?i)ng-version=["']([\d.]+)|angular(?:\.min)?\.js`, `(?i)ng-version=["']([\d.]+)`),
	sig("Svelte", `(?i)svelte-scoped|__svelte`, ""),
	sig("Nuxt", `(?i)__NUXT__|_nuxt/`, ""),
	sig("Gatsby", `(?i)gatsby-runtime|___gatsby`, ""),

	// JS libraries
	sig("jQuery", `(?i)jquery(?:[/\-][\d.]+)?(?:\.min)?\.js|jquery@([\d.]+)`, `(?i)jquery[/\-]([\d.]+)(?:\.min)?\.js|jquery@([\d.]+)`),
	sig("Bootstrap", `(?i)bootstrap(?:\.min)?\.css|bootstrap@`, `(?i)bootstrap[@/]([\d.]+)`),
	sig("Lodash", `(?i)lodash(?:\.min)?\.js|lodash@`, `(?i)lodash[@/]([\d.]+)`),
	withSafeKey(sig("Moment.js", `(?i)moment(?:\.min)?\.js|moment@`, `(?i)moment[@/]([\d.]+)`), "moment"),
	sig("D3.js", `(?i)d3(?:\.min)?\.js|d3@`, `(?i)d3[@/]([\d.]+)`),
	sig("Chart.js", `(?i)chart(?:\.min)?\.js|chart\.js@`, `(?i)chart\.js@([\d.]+)`),

	// Infra / CDN
	sig("Cloudflare", `(?i)cf-ray|__cfuid|cloudflare`, ""),
	sig("Vercel", `(?i)x-vercel|vercel\.app`, ""),
	sig("AWS", `(?i)amazonaws\.com|x-amz-`, ""),
	sig("Fastly", `(?i)fastly-io|x-fastly`, ""),
	sig("Nginx", `(?i)server:\s*nginx`, `(?i)nginx/([\d.]+)`),
	sig("Apache", `(?i)server:\s*apache`, `(?i)apache/([\d.]+)`),
	sig("Litespeed", `(?i)server:\s*litespeed`, ""),

	// Analytics / widgets
	sig("Google Analytics", `(?i)google-analytics\.com|GA4|gtag\.js`, ""),
	sig("Google Tag Manager", `(?i)googletagmanager\.com`, ""),
	sig("Hotjar", `(?i)hotjar\.com`, ""),
	sig("Intercom", `(?i)intercom\.io|intercomcdn`, ""),
	sig("HubSpot", `(?i)hs-scripts\.com|hubspot`, ""),
	sig("Stripe", `(?i)js\.stripe\.com`, ""),
	sig("reCAPTCHA", `(?i)recaptcha\.net|recaptcha/api`, ""),
}

func withSafeKey(s techSignature, key string) techSignature {
	s.safeKey = key
	return s
}

// DetectTechnologies matches the page body plus a "name: value" header dump
// against the signature catalog.
func DetectTechnologies(html string, headers map[string]string) []DetectedTech {
	full := html + "\n" + sortedHeaderLines(headers)

	results := []DetectedTech{}
	for _, s := range techCatalog {
		if !s.detect.MatchString(full) {
			continue
		}
		var version string
		if s.version != nil {
			if m := s.version.FindStringSubmatch(full); m != nil {
				for _, g := range m[1:] {
					if g != "" {
						version = g
						break
					}
				}
			}
		}
		results = append(results, makeDetected(s.name, s.safeKey, version))
	}
	return results
}

func makeDetected(name, safeKey, version string) DetectedTech {
	d := DetectedTech{Name: name}
	if version != "" {
		d.Version = &version
	}
	if minimum, ok := knownSafeVersions[safeKey]; ok {
		d.LatestKnown = &minimum
		if version != "" && VersionIsOlder(version, minimum) {
			d.Outdated = true
			note := fmt.Sprintf("Detected version %s — minimum recommended is %s", version, minimum)
			d.Note = &note
		}
	}
	return d
}

var nonVersionChars = regexp.MustCompile(`[^0-9.]`)

func versionParts(v string) []int {
	fields := strings.Split(nonVersionChars.ReplaceAllString(v, ""), ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		parts[i], _ = strconv.Atoi(f)
	}
	return parts
}

// VersionIsOlder compares dotted versions component-wise, treating missing
// components as zero. Equal versions are not older.
func VersionIsOlder(detected, minimum string) bool {
	d, m := versionParts(detected), versionParts(minimum)
	n := len(d)
	if len(m) > n {
		n = len(m)
	}
	for i := 0; i < n; i++ {
		var a, b int
		if i < len(d) {
			a = d[i]
		}
		if i < len(m) {
			b = m[i]
		}
		if a != b {
			return a < b
		}
	}
	return false
}

// TechReport is the fingerprint verdict for a page.
type TechReport struct {
	URL               string         `json:"url"`
	Status            int            `json:"status"`
	TimingMs          int64          `json:"timingMs"`
	Technologies      []DetectedTech `json:"technologies"`
	OutdatedCount     int            `json:"outdatedCount"`
	OutdatedLibraries []DetectedTech `json:"outdatedLibraries"`
}

// TechAnalyzer fetches a page and fingerprints it.
type TechAnalyzer struct {
	Fetcher PageFetcher
}

func (a *TechAnalyzer) Name() string { return "tech" }

func (a *TechAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	res, err := a.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return nil, err
	}
	techs := DetectTechnologies(string(res.Body), FlattenHeaders(res.Headers))
	outdated := []DetectedTech{}
	for _, t := range techs {
		if t.Outdated {
			outdated = append(outdated, t)
		}
	}
	return &TechReport{
		URL:               res.FinalURL,
		Status:            res.Status,
		TimingMs:          res.TimingMs(),
		Technologies:      techs,
		OutdatedCount:     len(outdated),
		OutdatedLibraries: outdated,
	}, nil
}
