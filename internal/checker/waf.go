package checker

import (
	"context"
	"strings"
)

// Protection types.
const (
	ProtectionWAF      = "WAF"
	ProtectionCDN      = "CDN"
	ProtectionProxy    = "Proxy"
	ProtectionSecurity = "Security"
)

// wafBodyLimit bounds how much of the body signatures may inspect.
const wafBodyLimit = 5000

// WAFMatch names a detected vendor.
type WAFMatch struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type wafSignature struct {
	name  string
	kind  string
	match func(h map[string]string, body, cookies string) bool
}

func has(h map[string]string, key string) bool { return h[key] != "" }

func headerContains(h map[string]string, key, sub string) bool {
	return strings.Contains(h[key], sub)
}

// wafSignatures is evaluated in order; several may match at once.
var wafSignatures = []wafSignature{
	{"Cloudflare", ProtectionCDN, func(h map[string]string, _, _ string) bool {
		return has(h, "cf-ray") || h["server"] == "cloudflare" || has(h, "cf-cache-status")
	}},
	{"AWS CloudFront", ProtectionCDN, func(h map[string]string, _, _ string) bool {
		return has(h, "x-amz-cf-id") || has(h, "x-amz-cf-pop") || headerContains(h, "via", "CloudFront")
	}},
	{"AWS WAF", ProtectionWAF, func(h map[string]string, _, _ string) bool {
		return has(h, "x-amzn-requestid") || has(h, "x-amzn-trace-id")
	}},
	{"Akamai", ProtectionCDN, func(h map[string]string, _, _ string) bool {
		return headerContains(h, "server", "AkamaiGHost") || has(h, "x-akamai-transformed") || has(h, "x-check-cacheable")
	}},
	{"Fastly", ProtectionCDN, func(h map[string]string, _, _ string) bool {
		return headerContains(h, "x-served-by", "cache") ||
			(headerContains(h, "via", "varnish") && has(h, "x-fastly-request-id"))
	}},
	{"Varnish", ProtectionProxy, func(h map[string]string, _, _ string) bool {
		return has(h, "x-varnish") || strings.Contains(strings.ToLower(h["via"]), "varnish")
	}},
	{"Sucuri", ProtectionWAF, func(h map[string]string, _, cookies string) bool {
		return has(h, "x-sucuri-id") || has(h, "x-sucuri-cache") || strings.Contains(cookies, "sucuri_cloudproxy")
	}},
	{"Imperva / Incapsula", ProtectionWAF, func(h map[string]string, _, cookies string) bool {
		return has(h, "x-iinfo") || strings.Contains(cookies, "incap_ses") || strings.Contains(cookies, "visid_incap")
	}},
	{"F5 BIG-IP ASM", ProtectionWAF, func(h map[string]string, _, cookies string) bool {
		return has(h, "x-wa-info") || (strings.Contains(cookies, "TS") && headerContains(h, "server", "BigIP"))
	}},
	{"Barracuda", ProtectionWAF, func(_ map[string]string, _, cookies string) bool {
		return strings.Contains(cookies, "barra_counter")
	}},
	{"ModSecurity", ProtectionWAF, func(h map[string]string, _, _ string) bool {
		return strings.Contains(strings.ToLower(h["server"]), "mod_security")
	}},
	{"Nginx", ProtectionProxy, func(h map[string]string, _, _ string) bool {
		return strings.HasPrefix(strings.ToLower(h["server"]), "nginx")
	}},
	{"Apache", ProtectionProxy, func(h map[string]string, _, _ string) bool {
		return strings.HasPrefix(strings.ToLower(h["server"]), "apache")
	}},
	{"Wordfence", ProtectionWAF, func(h map[string]string, body, _ string) bool {
		return strings.Contains(body, "wordfence") || has(h, "x-wordfence-firewall")
	}},
	{"Cloudflare DDoS Protection", ProtectionWAF, func(h map[string]string, body, _ string) bool {
		return strings.Contains(body, "Checking if the site connection is secure") && has(h, "cf-ray")
	}},
	{"Squarespace", ProtectionCDN, func(h map[string]string, _, _ string) bool {
		return headerContains(h, "server", "Squarespace")
	}},
	{"Vercel", ProtectionCDN, func(h map[string]string, _, _ string) bool {
		return has(h, "x-vercel-id") || headerContains(h, "server", "Vercel")
	}},
	{"Netlify", ProtectionCDN, func(h map[string]string, _, _ string) bool {
		return has(h, "x-nf-request-id") || h["server"] == "Netlify"
	}},
	{"Shopify", ProtectionCDN, func(h map[string]string, _, _ string) bool {
		return has(h, "x-shopid") || has(h, "x-shardid")
	}},
	{"Reblaze", ProtectionWAF, func(_ map[string]string, _, cookies string) bool {
		return strings.Contains(cookies, "rbzid")
	}},
	{"Pantheon", ProtectionCDN, func(h map[string]string, _, _ string) bool {
		return has(h, "x-pantheon-endpoint") || has(h, "x-styx-req-id")
	}},
	{"Azure Front Door", ProtectionCDN, func(h map[string]string, _, _ string) bool {
		return has(h, "x-azure-ref") || has(h, "x-ms-ref")
	}},
	{"Google Cloud CDN", ProtectionCDN, func(h map[string]string, _, _ string) bool {
		return headerContains(h, "via", "google") || headerContains(h, "server", "gws") || headerContains(h, "server", "ESF")
	}},
}

// MatchWAF evaluates every signature against lowercased headers, the body
// snippet and the Set-Cookie header. The body is truncated before matching.
func MatchWAF(headers map[string]string, body, cookies string) []WAFMatch {
	if len(body) > wafBodyLimit {
		body = body[:wafBodyLimit]
	}
	matches := []WAFMatch{}
	for _, s := range wafSignatures {
		if s.match(headers, body, cookies) {
			matches = append(matches, WAFMatch{Name: s.name, Type: s.kind})
		}
	}
	return matches
}

// SecurityHeaderPresence flags which security headers a response carries.
type SecurityHeaderPresence struct {
	HSTS bool `json:"hsts"`
	CSP  bool `json:"csp"`
	XFO  bool `json:"xfo"`
	XCTO bool `json:"xcto"`
	RP   bool `json:"rp"`
	PP   bool `json:"pp"`
}

var interestingHeaderNames = []string{
	"server", "x-powered-by", "via", "x-generator", "x-drupal-cache",
	"x-wp-total", "x-shopify-stage", "cf-ray", "x-amz-cf-id",
	"x-vercel-id", "x-nf-request-id",
}

// WAFReport is the WAF/CDN detection verdict.
type WAFReport struct {
	URL                string                 `json:"url"`
	StatusCode         int                    `json:"statusCode"`
	Detected           []WAFMatch             `json:"detected"`
	Protected          bool                   `json:"protected"`
	CDN                []string               `json:"cdn"`
	WAFs               []string               `json:"wafs"`
	SecurityHeaders    SecurityHeaderPresence `json:"securityHeaders"`
	InterestingHeaders map[string]string      `json:"interestingHeaders"`
}

// WAFAnalyzer fetches a page and names the protection in front of it.
type WAFAnalyzer struct {
	Fetcher PageFetcher
}

func (a *WAFAnalyzer) Name() string { return "waf-detect" }

func (a *WAFAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	res, err := a.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return nil, err
	}
	flat := FlattenHeaders(res.Headers)
	detected := MatchWAF(flat, string(res.Body), cookieHeader(res.Headers))
	return BuildWAFReport(target.URL, res.Status, flat, detected), nil
}

// BuildWAFReport splits matches into WAF and CDN lists.
func BuildWAFReport(url string, status int, headers map[string]string, detected []WAFMatch) *WAFReport {
	report := &WAFReport{
		URL:        url,
		StatusCode: status,
		Detected:   detected,
		CDN:        []string{},
		WAFs:       []string{},
		SecurityHeaders: SecurityHeaderPresence{
			HSTS: has(headers, "strict-transport-security"),
			CSP:  has(headers, "content-security-policy"),
			XFO:  has(headers, "x-frame-options"),
			XCTO: has(headers, "x-content-type-options"),
			RP:   has(headers, "referrer-policy"),
			PP:   has(headers, "permissions-policy"),
		},
		InterestingHeaders: map[string]string{},
	}
	for _, d := range detected {
		switch d.Type {
		case ProtectionWAF:
			report.WAFs = append(report.WAFs, d.Name)
			report.Protected = true
		case ProtectionCDN:
			report.CDN = append(report.CDN, d.Name)
		}
	}
	for _, k := range interestingHeaderNames {
		if v, ok := headers[k]; ok {
			report.InterestingHeaders[k] = v
		}
	}
	return report
}
