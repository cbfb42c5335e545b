package checker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/khanhnv2901/siteterminal/internal/fetch"
	"github.com/khanhnv2901/siteterminal/internal/intel"
	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

// HostResolver resolves a hostname to addresses.
type HostResolver interface {
	LookupIPs(ctx context.Context, host string) ([]string, error)
}

func guardDomain(ctx context.Context, guard fetch.HostGuard, domain string) error {
	if guard == nil {
		return nil
	}
	return guard.AssertSafeHostname(ctx, domain)
}

// firstIP resolves host and returns its first address.
func firstIP(ctx context.Context, r HostResolver, host string) (string, error) {
	ips, err := r.LookupIPs(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("resolve %s: %w", host, apperrors.ErrUnresolvable)
	}
	return ips[0], nil
}

// Subdomain classes, in reporting order.
var subdomainClasses = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"mail", regexp.MustCompile(`(?i)^(mail|smtp|mx|webmail|imap|pop)\.`)},
	{"dev", regexp.MustCompile(`(?i)^(dev|staging|test|beta|uat|qa|demo|sandbox)\.`)},
	{"api", regexp.MustCompile(`(?i)^(api|gateway|rest|graphql|v\d)\.`)},
	{"admin", regexp.MustCompile(`(?i)^(admin|panel|dashboard|cp|control|manage|portal|back|cms|login)\.`)},
	{"cdn", regexp.MustCompile(`(?i)^(cdn|static|assets|media|img|images|files|s3|storage)\.`)},
}

// ClassifiedSubdomains groups names by role. A name may appear in several
// groups; "other" holds names in none.
type ClassifiedSubdomains struct {
	Apex  []string `json:"apex"`
	WWW   []string `json:"www"`
	Mail  []string `json:"mail"`
	Dev   []string `json:"dev"`
	API   []string `json:"api"`
	Admin []string `json:"admin"`
	CDN   []string `json:"cdn"`
	Other []string `json:"other"`
}

// SubdomainReport lists names seen in certificate transparency logs.
type SubdomainReport struct {
	Domain            string               `json:"domain"`
	RegistrableDomain string               `json:"registrableDomain,omitempty"`
	Total             int                  `json:"total"`
	CertCount         int                  `json:"certCount"`
	Subdomains        []string             `json:"subdomains"`
	Classified        ClassifiedSubdomains `json:"classified"`
}

// SubdomainAnalyzer enumerates subdomains through crt.sh.
type SubdomainAnalyzer struct {
	Intel *intel.Client
}

func (a *SubdomainAnalyzer) Name() string { return "subdomains" }

func (a *SubdomainAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	entries, err := a.Intel.CertificateNames(ctx, target.Domain)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.Split(e.NameValue, "\n")...)
	}
	report := ClassifySubdomains(target.Domain, names)
	report.CertCount = len(entries)
	return report, nil
}

// ClassifySubdomains dedupes and sorts names under domain, dropping
// wildcards' "*." prefix and names that are not under domain.
func ClassifySubdomains(domain string, names []string) *SubdomainReport {
	domain = strings.ToLower(domain)
	seen := map[string]bool{}
	subs := []string{}
	for _, name := range names {
		sub := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "*.")
		if sub == "" || seen[sub] || strings.Contains(sub, "?") || len(sub) >= 253 {
			continue
		}
		if sub != domain && !strings.HasSuffix(sub, "."+domain) {
			continue
		}
		seen[sub] = true
		subs = append(subs, sub)
	}
	sort.Strings(subs)

	c := ClassifiedSubdomains{
		Apex: []string{}, WWW: []string{}, Mail: []string{}, Dev: []string{},
		API: []string{}, Admin: []string{}, CDN: []string{}, Other: []string{},
	}
	groups := map[string]*[]string{"mail": &c.Mail, "dev": &c.Dev, "api": &c.API, "admin": &c.Admin, "cdn": &c.CDN}
	for _, s := range subs {
		matched := false
		if s == domain {
			c.Apex = append(c.Apex, s)
			matched = true
		}
		if strings.HasPrefix(s, "www.") {
			c.WWW = append(c.WWW, s)
			matched = true
		}
		for _, class := range subdomainClasses {
			if class.pattern.MatchString(s) {
				*groups[class.name] = append(*groups[class.name], s)
				matched = true
			}
		}
		if !matched {
			c.Other = append(c.Other, s)
		}
	}

	report := &SubdomainReport{Domain: domain, Total: len(subs), Subdomains: subs, Classified: c}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil {
		report.RegistrableDomain = etld1
	}
	return report
}

// waybackSensitive flags archived paths worth reviewing.
var waybackSensitive = regexp.MustCompile(`(?i)\.env(\.|$)|\.git/|wp-config\.php|config\.php|phpinfo\.php|admin/|administrator/|backup|dump\.sql|\.sql$|\.bak$|\.old$|passwd|id_rsa|\.pem$|credentials|secret|private|\.htaccess|server-status|readme\.(txt|md)|install\.(php|txt)|setup\.(php|txt)|debug|console|phpmyadmin|\.DS_Store|crossdomain\.xml`)

var waybackPriority = []struct {
	score   int
	pattern *regexp.Regexp
}{
	{100, regexp.MustCompile(`(?i)\.env|credentials|id_rsa|\.pem|secret`)},
	{90, regexp.MustCompile(`(?i)\.git/|wp-config|config\.php|passwd`)},
	{80, regexp.MustCompile(`(?i)backup|dump\.sql|\.sql|\.bak`)},
	{70, regexp.MustCompile(`(?i)admin|phpmyadmin|console|debug`)},
}

func waybackScore(u string) int {
	for _, p := range waybackPriority {
		if p.pattern.MatchString(u) {
			return p.score
		}
	}
	return 50
}

var waybackTypes = map[string]bool{
	"html": true, "php": true, "js": true, "css": true, "json": true,
	"xml": true, "txt": true, "pdf": true, "jpg": true, "png": true,
}

// ArchivedURL is one Wayback snapshot.
type ArchivedURL struct {
	URL       string `json:"url"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	MimeType  string `json:"mimetype"`
	Date      string `json:"date"`
}

// WaybackReport summarizes archived URLs for a domain.
type WaybackReport struct {
	Domain         string         `json:"domain"`
	TotalSnapshots int            `json:"totalSnapshots"`
	SensitiveURLs  []ArchivedURL  `json:"sensitiveUrls"`
	AllURLs        []ArchivedURL  `json:"allUrls"`
	ByType         map[string]int `json:"byType"`
	OldestSnapshot *string        `json:"oldestSnapshot"`
	NewestSnapshot *string        `json:"newestSnapshot"`
}

// WaybackAnalyzer looks for sensitive paths in the Wayback Machine index.
type WaybackAnalyzer struct {
	Intel *intel.Client
}

func (a *WaybackAnalyzer) Name() string { return "wayback" }

func (a *WaybackAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	rows, err := a.Intel.WaybackRows(ctx, target.Domain)
	if err != nil {
		return nil, err
	}
	return SummarizeWayback(target.Domain, rows), nil
}

func snapshotDate(ts string) string {
	if len(ts) < 8 {
		return "unknown"
	}
	return ts[0:4] + "-" + ts[4:6] + "-" + ts[6:8]
}

// SummarizeWayback turns CDX rows (header row first) into a report.
// Sensitive URLs are ordered by severity, keeping index order among equals.
func SummarizeWayback(domain string, rows [][]string) *WaybackReport {
	report := &WaybackReport{
		Domain:        domain,
		SensitiveURLs: []ArchivedURL{},
		AllURLs:       []ArchivedURL{},
		ByType:        map[string]int{},
	}
	if len(rows) < 2 {
		return report
	}

	all := make([]ArchivedURL, 0, len(rows)-1)
	for _, row := range rows[1:] {
		var e ArchivedURL
		fields := []*string{&e.URL, &e.Status, &e.Timestamp, &e.MimeType}
		for i := range fields {
			if i < len(row) {
				*fields[i] = row[i]
			}
		}
		e.Date = snapshotDate(e.Timestamp)
		all = append(all, e)
	}

	sensitive := []ArchivedURL{}
	timestamps := []string{}
	for _, e := range all {
		if waybackSensitive.MatchString(e.URL) {
			sensitive = append(sensitive, e)
		}
		if e.Timestamp != "" {
			timestamps = append(timestamps, e.Timestamp)
		}

		parts := strings.Split(e.URL, ".")
		ext := strings.ToLower(strings.Split(parts[len(parts)-1], "?")[0])
		if !waybackTypes[ext] {
			ext = "other"
		}
		report.ByType[ext]++
	}
	sort.SliceStable(sensitive, func(i, j int) bool {
		return waybackScore(sensitive[i].URL) > waybackScore(sensitive[j].URL)
	})
	sort.Strings(timestamps)

	report.TotalSnapshots = len(all)
	report.SensitiveURLs = sensitive[:min(len(sensitive), 50)]
	report.AllURLs = all[:min(len(all), 30)]
	if len(timestamps) > 0 {
		oldest, newest := snapshotDate(timestamps[0]), snapshotDate(timestamps[len(timestamps)-1])
		report.OldestSnapshot = &oldest
		report.NewestSnapshot = &newest
	}
	return report
}

// IPReport geolocates a domain's address.
type IPReport struct {
	Domain string        `json:"domain"`
	IP     string        `json:"ip"`
	Info   *intel.IPInfo `json:"info"`
}

// IPAnalyzer resolves a domain and looks its address up in ip-api.
type IPAnalyzer struct {
	Guard    fetch.HostGuard
	Resolver HostResolver
	Intel    *intel.Client
}

func (a *IPAnalyzer) Name() string { return "ip" }

func (a *IPAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	if err := guardDomain(ctx, a.Guard, target.Domain); err != nil {
		return nil, err
	}
	ip, err := firstIP(ctx, a.Resolver, target.Domain)
	if err != nil {
		return nil, err
	}
	info, err := a.Intel.LookupIP(ctx, ip, intel.IPFieldsFull)
	if err != nil {
		return nil, err
	}
	report := &IPReport{Domain: target.Domain, IP: ip}
	if info.Status == "success" {
		report.Info = info
	}
	return report, nil
}

var cdnKeywords = []string{"cloudflare", "akamai", "fastly", "cloudfront", "incapsula", "sucuri", "bunny", "netlify", "vercel"}

const noCDNDetected = "Generic / None detected"

// InfraReport maps hosting for a domain.
type InfraReport struct {
	Domain         string   `json:"domain"`
	IP             string   `json:"ip"`
	ASN            string   `json:"asn"`
	ISP            string   `json:"isp"`
	Org            string   `json:"org"`
	Location       string   `json:"location"`
	CDN            string   `json:"cdn"`
	ReverseIP      []string `json:"reverseIp"`
	ReverseIPCount int      `json:"reverseIpCount"`
}

// InfraMapAnalyzer chains DNS, ip-api and reverse IP lookups.
type InfraMapAnalyzer struct {
	Guard    fetch.HostGuard
	Resolver HostResolver
	Intel    *intel.Client
}

func (a *InfraMapAnalyzer) Name() string { return "infra-map" }

func (a *InfraMapAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	if err := guardDomain(ctx, a.Guard, target.Domain); err != nil {
		return nil, err
	}
	ip, err := firstIP(ctx, a.Resolver, target.Domain)
	if err != nil {
		return nil, err
	}
	info, err := a.Intel.LookupIP(ctx, ip, intel.IPFieldsInfra)
	if err != nil {
		return nil, err
	}

	// Reverse IP is best effort.
	reverse, err := a.Intel.ReverseIP(ctx, ip)
	if err != nil {
		reverse = []string{}
	}

	report := &InfraReport{
		Domain:         target.Domain,
		IP:             ip,
		ASN:            info.AS,
		ISP:            info.ISP,
		Org:            info.Org,
		Location:       strings.TrimSpace(info.City + ", " + info.Country),
		CDN:            DetectCDN(info.ISP, info.Org),
		ReverseIP:      reverse[:min(len(reverse), 10)],
		ReverseIPCount: len(reverse),
	}
	return report, nil
}

// DetectCDN returns the first CDN keyword found in the ISP or org name.
func DetectCDN(isp, org string) string {
	isp, org = strings.ToLower(isp), strings.ToLower(org)
	for _, k := range cdnKeywords {
		if strings.Contains(isp, k) || strings.Contains(org, k) {
			return k
		}
	}
	return noCDNDetected
}

// CVEFinding is one CVE matched to a technology.
type CVEFinding struct {
	ID        string `json:"id"`
	Summary   string `json:"summary"`
	CVSS      any    `json:"cvss"`
	Published string `json:"published"`
}

// TechVulnerabilities lists CVEs for one advertised technology.
type TechVulnerabilities struct {
	Technology string       `json:"technology"`
	Findings   []CVEFinding `json:"findings"`
}

// VulnReport lists CVEs for technologies a site advertises in headers.
type VulnReport struct {
	Target          string                `json:"target"`
	Techs           []string              `json:"techs"`
	Vulnerabilities []TechVulnerabilities `json:"vulnerabilities"`
	Message         string                `json:"message,omitempty"`
}

const maxCVEsPerTech = 5

// VulnAnalyzer checks Server and X-Powered-By products against CIRCL.
type VulnAnalyzer struct {
	Fetcher PageFetcher
	Intel   *intel.Client
}

func (a *VulnAnalyzer) Name() string { return "vulns" }

func (a *VulnAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	res, err := a.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return nil, err
	}
	report := &VulnReport{Target: target.URL, Techs: []string{}, Vulnerabilities: []TechVulnerabilities{}}
	for _, h := range []string{"Server", "X-Powered-By"} {
		if v := res.Headers.Get(h); v != "" {
			report.Techs = append(report.Techs, v)
		}
	}
	if len(report.Techs) == 0 {
		report.Message = "No specific technologies identified from headers to check against CVE database."
		return report, nil
	}

	for _, tech := range report.Techs {
		cves, ok, err := a.Intel.SearchCVE(ctx, productName(tech))
		if err != nil || !ok {
			continue
		}
		findings := []CVEFinding{}
		for _, c := range cves[:min(len(cves), maxCVEsPerTech)] {
			findings = append(findings, CVEFinding{ID: c.ID, Summary: c.Summary, CVSS: c.CVSS, Published: c.Published})
		}
		report.Vulnerabilities = append(report.Vulnerabilities, TechVulnerabilities{Technology: tech, Findings: findings})
	}
	return report, nil
}

// productName reduces "nginx/1.18.0 (Ubuntu)" to "nginx".
func productName(tech string) string {
	name := strings.Split(tech, "/")[0]
	name = strings.Split(name, " ")[0]
	return strings.ToLower(name)
}

// ShodanLocation is where Shodan places a host.
type ShodanLocation struct {
	City    string `json:"city"`
	Country string `json:"country"`
	Code    string `json:"code"`
}

// ShodanReport is Shodan's view of a domain's address.
type ShodanReport struct {
	IP         string          `json:"ip"`
	Org        string          `json:"org,omitempty"`
	ISP        string          `json:"isp,omitempty"`
	OS         *string         `json:"os"`
	Ports      []int           `json:"ports"`
	Vulns      []string        `json:"vulns"`
	Tags       []string        `json:"tags"`
	LastUpdate string          `json:"lastUpdate,omitempty"`
	Location   *ShodanLocation `json:"location,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// ShodanAnalyzer resolves a domain and fetches Shodan's host record.
type ShodanAnalyzer struct {
	Guard    fetch.HostGuard
	Resolver HostResolver
	Intel    *intel.Client
}

func (a *ShodanAnalyzer) Name() string { return "shodan" }

func (a *ShodanAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	empty := func(ip, msg string) *ShodanReport {
		return &ShodanReport{IP: ip, Ports: []int{}, Vulns: []string{}, Tags: []string{}, Message: msg}
	}
	if !a.Intel.HasShodanKey() {
		return empty("", "Shodan API Key not configured. Please add SHODAN_API_KEY to environment variables."), nil
	}
	if err := guardDomain(ctx, a.Guard, target.Domain); err != nil {
		return nil, err
	}
	ip, err := firstIP(ctx, a.Resolver, target.Domain)
	if err != nil {
		return nil, err
	}

	host, err := a.Intel.ShodanLookup(ctx, ip)
	if errors.Is(err, intel.ErrHostNotFound) {
		return empty(ip, "Host not found in Shodan database."), nil
	}
	if err != nil {
		return nil, err
	}

	report := &ShodanReport{
		IP:         host.IPStr,
		Org:        host.Org,
		ISP:        host.ISP,
		OS:         host.OS,
		Ports:      nonNil(host.Ports),
		Vulns:      nonNil(host.Vulns),
		Tags:       nonNil(host.Tags),
		LastUpdate: host.LastUpdate,
		Location:   &ShodanLocation{City: host.City, Country: host.CountryName, Code: host.CountryCode},
	}
	return report, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// BreachReport lists known breaches for a domain.
type BreachReport struct {
	Domain   string            `json:"domain"`
	Breaches []json.RawMessage `json:"breaches"`
	Message  string            `json:"message,omitempty"`
}

const breachKeyMessage = "Breach data collection requires an HIBP API key for detailed domain-wide searches."

// BreachAnalyzer queries Have I Been Pwned for a domain.
type BreachAnalyzer struct {
	Intel *intel.Client
}

func (a *BreachAnalyzer) Name() string { return "breach" }

func (a *BreachAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	report := &BreachReport{Domain: target.Domain, Breaches: []json.RawMessage{}}
	if !a.Intel.HasHIBPKey() {
		report.Message = breachKeyMessage
		return report, nil
	}
	breaches, err := a.Intel.Breaches(ctx, target.Domain)
	if err != nil {
		report.Message = breachKeyMessage
		return report, nil
	}
	report.Breaches = nonNil(breaches)
	return report, nil
}
