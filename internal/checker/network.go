package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/khanhnv2901/siteterminal/internal/fetch"
	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
)

// ServicePort is a TCP port and the service usually behind it.
type ServicePort struct {
	Port    int
	Service string
}

// CommonPorts is the default port list for PortScanner.
var CommonPorts = []ServicePort{
	{21, "FTP"},
	{22, "SSH"},
	{23, "Telnet"},
	{25, "SMTP"},
	{53, "DNS"},
	{80, "HTTP"},
	{110, "POP3"},
	{143, "IMAP"},
	{443, "HTTPS"},
	{445, "SMB"},
	{3306, "MySQL"},
	{3389, "RDP"},
	{5432, "PostgreSQL"},
	{8080, "HTTP-Alt"},
	{8443, "HTTPS-Alt"},
}

// PortStatus is the probe result for one port.
type PortStatus struct {
	Port        int      `json:"port"`
	Service     string   `json:"service"`
	Open        bool     `json:"open"`
	Risk        Severity `json:"risk"`
	Description string   `json:"description,omitempty"`
}

// PortScanReport is the open-ports verdict.
type PortScanReport struct {
	Domain       string       `json:"domain"`
	TotalChecked int          `json:"totalChecked"`
	OpenCount    int          `json:"openCount"`
	Ports        []PortStatus `json:"ports"`
	Issues       []string     `json:"issues"`
}

// PortScanner checks a fixed list of TCP ports with plain connects.
type PortScanner struct {
	Guard      fetch.HostGuard
	Ports      []ServicePort
	Timeout    time.Duration
	MaxWorkers int
}

func (s *PortScanner) Name() string { return "open-ports" }

func (s *PortScanner) Analyze(ctx context.Context, target Target) (any, error) {
	if s.Guard != nil {
		if err := s.Guard.AssertSafeHostname(ctx, target.Domain); err != nil {
			return nil, err
		}
	}
	return s.Scan(ctx, target.Domain), nil
}

// Scan connects to every port through a worker pool. Results keep the
// order of the port list.
func (s *PortScanner) Scan(ctx context.Context, host string) *PortScanReport {
	ports := s.Ports
	if len(ports) == 0 {
		ports = CommonPorts
	}
	workers := s.MaxWorkers
	if workers <= 0 {
		workers = len(ports)
	}

	results := make([]PortStatus, len(ports))
	indexes := make(chan int)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				p := ports[idx]
				results[idx] = PortStatus{
					Port:    p.Port,
					Service: p.Service,
					Open:    s.checkPort(ctx, host, p.Port),
					Risk:    portRisk(p.Port),
				}
			}
		}()
	}

	for i := range ports {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	report := &PortScanReport{Domain: host, TotalChecked: len(ports), Ports: results, Issues: []string{}}
	criticalCount, highCount := 0, 0
	for i := range report.Ports {
		p := &report.Ports[i]
		if !p.Open {
			continue
		}
		report.OpenCount++
		p.Description = describePort(p)
		switch p.Risk {
		case SeverityCritical:
			criticalCount++
		case SeverityHigh:
			highCount++
		}
	}
	if criticalCount > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("%d critical port(s) exposed (Telnet/RDP)", criticalCount))
	}
	if highCount > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("%d high-risk port(s) exposed (SSH/Database/SMB)", highCount))
	}
	return report
}

func (s *PortScanner) checkPort(ctx context.Context, host string, port int) bool {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = constants.PortProbeTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// portRisk assigns a risk level to an open port.
func portRisk(port int) Severity {
	switch port {
	case 23, 3389:
		return SeverityCritical
	case 21, 22, 445, 3306, 5432:
		return SeverityHigh
	case 25, 110, 143, 8080, 8443:
		return SeverityMedium
	case 80, 443:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

func describePort(p *PortStatus) string {
	switch p.Risk {
	case SeverityCritical:
		return fmt.Sprintf("CRITICAL: Port %d (%s) should not be exposed to the internet", p.Port, p.Service)
	case SeverityHigh:
		return fmt.Sprintf("HIGH RISK: Port %d (%s) exposed - ensure proper authentication and encryption", p.Port, p.Service)
	case SeverityMedium:
		return fmt.Sprintf("MEDIUM RISK: Port %d (%s) exposed - review security configuration", p.Port, p.Service)
	case SeverityLow:
		return fmt.Sprintf("LOW RISK: Port %d (%s) is a standard web port", p.Port, p.Service)
	default:
		return fmt.Sprintf("INFO: Port %d (%s) is open", p.Port, p.Service)
	}
}

// CNAMEResolver is the DNS surface TakeoverAnalyzer needs.
type CNAMEResolver interface {
	LookupCNAME(ctx context.Context, host string) ([]string, error)
	LookupIPs(ctx context.Context, host string) ([]string, error)
}

type takeoverProvider struct {
	name    string
	pattern *regexp.Regexp
}

var takeoverProviders = []takeoverProvider{
	{"GitHub Pages", regexp.MustCompile(`(?i)\.github\.io$`)},
	{"Heroku", regexp.MustCompile(`(?i)\.herokuapp\.com$`)},
	{"Amazon S3", regexp.MustCompile(`(?i)\.s3\.amazonaws\.com$`)},
	{"Azure Websites", regexp.MustCompile(`(?i)\.azurewebsites\.net$`)},
	{"Fastly", regexp.MustCompile(`(?i)\.fastly\.net$`)},
	{"Ghost", regexp.MustCompile(`(?i)\.ghost\.io$`)},
	{"Netlify", regexp.MustCompile(`(?i)\.netlify\.app$`)},
	{"Vercel", regexp.MustCompile(`(?i)\.vercel\.app$`)},
}

// takeoverFingerprints are page texts served by a provider for an
// unclaimed resource.
var takeoverFingerprints = map[string][]string{
	"GitHub Pages":   {"There isn't a GitHub Pages site here", "For root URLs (like http://example.com/) you must provide an index.html file"},
	"Heroku":         {"No such app", "herokucdn.com/error-pages/no-such-app.html"},
	"Amazon S3":      {"NoSuchBucket", "The specified bucket does not exist"},
	"Azure Websites": {"404 Web Site not found", "Error 404 - Web app not found"},
	"Fastly":         {"Fastly error: unknown domain"},
	"Ghost":          {"The thing you were looking for is no longer here"},
	"Netlify":        {"Not Found - Request ID"},
	"Vercel":         {"DEPLOYMENT_NOT_FOUND"},
}

// TakeoverRisk describes one CNAME pointing at a known cloud service.
type TakeoverRisk struct {
	Target      string   `json:"target"`
	Service     string   `json:"service"`
	Reachable   bool     `json:"reachable"`
	Vulnerable  bool     `json:"vulnerable"`
	Severity    Severity `json:"severity"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// TakeoverReport is the dangling-CNAME verdict.
type TakeoverReport struct {
	Domain        string         `json:"domain"`
	CNAME         []string       `json:"cname"`
	TakeoverRisks []TakeoverRisk `json:"takeoverRisks"`
	IsVulnerable  bool           `json:"isVulnerable"`
	Summary       string         `json:"summary"`
}

// TakeoverAnalyzer looks for CNAMEs to cloud services whose target no
// longer exists.
type TakeoverAnalyzer struct {
	Guard    fetch.HostGuard
	Resolver CNAMEResolver
	// Fetcher, when set, is used to look for unclaimed-resource pages on
	// CNAME targets that still resolve.
	Fetcher PageFetcher
}

func (a *TakeoverAnalyzer) Name() string { return "takeover-check" }

func (a *TakeoverAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	if a.Guard != nil {
		if err := a.Guard.AssertSafeHostname(ctx, target.Domain); err != nil {
			return nil, err
		}
	}
	return a.Check(ctx, target.Domain), nil
}

// Check never fails: a missing CNAME is the common, healthy case.
func (a *TakeoverAnalyzer) Check(ctx context.Context, domain string) *TakeoverReport {
	cnames, err := a.Resolver.LookupCNAME(ctx, domain)
	if err != nil || cnames == nil {
		cnames = []string{}
	}

	report := &TakeoverReport{Domain: domain, CNAME: cnames, TakeoverRisks: []TakeoverRisk{}}
	for _, record := range cnames {
		provider, ok := matchTakeoverProvider(record)
		if !ok {
			continue
		}

		// Only a definite "no such name" or an empty answer counts as dangling.
		reachable := true
		ips, err := a.Resolver.LookupIPs(ctx, record)
		if errors.Is(err, ErrNXDomain) || (err == nil && len(ips) == 0) {
			reachable = false
		}

		risk := TakeoverRisk{Target: record, Service: provider, Reachable: reachable, Vulnerable: !reachable}
		if reachable && a.Fetcher != nil {
			risk.Fingerprint = a.fingerprint(ctx, domain, provider)
			risk.Vulnerable = risk.Fingerprint != ""
		}
		risk.Severity = SeverityLow
		if risk.Vulnerable {
			risk.Severity = SeverityHigh
			report.IsVulnerable = true
		}
		report.TakeoverRisks = append(report.TakeoverRisks, risk)
	}

	if len(report.TakeoverRisks) > 0 {
		report.Summary = fmt.Sprintf("%d cloud service CNAMEs detected.", len(report.TakeoverRisks))
	} else {
		report.Summary = "No obvious dangling CNAMEs to known vulnerable services found."
	}
	return report
}

func matchTakeoverProvider(cname string) (string, bool) {
	for _, p := range takeoverProviders {
		if p.pattern.MatchString(cname) {
			return p.name, true
		}
	}
	return "", false
}

// fingerprint fetches the domain over HTTPS, then HTTP, and returns the
// first provider error text found in the body.
func (a *TakeoverAnalyzer) fingerprint(ctx context.Context, domain, provider string) string {
	for _, scheme := range []string{"https", "http"} {
		res, err := a.Fetcher.Fetch(ctx, scheme+"://"+domain+"/")
		if err != nil {
			continue
		}
		body := string(res.Body)
		for _, pattern := range takeoverFingerprints[provider] {
			if strings.Contains(body, pattern) {
				return pattern
			}
		}
		return ""
	}
	return ""
}
