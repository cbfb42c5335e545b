package checker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"

	"github.com/khanhnv2901/siteterminal/internal/fetch"
)

// WhoisReport is the parsed registration record. A failed lookup still
// produces a report, with Error set.
type WhoisReport struct {
	Domain          string   `json:"domain"`
	Registrar       string   `json:"registrar,omitempty"`
	RegistrarURL    string   `json:"registrarUrl,omitempty"`
	Registrant      string   `json:"registrant,omitempty"`
	Country         string   `json:"country,omitempty"`
	CreatedDate     string   `json:"createdDate,omitempty"`
	UpdatedDate     string   `json:"updatedDate,omitempty"`
	ExpirationDate  string   `json:"expirationDate,omitempty"`
	DaysUntilExpiry *int     `json:"daysUntilExpiry,omitempty"`
	NameServers     []string `json:"nameServers"`
	Status          []string `json:"status"`
	DNSSEC          bool     `json:"dnssec"`
	Error           string   `json:"error,omitempty"`
}

// WhoisAnalyzer queries the registry WHOIS service for a domain.
type WhoisAnalyzer struct {
	Guard   fetch.HostGuard
	Timeout time.Duration
	// Query returns raw WHOIS text; nil uses the likexian client.
	Query func(domain string) (string, error)
	Now   func() time.Time
}

func (a *WhoisAnalyzer) Name() string { return "whois" }

func (a *WhoisAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	if a.Guard != nil {
		if err := a.Guard.AssertSafeHostname(ctx, target.Domain); err != nil {
			return nil, err
		}
	}
	return a.Lookup(ctx, target.Domain), nil
}

// Lookup runs the query in a goroutine bounded by Timeout and the context.
func (a *WhoisAnalyzer) Lookup(ctx context.Context, domain string) *WhoisReport {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	query := a.Query
	if query == nil {
		query = func(d string) (string, error) { return whois.Whois(d) }
	}

	type outcome struct {
		raw string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		raw, err := query(domain)
		done <- outcome{raw, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return failedWhois(domain, "WHOIS lookup failed")
	case <-timer.C:
		return failedWhois(domain, fmt.Sprintf("WHOIS lookup timed out after %s", timeout))
	case res := <-done:
		if res.err != nil {
			return failedWhois(domain, "WHOIS lookup failed")
		}
		return a.parse(domain, res.raw)
	}
}

func failedWhois(domain, msg string) *WhoisReport {
	return &WhoisReport{Domain: domain, NameServers: []string{}, Status: []string{}, Error: msg}
}

func (a *WhoisAnalyzer) parse(domain, raw string) *WhoisReport {
	info, err := whoisparser.Parse(raw)
	if err != nil {
		if errors.Is(err, whoisparser.ErrNotFoundDomain) {
			return failedWhois(domain, "Domain is not registered")
		}
		return failedWhois(domain, "WHOIS lookup failed")
	}

	report := &WhoisReport{Domain: domain, NameServers: []string{}, Status: []string{}}
	if info.Registrar != nil {
		report.Registrar = info.Registrar.Name
		report.RegistrarURL = info.Registrar.ReferralURL
	}
	if info.Registrant != nil {
		report.Registrant = info.Registrant.Organization
		if report.Registrant == "" {
			report.Registrant = info.Registrant.Name
		}
		report.Country = info.Registrant.Country
	}
	if d := info.Domain; d != nil {
		report.CreatedDate = d.CreatedDate
		report.UpdatedDate = d.UpdatedDate
		report.ExpirationDate = d.ExpirationDate
		report.DNSSEC = d.DNSSec
		if d.NameServers != nil {
			report.NameServers = d.NameServers
		}
		if d.Status != nil {
			report.Status = d.Status
		}
		if expiry, err := parseWhoisDate(d.ExpirationDate); err == nil {
			now := time.Now
			if a.Now != nil {
				now = a.Now
			}
			days := int(expiry.Sub(now()).Hours() / 24)
			report.DaysUntilExpiry = &days
		}
	}
	return report
}

// parseWhoisDate tries the date layouts registries commonly use.
func parseWhoisDate(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05.0Z",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02-Jan-2006",
		"2006.01.02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %q", s)
}
