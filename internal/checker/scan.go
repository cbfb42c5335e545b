package checker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/khanhnv2901/siteterminal/internal/fetch"
)

// Reachability is the HTTP half of a quick scan.
type Reachability struct {
	Reachable bool    `json:"reachable"`
	Status    *int    `json:"status"`
	Server    *string `json:"server"`
}

// QuickScanReport is a combined DNS and HTTP snapshot.
type QuickScanReport struct {
	Domain    string       `json:"domain"`
	Timestamp string       `json:"timestamp"`
	DNS       *DNSRecords  `json:"dns"`
	HTTP      Reachability `json:"http"`
}

// QuickScanner runs a DNS lookup and an HTTP reachability check in
// parallel. Either half may fail without failing the scan.
type QuickScanner struct {
	Guard   fetch.HostGuard
	DNS     *DNSAnalyzer
	Fetcher PageFetcher
	Now     func() time.Time
}

func (s *QuickScanner) Name() string { return "scan" }

func (s *QuickScanner) Analyze(ctx context.Context, target Target) (any, error) {
	if err := guardDomain(ctx, s.Guard, target.Domain); err != nil {
		return nil, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	report := &QuickScanReport{Domain: target.Domain, Timestamp: now().UTC().Format(time.RFC3339Nano)}

	var g errgroup.Group
	g.Go(func() error {
		records := s.DNS.Lookup(ctx, target.Domain)
		report.DNS = &records
		return nil
	})
	g.Go(func() error {
		report.HTTP = s.reach(ctx, target.Domain)
		return nil
	})
	_ = g.Wait()
	return report, nil
}

// reach tries HTTPS, then plain HTTP.
func (s *QuickScanner) reach(ctx context.Context, domain string) Reachability {
	for _, scheme := range []string{"https", "http"} {
		res, err := s.Fetcher.Fetch(ctx, scheme+"://"+domain+"/")
		if err != nil {
			continue
		}
		r := Reachability{Reachable: true, Status: &res.Status}
		if server := res.Headers.Get("Server"); server != "" {
			r.Server = &server
		}
		return r
	}
	return Reachability{}
}
