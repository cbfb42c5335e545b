package checker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/khanhnv2901/siteterminal/internal/fetch"
)

// DefaultNameserver is queried when no nameserver is configured.
const DefaultNameserver = "8.8.8.8:53"

// ErrNXDomain reports an authoritative "name does not exist" answer.
var ErrNXDomain = errors.New("domain does not exist")

// DNSResolver sends single recursive queries to one nameserver.
type DNSResolver struct {
	Nameserver string
	Timeout    time.Duration
}

// NewDNSResolver returns a resolver for nameserver ("host:port"); empty uses
// DefaultNameserver.
func NewDNSResolver(nameserver string, timeout time.Duration) *DNSResolver {
	if nameserver == "" {
		nameserver = DefaultNameserver
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DNSResolver{Nameserver: nameserver, Timeout: timeout}
}

// Query returns the answer section for name and qtype. NXDOMAIN is reported
// as ErrNXDomain; other non-success rcodes as errors.
func (r *DNSResolver) Query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	client := &dns.Client{Timeout: r.Timeout}

	msg := &dns.Msg{}
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	resp, _, err := client.ExchangeContext(ctx, msg, r.Nameserver)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", dns.TypeToString[qtype], err)
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
		return resp.Answer, nil
	case dns.RcodeNameError:
		return nil, ErrNXDomain
	default:
		return nil, fmt.Errorf("%s query failed: %s", dns.TypeToString[qtype], dns.RcodeToString[resp.Rcode])
	}
}

func trimDot(s string) string { return strings.TrimSuffix(s, ".") }

// LookupCNAME returns the CNAME targets of host, without trailing dots.
func (r *DNSResolver) LookupCNAME(ctx context.Context, host string) ([]string, error) {
	answer, err := r.Query(ctx, host, dns.TypeCNAME)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, rr := range answer {
		if c, ok := rr.(*dns.CNAME); ok && strings.EqualFold(trimDot(c.Hdr.Name), trimDot(host)) {
			out = append(out, trimDot(c.Target))
		}
	}
	return out, nil
}

// LookupIPs returns the A and AAAA addresses of host.
func (r *DNSResolver) LookupIPs(ctx context.Context, host string) ([]string, error) {
	var ips []string
	var firstErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		answer, err := r.Query(ctx, host, qtype)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, rr := range answer {
			switch v := rr.(type) {
			case *dns.A:
				ips = append(ips, v.A.String())
			case *dns.AAAA:
				ips = append(ips, v.AAAA.String())
			}
		}
	}
	if len(ips) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return ips, nil
}

// MXRecord is a mail exchanger.
type MXRecord struct {
	Exchange string `json:"exchange"`
	Priority uint16 `json:"priority"`
}

// CAARecord is a certification authority authorization entry.
type CAARecord struct {
	Flag  uint8  `json:"flag"`
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// DNSRecords groups answers by type. A type whose query failed is empty.
type DNSRecords struct {
	A     []string    `json:"A"`
	AAAA  []string    `json:"AAAA"`
	CNAME []string    `json:"CNAME"`
	MX    []MXRecord  `json:"MX"`
	TXT   []string    `json:"TXT"`
	NS    []string    `json:"NS"`
	CAA   []CAARecord `json:"CAA"`
}

// DNSReport is the DNS verdict for a domain.
type DNSReport struct {
	Domain  string     `json:"domain"`
	Records DNSRecords `json:"records"`
}

// DNSAnalyzer queries the common record types for a domain in parallel.
type DNSAnalyzer struct {
	Guard    fetch.HostGuard
	Resolver *DNSResolver
}

func (a *DNSAnalyzer) Name() string { return "dns" }

func (a *DNSAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	if a.Guard != nil {
		if err := a.Guard.AssertSafeHostname(ctx, target.Domain); err != nil {
			return nil, err
		}
	}
	return &DNSReport{Domain: target.Domain, Records: a.Lookup(ctx, target.Domain)}, nil
}

// Lookup never fails as a whole; each record type degrades to an empty list.
func (a *DNSAnalyzer) Lookup(ctx context.Context, domain string) DNSRecords {
	r := a.Resolver
	if r == nil {
		r = NewDNSResolver("", 0)
	}
	records := DNSRecords{
		A: []string{}, AAAA: []string{}, CNAME: []string{}, MX: []MXRecord{},
		TXT: []string{}, NS: []string{}, CAA: []CAARecord{},
	}

	// Each goroutine writes only its own field.
	var g errgroup.Group
	query := func(qtype uint16, collect func(dns.RR)) {
		g.Go(func() error {
			answer, err := r.Query(ctx, domain, qtype)
			if err != nil {
				return nil
			}
			for _, rr := range answer {
				collect(rr)
			}
			return nil
		})
	}

	query(dns.TypeA, func(rr dns.RR) {
		if v, ok := rr.(*dns.A); ok {
			records.A = append(records.A, v.A.String())
		}
	})
	query(dns.TypeAAAA, func(rr dns.RR) {
		if v, ok := rr.(*dns.AAAA); ok {
			records.AAAA = append(records.AAAA, v.AAAA.String())
		}
	})
	query(dns.TypeCNAME, func(rr dns.RR) {
		if v, ok := rr.(*dns.CNAME); ok {
			records.CNAME = append(records.CNAME, trimDot(v.Target))
		}
	})
	query(dns.TypeMX, func(rr dns.RR) {
		if v, ok := rr.(*dns.MX); ok {
			records.MX = append(records.MX, MXRecord{Exchange: trimDot(v.Mx), Priority: v.Preference})
		}
	})
	query(dns.TypeTXT, func(rr dns.RR) {
		if v, ok := rr.(*dns.TXT); ok {
			records.TXT = append(records.TXT, strings.Join(v.Txt, ""))
		}
	})
	query(dns.TypeNS, func(rr dns.RR) {
		if v, ok := rr.(*dns.NS); ok {
			records.NS = append(records.NS, trimDot(v.Ns))
		}
	})
	query(dns.TypeCAA, func(rr dns.RR) {
		if v, ok := rr.(*dns.CAA); ok {
			records.CAA = append(records.CAA, CAARecord{Flag: v.Flag, Tag: v.Tag, Value: v.Value})
		}
	})

	_ = g.Wait()
	return records
}
