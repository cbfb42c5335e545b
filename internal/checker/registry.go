package checker

import (
	"fmt"
	"sort"
	"time"

	"github.com/khanhnv2901/siteterminal/internal/fetch"
	"github.com/khanhnv2901/siteterminal/internal/intel"
	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

// Entry describes how an analyzer is exposed.
type Entry struct {
	Analyzer Analyzer
	Input    InputKind
	// Privileged analyzers require an admin session.
	Privileged bool
	// CacheTTL is zero for uncached analyzers.
	CacheTTL time.Duration
	// LenientDomain lets domain inputs be pasted as URLs; the scheme and
	// path are stripped.
	LenientDomain bool
}

// Name returns the analyzer's route name.
func (e Entry) Name() string { return e.Analyzer.Name() }

// ParseTarget validates raw input for this entry. url and domain are the
// two query parameters an analyzer may receive.
func (e Entry) ParseTarget(rawURL, rawDomain string) (Target, error) {
	switch e.Input {
	case InputURL:
		if rawURL == "" {
			return Target{}, &InputError{Message: "Missing url parameter.", Err: apperrors.ErrMissingParameter}
		}
		return ParseURLTarget(rawURL)
	case InputEither:
		if rawURL == "" && rawDomain == "" {
			return Target{}, &InputError{Message: "Missing url or domain parameter.", Err: apperrors.ErrMissingParameter}
		}
		return URLOrDomain(rawURL, rawDomain)
	default:
		if rawDomain == "" {
			return Target{}, &InputError{Message: "Missing domain parameter.", Err: apperrors.ErrMissingParameter}
		}
		if e.LenientDomain {
			return CleanDomain(rawDomain)
		}
		return ParseDomainTarget(rawDomain)
	}
}

// Deps are the shared collaborators analyzers are built from.
type Deps struct {
	Guard    fetch.HostGuard
	Fetcher  *fetch.Fetcher
	Resolver *DNSResolver
	Intel    *intel.Client
}

// Registry holds every analyzer by name.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry wires the full analyzer set. Missing collaborators get
// defaults built around d.Guard.
func NewRegistry(d Deps) *Registry {
	if d.Fetcher == nil {
		d.Fetcher = fetch.New(d.Guard, fetch.DefaultOptions())
	}
	if d.Resolver == nil {
		d.Resolver = NewDNSResolver("", 0)
	}
	if d.Intel == nil {
		d.Intel = intel.New(intel.Config{})
	}

	dnsAnalyzer := &DNSAnalyzer{Guard: d.Guard, Resolver: d.Resolver}
	tlsAuditor := &TLSAuditor{Guard: d.Guard, Timeout: constants.TLSDialTimeout}

	public := func(a Analyzer, input InputKind) Entry {
		return Entry{Analyzer: a, Input: input, CacheTTL: constants.CacheTTL}
	}
	privileged := func(a Analyzer, input InputKind) Entry {
		return Entry{Analyzer: a, Input: input, Privileged: true, LenientDomain: input == InputDomain}
	}

	exposures := public(&ExposureScanner{Guard: d.Guard, Prober: d.Fetcher, Fetcher: d.Fetcher, Timeout: constants.ProbeTimeout}, InputURL)
	exposures.CacheTTL = constants.ExposureCacheTTL

	all := []Entry{
		public(&StatusAnalyzer{Fetcher: d.Fetcher}, InputURL),
		public(&HeadersAnalyzer{Fetcher: d.Fetcher}, InputURL),
		public(&HeadersGradeAnalyzer{Fetcher: d.Fetcher}, InputURL),
		public(&InspectAnalyzer{Fetcher: d.Fetcher}, InputURL),
		public(&SEOAnalyzer{Fetcher: d.Fetcher}, InputURL),
		public(&LinksAnalyzer{Fetcher: d.Fetcher}, InputURL),
		public(&RobotsAnalyzer{Fetcher: d.Fetcher}, InputURL),
		public(&SitemapAnalyzer{Fetcher: d.Fetcher}, InputURL),
		public(&CORSAnalyzer{Fetcher: d.Fetcher}, InputURL),
		exposures,
		public(&TechAnalyzer{Fetcher: d.Fetcher}, InputEither),
		public(tlsAuditor, InputDomain),
		public(&SecurityTxtAnalyzer{Fetcher: d.Fetcher}, InputDomain),
		public(dnsAnalyzer, InputDomain),

		privileged(&SubdomainAnalyzer{Intel: d.Intel}, InputDomain),
		privileged(&WAFAnalyzer{Fetcher: d.Fetcher}, InputURL),
		privileged(&WaybackAnalyzer{Intel: d.Intel}, InputDomain),
		privileged(&VulnAnalyzer{Fetcher: d.Fetcher, Intel: d.Intel}, InputEither),
		privileged(&ShodanAnalyzer{Guard: d.Guard, Resolver: d.Resolver, Intel: d.Intel}, InputDomain),
		privileged(&BreachAnalyzer{Intel: d.Intel}, InputDomain),
		privileged(&ChainAnalyzer{Guard: d.Guard, TLS: tlsAuditor, Fetcher: d.Fetcher}, InputDomain),
		privileged(&PortScanner{Guard: d.Guard, Timeout: constants.PortProbeTimeout}, InputDomain),
		privileged(&WhoisAnalyzer{Guard: d.Guard}, InputDomain),
		privileged(&IPAnalyzer{Guard: d.Guard, Resolver: d.Resolver, Intel: d.Intel}, InputDomain),
		privileged(&InfraMapAnalyzer{Guard: d.Guard, Resolver: d.Resolver, Intel: d.Intel}, InputDomain),
		privileged(&TakeoverAnalyzer{Guard: d.Guard, Resolver: d.Resolver, Fetcher: d.Fetcher}, InputDomain),
		privileged(&QuickScanner{Guard: d.Guard, DNS: dnsAnalyzer, Fetcher: d.Fetcher}, InputDomain),
	}

	return NewRegistryFromEntries(all...)
}

// NewRegistryFromEntries builds a registry from an explicit entry set. A
// later entry replaces an earlier one with the same name.
func NewRegistryFromEntries(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		r.entries[e.Name()] = e
	}
	return r
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (Entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownAnalyzer, name)
	}
	return e, nil
}

// Names lists analyzer names alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Public returns the unprivileged entries, sorted by name.
func (r *Registry) Public() []Entry {
	var out []Entry
	for _, n := range r.Names() {
		if e := r.entries[n]; !e.Privileged {
			out = append(out, e)
		}
	}
	return out
}
