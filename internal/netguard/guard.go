// Package netguard rejects hostnames that resolve into loopback, private,
// link-local, carrier-grade NAT, multicast or otherwise non-public ranges.
//
// Every outbound request the service makes on behalf of a caller goes through
// a Guard first, including each redirect hop. Results are never cached: DNS
// answers can change between checks.
package netguard

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

// Resolver looks up every address for a host.
// *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// blockedPrefixes lists every range a target may not resolve into.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("ff00::/8"),
}

// BlockedHostError reports why a hostname was refused.
type BlockedHostError struct {
	Host   string
	Reason string
	Addr   string
	Err    error
}

func (e *BlockedHostError) Error() string {
	return e.Reason
}

func (e *BlockedHostError) Unwrap() error {
	return e.Err
}

// Guard validates hostnames before any connection is made.
type Guard struct {
	Resolver Resolver
}

// New returns a Guard backed by the system resolver.
func New() *Guard {
	return &Guard{Resolver: net.DefaultResolver}
}

// AssertSafeHostname returns nil only when hostname resolves exclusively to
// public addresses.
func (g *Guard) AssertSafeHostname(ctx context.Context, hostname string) error {
	host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(hostname)), ".")
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return &BlockedHostError{Host: hostname, Reason: "Blocked hostname.", Err: apperrors.ErrBlockedHost}
	}

	// Literal addresses skip resolution.
	if addr, err := netip.ParseAddr(host); err == nil {
		return checkAddrs(hostname, []netip.Addr{addr})
	}

	resolver := g.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	ipAddrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil || len(ipAddrs) == 0 {
		cause := apperrors.ErrUnresolvable
		if err != nil {
			cause = fmt.Errorf("%w: %v", apperrors.ErrUnresolvable, err)
		}
		return &BlockedHostError{Host: hostname, Reason: "Could not resolve hostname.", Err: cause}
	}

	addrs := make([]netip.Addr, 0, len(ipAddrs))
	for _, ia := range ipAddrs {
		addr, ok := netip.AddrFromSlice(ia.IP)
		if !ok {
			return &BlockedHostError{Host: hostname, Reason: "Could not resolve hostname.", Err: apperrors.ErrUnresolvable}
		}
		addrs = append(addrs, addr)
	}
	return checkAddrs(hostname, addrs)
}

func checkAddrs(hostname string, addrs []netip.Addr) error {
	for _, addr := range addrs {
		if IsBlocked(addr) {
			return &BlockedHostError{
				Host:   hostname,
				Reason: "Blocked IP range.",
				Addr:   addr.String(),
				Err:    apperrors.ErrBlockedHost,
			}
		}
	}
	return nil
}

// IsBlocked reports whether addr falls in a non-public range.
// IPv4-mapped IPv6 addresses are checked as IPv4.
func IsBlocked(addr netip.Addr) bool {
	addr = addr.Unmap().WithZone("")
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// AllowAll is a guard that accepts every host. It exists for tests that run
// against loopback httptest servers.
type AllowAll struct{}

// AssertSafeHostname always returns nil.
func (AllowAll) AssertSafeHostname(context.Context, string) error { return nil }
