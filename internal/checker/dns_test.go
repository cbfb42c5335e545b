package checker

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/khanhnv2901/siteterminal/internal/netguard"
)

// startDNSServer serves zone ("name TYPE" -> RR strings) on a loopback UDP
// port. Names missing from every entry answer NXDOMAIN.
func startDNSServer(t *testing.T, zone map[string][]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	known := map[string]bool{}
	for key := range zone {
		known[strings.Fields(key)[0]] = true
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetReply(req)
		q := req.Question[0]
		name := strings.TrimSuffix(strings.ToLower(q.Name), ".")

		if !known[name] {
			resp.Rcode = dns.RcodeNameError
		}
		for _, s := range zone[name+" "+dns.TypeToString[q.Qtype]] {
			rr, err := dns.NewRR(s)
			if err != nil {
				t.Errorf("bad RR %q: %v", s, err)
				continue
			}
			resp.Answer = append(resp.Answer, rr)
		}
		_ = w.WriteMsg(resp)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestDNSAnalyzer_Records(t *testing.T) {
	addr := startDNSServer(t, map[string][]string{
		"example.com A":    {"example.com. 300 IN A 93.184.216.34"},
		"example.com AAAA": {"example.com. 300 IN AAAA 2606:2800:220:1::248"},
		"example.com MX":   {"example.com. 300 IN MX 10 mail.example.com."},
		"example.com TXT":  {`example.com. 300 IN TXT "v=spf1 " "-all"`},
		"example.com NS":   {"example.com. 300 IN NS a.iana-servers.net.", "example.com. 300 IN NS b.iana-servers.net."},
		"example.com CAA":  {`example.com. 300 IN CAA 0 issue "letsencrypt.org"`},
	})

	analyzer := &DNSAnalyzer{Guard: netguard.AllowAll{}, Resolver: NewDNSResolver(addr, 2*time.Second)}
	target, _ := ParseDomainTarget("example.com")

	out, err := analyzer.Analyze(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	report := out.(*DNSReport)
	r := report.Records

	if report.Domain != "example.com" {
		t.Errorf("Domain = %q", report.Domain)
	}
	if len(r.A) != 1 || r.A[0] != "93.184.216.34" {
		t.Errorf("A = %v", r.A)
	}
	if len(r.AAAA) != 1 || r.AAAA[0] != "2606:2800:220:1::248" {
		t.Errorf("AAAA = %v", r.AAAA)
	}
	if len(r.MX) != 1 || r.MX[0] != (MXRecord{Exchange: "mail.example.com", Priority: 10}) {
		t.Errorf("MX = %+v", r.MX)
	}
	if len(r.TXT) != 1 || r.TXT[0] != "v=spf1 -all" {
		t.Errorf("TXT = %q", r.TXT)
	}
	if len(r.NS) != 2 {
		t.Errorf("NS = %v", r.NS)
	}
	if len(r.CAA) != 1 || r.CAA[0].Tag != "issue" || r.CAA[0].Value != "letsencrypt.org" {
		t.Errorf("CAA = %+v", r.CAA)
	}
	if r.CNAME == nil || len(r.CNAME) != 0 {
		t.Errorf("CNAME = %#v, want empty non-nil", r.CNAME)
	}
}

func TestDNSAnalyzer_UnreachableNameserverYieldsEmptyLists(t *testing.T) {
	// Nothing listens on the discard port.
	analyzer := &DNSAnalyzer{Resolver: NewDNSResolver("127.0.0.1:9", 200*time.Millisecond)}
	records := analyzer.Lookup(context.Background(), "example.com")

	if len(records.A)+len(records.AAAA)+len(records.MX)+len(records.TXT)+len(records.NS)+len(records.CAA) != 0 {
		t.Errorf("records = %+v, want all empty", records)
	}
	if records.A == nil || records.MX == nil || records.CAA == nil {
		t.Error("failed record types must be empty lists, not nil")
	}
}

func TestDNSAnalyzer_GuardBlocks(t *testing.T) {
	analyzer := &DNSAnalyzer{Guard: denyGuard{}, Resolver: NewDNSResolver("127.0.0.1:9", time.Millisecond)}
	target, _ := ParseDomainTarget("internal.example")

	_, err := analyzer.Analyze(context.Background(), target)
	var blocked *netguard.BlockedHostError
	if !errors.As(err, &blocked) {
		t.Fatalf("Analyze() error = %v, want BlockedHostError", err)
	}
}

func TestDNSResolver_NXDomainAndCNAME(t *testing.T) {
	addr := startDNSServer(t, map[string][]string{
		"blog.example.com CNAME": {"blog.example.com. 300 IN CNAME example.github.io."},
	})
	r := NewDNSResolver(addr, 2*time.Second)

	cnames, err := r.LookupCNAME(context.Background(), "blog.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(cnames) != 1 || cnames[0] != "example.github.io" {
		t.Errorf("LookupCNAME() = %v", cnames)
	}

	if _, err := r.LookupIPs(context.Background(), "gone.example.com"); !errors.Is(err, ErrNXDomain) {
		t.Errorf("LookupIPs() error = %v, want ErrNXDomain", err)
	}
}
