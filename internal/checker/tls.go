package checker

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/khanhnv2901/siteterminal/internal/fetch"
	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
)

// certTimeLayout renders certificate validity the way openssl prints it.
const certTimeLayout = "Jan _2 15:04:05 2006 GMT"

// TLSAudit is the certificate audit verdict.
type TLSAudit struct {
	Grade              string            `json:"grade"`
	Score              int               `json:"score"`
	Domain             string            `json:"domain"`
	Port               int               `json:"port"`
	Subject            map[string]string `json:"subject"`
	Issuer             map[string]string `json:"issuer"`
	ValidFrom          *string           `json:"valid_from"`
	ValidTo            *string           `json:"valid_to"`
	SubjectAltName     *string           `json:"subjectaltname"`
	DaysUntilExpiry    *int              `json:"daysUntilExpiry"`
	Expired            bool              `json:"expired"`
	SelfSigned         bool              `json:"selfSigned"`
	SignatureAlgorithm *string           `json:"signatureAlgorithm"`
	TLSVersion         *string           `json:"tlsVersion"`
	Issues             []Issue           `json:"issues"`
}

// TLSAuditor dials a host with verification disabled and scores the leaf.
type TLSAuditor struct {
	Guard   fetch.HostGuard
	Timeout time.Duration
	Now     func() time.Time
	// Dial is overridable for tests; nil uses a tls.Dialer.
	Dial func(ctx context.Context, network, addr string, cfg *tls.Config) (*tls.Conn, error)
}

// Name returns the analyzer name.
func (a *TLSAuditor) Name() string { return "tls" }

// Analyze audits target.Domain on port 443.
func (a *TLSAuditor) Analyze(ctx context.Context, target Target) (any, error) {
	if a.Guard != nil {
		if err := a.Guard.AssertSafeHostname(ctx, target.Domain); err != nil {
			return nil, err
		}
	}
	return a.Audit(ctx, target.Domain, 443)
}

// ProbeError wraps a failure to reach or read from a target.
type ProbeError struct {
	Op  string
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Audit performs the handshake and scores the presented leaf certificate.
// The connection is closed before scoring and never reused.
func (a *TLSAuditor) Audit(ctx context.Context, domain string, port int) (*TLSAudit, error) {
	state, err := a.handshake(ctx, domain, port)
	if err != nil {
		return nil, err
	}
	if len(state.PeerCertificates) == 0 {
		return nil, &ProbeError{Op: "TLS handshake", Err: errors.New("no certificate presented")}
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	audit := ScoreCertificate(state.PeerCertificates[0], tlsProtocolName(state.Version), now())
	audit.Domain = domain
	audit.Port = port
	return audit, nil
}

func (a *TLSAuditor) handshake(ctx context.Context, domain string, port int) (tls.ConnectionState, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = constants.TLSDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Verification is off: invalid and self-signed certificates are exactly
	// what the audit reports on.
	cfg := &tls.Config{
		ServerName:         domain,
		InsecureSkipVerify: true, //nolint:gosec
		MinVersion:         tls.VersionTLS10,
	}

	addr := net.JoinHostPort(domain, strconv.Itoa(port))
	var conn *tls.Conn
	var err error
	if a.Dial != nil {
		conn, err = a.Dial(dialCtx, "tcp", addr, cfg)
	} else {
		dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: timeout}, Config: cfg}
		var c net.Conn
		c, err = dialer.DialContext(dialCtx, "tcp", addr)
		if err == nil {
			conn = c.(*tls.Conn)
		}
	}
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return tls.ConnectionState{}, &ProbeError{Op: "TLS connection", Err: errors.New("timed out")}
		}
		return tls.ConnectionState{}, &ProbeError{Op: "TLS connection failed", Err: err}
	}
	defer conn.Close()

	return conn.ConnectionState(), nil
}

var (
	md5Pattern  = regexp.MustCompile(`(?i)md5`)
	sha1Pattern = regexp.MustCompile(`(?i)sha-?1`)
)

// ScoreCertificate applies the expiry, self-signed, signature and protocol
// penalties to a leaf certificate. It is pure given now.
func ScoreCertificate(cert *x509.Certificate, tlsVersion string, now time.Time) *TLSAudit {
	audit := &TLSAudit{Issues: []Issue{}}
	score := 100

	// Expiry
	if !cert.NotAfter.IsZero() {
		validTo := cert.NotAfter.UTC().Format(certTimeLayout)
		audit.ValidTo = &validTo
		days := int(math.Floor(cert.NotAfter.Sub(now).Hours() / 24))
		audit.DaysUntilExpiry = &days

		switch {
		case days < 0:
			audit.Expired = true
			score -= 40
			audit.Issues = append(audit.Issues, Issue{Severity: SeverityCritical, Message: fmt.Sprintf("Certificate expired %d day(s) ago", -days)})
		case days <= 7:
			score -= 30
			audit.Issues = append(audit.Issues, Issue{Severity: SeverityCritical, Message: fmt.Sprintf("Certificate expires in %d day(s) — renew immediately", days)})
		case days <= 30:
			score -= 15
			audit.Issues = append(audit.Issues, Issue{Severity: SeverityHigh, Message: fmt.Sprintf("Certificate expires in %d day(s) — renew soon", days)})
		case days <= 90:
			score -= 5
			audit.Issues = append(audit.Issues, Issue{Severity: SeverityMedium, Message: fmt.Sprintf("Certificate expires in %d day(s)", days)})
		}
	}
	if !cert.NotBefore.IsZero() {
		validFrom := cert.NotBefore.UTC().Format(certTimeLayout)
		audit.ValidFrom = &validFrom
	}

	// Self-signed
	audit.Subject = nameFields(cert.Subject)
	audit.Issuer = nameFields(cert.Issuer)
	if isSelfSigned(cert) {
		audit.SelfSigned = true
		score -= 30
		audit.Issues = append(audit.Issues, Issue{Severity: SeverityHigh, Message: "Self-signed certificate — not trusted by browsers"})
	}

	// Signature algorithm
	if cert.SignatureAlgorithm != x509.UnknownSignatureAlgorithm {
		alg := cert.SignatureAlgorithm.String()
		audit.SignatureAlgorithm = &alg
		switch {
		case md5Pattern.MatchString(alg):
			score -= 40
			audit.Issues = append(audit.Issues, Issue{Severity: SeverityCritical, Message: fmt.Sprintf("Weak signature algorithm: %s (MD5 is broken — replace immediately)", alg)})
		case sha1Pattern.MatchString(alg):
			score -= 20
			audit.Issues = append(audit.Issues, Issue{Severity: SeverityHigh, Message: fmt.Sprintf("Weak signature algorithm: %s (SHA-1 deprecated since 2017)", alg)})
		}
	}

	if san := subjectAltName(cert); san != "" {
		audit.SubjectAltName = &san
	}

	// Protocol version
	if tlsVersion != "" {
		v := tlsVersion
		audit.TLSVersion = &v
		switch tlsVersion {
		case "TLSv1", "TLSv1.0":
			score -= 25
			audit.Issues = append(audit.Issues, Issue{Severity: SeverityHigh, Message: "TLS 1.0 enabled — deprecated since 2021, disable immediately"})
		case "TLSv1.1":
			score -= 15
			audit.Issues = append(audit.Issues, Issue{Severity: SeverityHigh, Message: "TLS 1.1 enabled — deprecated since 2021, disable immediately"})
		case "TLSv1.2":
			audit.Issues = append(audit.Issues, Issue{Severity: SeverityLow, Message: "TLS 1.2 enabled — acceptable, but TLS 1.3 preferred"})
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	audit.Score = score
	audit.Grade = tlsGrade(score)
	return audit
}

func tlsGrade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 65:
		return "C"
	case score >= 50:
		return "D"
	default:
		return "F"
	}
}

func isSelfSigned(cert *x509.Certificate) bool {
	if len(cert.RawSubject) > 0 && len(cert.RawIssuer) > 0 {
		return bytes.Equal(cert.RawSubject, cert.RawIssuer)
	}
	return cert.Subject.String() != "" && cert.Subject.String() == cert.Issuer.String()
}

// nameFields flattens a distinguished name into short-form keys.
func nameFields(n pkix.Name) map[string]string {
	out := map[string]string{}
	set := func(key string, vals []string) {
		if len(vals) > 0 {
			out[key] = strings.Join(vals, ", ")
		}
	}
	set("C", n.Country)
	set("ST", n.Province)
	set("L", n.Locality)
	set("O", n.Organization)
	set("OU", n.OrganizationalUnit)
	if n.CommonName != "" {
		out["CN"] = n.CommonName
	}
	return out
}

func subjectAltName(cert *x509.Certificate) string {
	parts := make([]string, 0, len(cert.DNSNames)+len(cert.IPAddresses))
	for _, d := range cert.DNSNames {
		parts = append(parts, "DNS:"+d)
	}
	for _, ip := range cert.IPAddresses {
		parts = append(parts, "IP Address:"+ip.String())
	}
	return strings.Join(parts, ", ")
}

// tlsProtocolName converts a TLS version constant to its protocol name.
func tlsProtocolName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLSv1"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return fmt.Sprintf("unknown (0x%04x)", version)
	}
}

// cipherSuiteString converts a cipher suite constant to its name.
func cipherSuiteString(suite uint16) string {
	if name := tls.CipherSuiteName(suite); name != "" {
		return name
	}
	return fmt.Sprintf("Unknown (0x%04x)", suite)
}
