package checker

import (
	"context"
	"crypto/sha1" //nolint:gosec // fingerprint display only
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/khanhnv2901/siteterminal/internal/fetch"
)

// maxChainDepth bounds how many presented certificates are reported.
const maxChainDepth = 10

// ChainCert is one certificate of the presented chain.
type ChainCert struct {
	Subject            map[string]string `json:"subject"`
	Issuer             map[string]string `json:"issuer"`
	ValidFrom          string            `json:"valid_from"`
	ValidTo            string            `json:"valid_to"`
	SerialNumber       string            `json:"serialNumber"`
	Fingerprint        string            `json:"fingerprint"`
	Fingerprint256     string            `json:"fingerprint256"`
	IsCA               bool              `json:"isCA"`
	SignatureAlgorithm string            `json:"signatureAlgorithm"`
}

// CipherInfo names the negotiated cipher suite.
type CipherInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// OCSPInfo is the revocation status of the leaf.
type OCSPInfo struct {
	Status     string  `json:"status"`
	Source     string  `json:"source"`
	ProducedAt *string `json:"producedAt,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// ChainReport describes the certificate chain a server presents.
type ChainReport struct {
	Domain             string      `json:"domain"`
	Authorized         bool        `json:"authorized"`
	AuthorizationError *string     `json:"authorizationError"`
	Protocol           string      `json:"protocol"`
	Cipher             CipherInfo  `json:"cipher"`
	Posture            TLSPosture  `json:"posture"`
	Chain              []ChainCert `json:"chain"`
	Truncated          bool        `json:"truncated"`
	OCSP               *OCSPInfo   `json:"ocsp,omitempty"`
}

// ChainAnalyzer handshakes with verification disabled, then verifies the
// presented chain itself so an invalid chain is still reported.
type ChainAnalyzer struct {
	Guard fetch.HostGuard
	TLS   *TLSAuditor
	// Fetcher is used for OCSP GET requests; nil skips the responder query.
	Fetcher PageFetcher
	// Roots overrides the system pool.
	Roots *x509.CertPool
	Now   func() time.Time
}

func (a *ChainAnalyzer) Name() string { return "ssl-chain" }

func (a *ChainAnalyzer) Analyze(ctx context.Context, target Target) (any, error) {
	if a.Guard != nil {
		if err := a.Guard.AssertSafeHostname(ctx, target.Domain); err != nil {
			return nil, err
		}
	}
	return a.Inspect(ctx, target.Domain, 443)
}

// Inspect reads and verifies the chain presented on domain:port.
func (a *ChainAnalyzer) Inspect(ctx context.Context, domain string, port int) (*ChainReport, error) {
	auditor := a.TLS
	if auditor == nil {
		auditor = &TLSAuditor{}
	}
	state, err := auditor.handshake(ctx, domain, port)
	if err != nil {
		return nil, err
	}
	certs := state.PeerCertificates
	if len(certs) == 0 {
		return nil, &ProbeError{Op: "TLS handshake", Err: fmt.Errorf("no certificate found")}
	}

	report := &ChainReport{
		Domain:   domain,
		Protocol: tlsProtocolName(state.Version),
		Cipher:   CipherInfo{Name: cipherSuiteString(state.CipherSuite), Version: tlsProtocolName(state.Version)},
		Posture:  AssessTLS(state.Version, state.CipherSuite),
		Chain:    []ChainCert{},
	}
	for i, cert := range certs {
		if i == maxChainDepth {
			report.Truncated = true
			break
		}
		report.Chain = append(report.Chain, describeChainCert(cert))
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}
	_, verr := certs[0].Verify(x509.VerifyOptions{
		DNSName:       domain,
		Roots:         a.Roots,
		Intermediates: intermediates,
		CurrentTime:   now(),
	})
	if verr != nil {
		msg := verr.Error()
		report.AuthorizationError = &msg
	} else {
		report.Authorized = true
	}

	report.OCSP = a.ocspStatus(ctx, certs, state.OCSPResponse)
	return report, nil
}

func describeChainCert(cert *x509.Certificate) ChainCert {
	sum1 := sha1.Sum(cert.Raw) //nolint:gosec
	sum256 := sha256.Sum256(cert.Raw)
	return ChainCert{
		Subject:            nameFields(cert.Subject),
		Issuer:             nameFields(cert.Issuer),
		ValidFrom:          cert.NotBefore.UTC().Format(certTimeLayout),
		ValidTo:            cert.NotAfter.UTC().Format(certTimeLayout),
		SerialNumber:       strings.ToUpper(cert.SerialNumber.Text(16)),
		Fingerprint:        colonHex(sum1[:]),
		Fingerprint256:     colonHex(sum256[:]),
		IsCA:               cert.IsCA,
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
	}
}

func colonHex(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":")
}

// ocspStatus prefers a stapled response and otherwise asks the leaf's
// responder. Returns nil when neither is available.
func (a *ChainAnalyzer) ocspStatus(ctx context.Context, certs []*x509.Certificate, stapled []byte) *OCSPInfo {
	if len(certs) < 2 {
		return nil
	}
	leaf, issuer := certs[0], certs[1]

	if len(stapled) > 0 {
		return parseOCSP(stapled, leaf, issuer, "stapled")
	}
	if a.Fetcher == nil || len(leaf.OCSPServer) == 0 {
		return nil
	}

	req, err := ocsp.CreateRequest(leaf, issuer, nil)
	if err != nil {
		return &OCSPInfo{Status: "unknown", Source: "responder", Error: err.Error()}
	}
	reqURL := strings.TrimSuffix(leaf.OCSPServer[0], "/") + "/" + url.PathEscape(base64.StdEncoding.EncodeToString(req))
	res, err := a.Fetcher.Fetch(ctx, reqURL)
	if err != nil {
		return &OCSPInfo{Status: "unknown", Source: "responder", Error: err.Error()}
	}
	if res.Status != 200 {
		return &OCSPInfo{Status: "unknown", Source: "responder", Error: fmt.Sprintf("responder returned HTTP %d", res.Status)}
	}
	return parseOCSP(res.Body, leaf, issuer, "responder")
}

func parseOCSP(raw []byte, leaf, issuer *x509.Certificate, source string) *OCSPInfo {
	resp, err := ocsp.ParseResponseForCert(raw, leaf, issuer)
	if err != nil {
		return &OCSPInfo{Status: "unknown", Source: source, Error: err.Error()}
	}
	info := &OCSPInfo{Source: source}
	switch resp.Status {
	case ocsp.Good:
		info.Status = "good"
	case ocsp.Revoked:
		info.Status = "revoked"
	default:
		info.Status = "unknown"
	}
	produced := resp.ProducedAt.UTC().Format(time.RFC3339)
	info.ProducedAt = &produced
	return info
}
