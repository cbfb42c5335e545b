package checker

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
)

func startTLS(t *testing.T) (*httptest.Server, string, int) {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	t.Cleanup(srv.Close)
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return srv, host, port
}

func TestChainAnalyzer_TrustedRoot(t *testing.T) {
	srv, host, port := startTLS(t)
	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())

	analyzer := &ChainAnalyzer{TLS: &TLSAuditor{Timeout: 5 * time.Second}, Roots: roots}
	report, err := analyzer.Inspect(context.Background(), host, port)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Authorized || report.AuthorizationError != nil {
		t.Errorf("Authorized = %v, error = %v", report.Authorized, report.AuthorizationError)
	}
	if len(report.Chain) != 1 || report.Truncated {
		t.Fatalf("Chain = %+v", report.Chain)
	}
	cert := report.Chain[0]
	if cert.Subject["O"] != "Acme Co" {
		t.Errorf("Subject = %v", cert.Subject)
	}
	if strings.Count(cert.Fingerprint, ":") != 19 || strings.Count(cert.Fingerprint256, ":") != 31 {
		t.Errorf("fingerprints = %q / %q", cert.Fingerprint, cert.Fingerprint256)
	}
	if !strings.HasPrefix(report.Protocol, "TLSv1.") || report.Cipher.Name == "" {
		t.Errorf("Protocol = %q, Cipher = %+v", report.Protocol, report.Cipher)
	}
	if report.OCSP != nil {
		t.Errorf("single-certificate chain should have no OCSP status: %+v", report.OCSP)
	}
}

func TestChainAnalyzer_UntrustedStillReported(t *testing.T) {
	_, host, port := startTLS(t)

	analyzer := &ChainAnalyzer{TLS: &TLSAuditor{Timeout: 5 * time.Second}, Roots: x509.NewCertPool()}
	report, err := analyzer.Inspect(context.Background(), host, port)
	if err != nil {
		t.Fatal(err)
	}
	if report.Authorized || report.AuthorizationError == nil {
		t.Errorf("expected verification failure, got Authorized = %v", report.Authorized)
	}
	if len(report.Chain) != 1 {
		t.Errorf("chain should still be reported: %+v", report.Chain)
	}
}

func TestChainAnalyzer_ConnectionRefused(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err := (&ChainAnalyzer{}).Inspect(context.Background(), "127.0.0.1", port)
	if err == nil {
		t.Fatal("expected error")
	}
}

func issueTestChain(t *testing.T) (leaf, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey) {
	t.Helper()
	caKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}
	issuer, _ = x509.ParseCertificate(caDER)

	leafKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "example.com"},
		DNSNames:     []string{"example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, issuer, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}
	leaf, _ = x509.ParseCertificate(leafDER)
	return leaf, issuer, caKey
}

func TestChainAnalyzer_StapledOCSP(t *testing.T) {
	leaf, issuer, key := issueTestChain(t)

	tests := []struct {
		status int
		want   string
	}{
		{ocsp.Good, "good"},
		{ocsp.Revoked, "revoked"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			raw, err := ocsp.CreateResponse(issuer, issuer, ocsp.Response{
				Status:       tt.status,
				SerialNumber: leaf.SerialNumber,
				ThisUpdate:   time.Now().Add(-time.Minute),
				NextUpdate:   time.Now().Add(time.Hour),
				RevokedAt:    time.Now().Add(-time.Minute),
			}, key)
			if err != nil {
				t.Fatal(err)
			}
			info := (&ChainAnalyzer{}).ocspStatus(context.Background(), []*x509.Certificate{leaf, issuer}, raw)
			if info == nil || info.Status != tt.want || info.Source != "stapled" {
				t.Errorf("ocspStatus() = %+v, want %s", info, tt.want)
			}
		})
	}
}

func TestChainAnalyzer_OCSPResponderGarbage(t *testing.T) {
	leaf, issuer, _ := issueTestChain(t)
	leaf.OCSPServer = []string{"http://ocsp.example.com"}

	fetcher := &stubFetcher{status: 200, body: "not an ocsp response"}
	info := (&ChainAnalyzer{Fetcher: fetcher}).ocspStatus(context.Background(), []*x509.Certificate{leaf, issuer}, nil)
	if info == nil || info.Status != "unknown" || info.Error == "" {
		t.Errorf("ocspStatus() = %+v", info)
	}
	if len(fetcher.calls) != 1 || !strings.HasPrefix(fetcher.calls[0], "http://ocsp.example.com/") {
		t.Errorf("calls = %v", fetcher.calls)
	}
}
