package checker

import (
	"crypto/tls"
	"strings"
)

// Cipher strength classes.
const (
	CipherStrong   = "strong"
	CipherWeak     = "weak"
	CipherStandard = "standard"
)

var weakCipherSuites = map[uint16]bool{
	tls.TLS_RSA_WITH_RC4_128_SHA:                true,
	tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA:           true,
	tls.TLS_RSA_WITH_AES_128_CBC_SHA:            true,
	tls.TLS_RSA_WITH_AES_256_CBC_SHA:            true,
	tls.TLS_ECDHE_ECDSA_WITH_RC4_128_SHA:        true,
	tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA:          true,
	tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA:     true,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256: true,
}

var strongCipherSuites = map[uint16]bool{
	tls.TLS_AES_128_GCM_SHA256:                  true,
	tls.TLS_AES_256_GCM_SHA384:                  true,
	tls.TLS_CHACHA20_POLY1305_SHA256:            true,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:   true,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:   true,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256: true,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384: true,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:    true,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305:  true,
}

// TLSPosture grades the negotiated protocol and cipher suite.
type TLSPosture struct {
	Strength       string  `json:"strength"`
	ForwardSecrecy bool    `json:"forwardSecrecy"`
	Issues         []Issue `json:"issues"`
}

// AssessTLS classifies a negotiated version and cipher suite.
func AssessTLS(version, suite uint16) TLSPosture {
	p := TLSPosture{Strength: CipherStandard, Issues: []Issue{}}
	name := cipherSuiteString(suite)

	if version < tls.VersionTLS12 {
		p.Issues = append(p.Issues, Issue{
			Severity: SeverityCritical,
			Message:  "Insecure protocol " + tlsProtocolName(version) + "; only TLS 1.2 and 1.3 should be enabled",
		})
	} else if version == tls.VersionTLS12 {
		p.Issues = append(p.Issues, Issue{Severity: SeverityInfo, Message: "TLS 1.3 is not negotiated by default"})
	}

	switch {
	case weakCipherSuites[suite]:
		p.Strength = CipherWeak
		p.Issues = append(p.Issues, Issue{Severity: SeverityHigh, Message: "Weak cipher suite " + name})
	case strongCipherSuites[suite]:
		p.Strength = CipherStrong
	}

	// TLS 1.3 suites always use an ephemeral key exchange.
	p.ForwardSecrecy = version >= tls.VersionTLS13 || strings.Contains(name, "ECDHE") || strings.Contains(name, "_DHE_")
	if !p.ForwardSecrecy {
		p.Issues = append(p.Issues, Issue{Severity: SeverityMedium, Message: "Cipher suite does not provide forward secrecy"})
	}
	return p
}
