package checker

import (
	"fmt"
	"net/url"
	"strings"

	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

// InputKind says which form of target an analyzer takes.
type InputKind int

const (
	// InputURL analyzers take an absolute http(s) URL.
	InputURL InputKind = iota
	// InputDomain analyzers take a bare hostname.
	InputDomain
	// InputEither analyzers take a URL, or a domain mapped to https://domain/.
	InputEither
)

func (k InputKind) String() string {
	switch k {
	case InputDomain:
		return "domain"
	case InputEither:
		return "url|domain"
	default:
		return "url"
	}
}

// Target is a validated analyzer input.
type Target struct {
	// URL is the normalized absolute URL (fragment stripped). Empty for
	// domain targets.
	URL string
	// Domain is the bare hostname. Always set.
	Domain string
}

func (t Target) String() string {
	if t.URL != "" {
		return t.URL
	}
	return t.Domain
}

// Origin returns scheme://host[:port] for URL targets.
func (t Target) Origin() string {
	u, err := url.Parse(t.URL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// InputError reports a malformed analyzer input.
type InputError struct {
	Message string
	Err     error
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return e.Err }

// ParseURLTarget accepts only absolute http:// or https:// URLs.
func ParseURLTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.Hostname() == "" {
		return Target{}, &InputError{Message: "Invalid URL. Must start with http:// or https://", Err: apperrors.ErrInvalidURL}
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return Target{URL: u.String(), Domain: strings.ToLower(u.Hostname())}, nil
}

// ParseDomainTarget accepts a bare hostname; anything containing a slash or
// a scheme separator is rejected.
func ParseDomainTarget(raw string) (Target, error) {
	domain := strings.TrimSpace(raw)
	if domain == "" || strings.Contains(domain, "/") || strings.Contains(domain, "://") {
		return Target{}, &InputError{Message: "Invalid domain.", Err: apperrors.ErrInvalidDomain}
	}
	return Target{Domain: domain}, nil
}

// CleanDomain lowercases raw and strips a leading scheme and any path, for
// inputs where callers paste full URLs.
func CleanDomain(raw string) (Target, error) {
	domain := strings.ToLower(strings.TrimSpace(raw))
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "https://")
	if i := strings.Index(domain, "/"); i >= 0 {
		domain = domain[:i]
	}
	if domain == "" {
		return Target{}, &InputError{Message: "Missing domain parameter.", Err: apperrors.ErrMissingParameter}
	}
	return Target{Domain: domain}, nil
}

// URLOrDomain accepts either form, mapping a bare domain to https://domain/.
func URLOrDomain(rawURL, rawDomain string) (Target, error) {
	if strings.TrimSpace(rawURL) != "" {
		return ParseURLTarget(rawURL)
	}
	d, err := ParseDomainTarget(rawDomain)
	if err != nil {
		return Target{}, err
	}
	return ParseURLTarget("https://" + d.Domain)
}

// ParseTarget parses free-form CLI input into a Target of the requested kind.
// This handles various input formats:
//   - example.com
//   - http://example.com
//   - https://example.com:443/path
//   - example.com:8080
func ParseTarget(raw string, kind InputKind) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, &InputError{Message: "missing target", Err: apperrors.ErrMissingParameter}
	}

	// Inputs without a real scheme get https:// so url.Parse finds the host.
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || strings.Contains(parsed.Scheme, ".") || parsed.Host == "" {
		parsed, err = url.Parse("https://" + raw)
		if err != nil {
			return Target{}, &InputError{Message: fmt.Sprintf("invalid target %q", raw), Err: apperrors.ErrInvalidURL}
		}
	}

	if kind == InputDomain {
		host := strings.ToLower(parsed.Hostname())
		if host == "" {
			return Target{}, &InputError{Message: "Invalid domain.", Err: apperrors.ErrInvalidDomain}
		}
		return Target{Domain: host}, nil
	}
	return ParseURLTarget(parsed.String())
}
