// Package intel wraps the third-party intelligence services the privileged
// analyzers query: certificate transparency (crt.sh), the Wayback Machine CDX
// index, ip-api, HackerTarget, the CIRCL CVE search, Shodan and Have I Been
// Pwned.
//
// All services share one outbound client with a user agent and a token-bucket
// throttle so bursts of analyzer calls do not trip upstream rate limits. Base
// URLs are fields so tests can point them at httptest servers.
package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

// Endpoints holds the base URL of every upstream service.
type Endpoints struct {
	CrtSh        string
	Wayback      string
	IPAPI        string
	HackerTarget string
	CIRCL        string
	Shodan       string
	HIBP         string
}

// DefaultEndpoints returns the public service URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		CrtSh:        "https://crt.sh",
		Wayback:      "https://web.archive.org",
		IPAPI:        "http://ip-api.com",
		HackerTarget: "https://api.hackertarget.com",
		CIRCL:        "https://cve.circl.lu",
		Shodan:       "https://api.shodan.io",
		HIBP:         "https://haveibeenpwned.com",
	}
}

// Config configures a Client.
type Config struct {
	Endpoints Endpoints
	UserAgent string
	// RequestsPerSecond throttles all outbound calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
	ShodanAPIKey      string
	HIBPAPIKey        string
	Transport         http.RoundTripper
}

// Client talks to the intelligence services.
type Client struct {
	endpoints Endpoints
	http      *http.Client
	limiter   *rate.Limiter
	shodanKey string
	hibpKey   string
}

// userAgentTransport stamps a User-Agent on requests that lack one.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Header.Get("User-Agent") == "" {
		r := req.Clone(req.Context())
		r.Header.Set("User-Agent", t.userAgent)
		return base.RoundTrip(r)
	}
	return base.RoundTrip(req)
}

// New builds a Client. Missing endpoints fall back to the public services.
func New(cfg Config) *Client {
	def := DefaultEndpoints()
	ep := cfg.Endpoints
	if ep.CrtSh == "" {
		ep.CrtSh = def.CrtSh
	}
	if ep.Wayback == "" {
		ep.Wayback = def.Wayback
	}
	if ep.IPAPI == "" {
		ep.IPAPI = def.IPAPI
	}
	if ep.HackerTarget == "" {
		ep.HackerTarget = def.HackerTarget
	}
	if ep.CIRCL == "" {
		ep.CIRCL = def.CIRCL
	}
	if ep.Shodan == "" {
		ep.Shodan = def.Shodan
	}
	if ep.HIBP == "" {
		ep.HIBP = def.HIBP
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = constants.ResearchUserAgent
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		endpoints: ep,
		http: &http.Client{
			Transport: &userAgentTransport{base: cfg.Transport, userAgent: ua},
		},
		limiter:   limiter,
		shodanKey: cfg.ShodanAPIKey,
		hibpKey:   cfg.HIBPAPIKey,
	}
}

// HasShodanKey reports whether Shodan lookups are configured.
func (c *Client) HasShodanKey() bool { return c.shodanKey != "" }

// HasHIBPKey reports whether breach lookups are configured.
func (c *Client) HasHIBPKey() bool { return c.hibpKey != "" }

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Service string
	Status  int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Service, e.Status)
}

func (e *StatusError) Unwrap() error { return apperrors.ErrUpstream }

// get performs a throttled GET with its own deadline and returns the response
// body. Non-2xx statuses become *StatusError.
func (c *Client) get(ctx context.Context, service, rawURL string, timeout time.Duration, header http.Header) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", service, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Service: service, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", service, err)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, service, rawURL string, timeout time.Duration, header http.Header, out any) error {
	body, err := c.get(ctx, service, rawURL, timeout, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", service, err)
	}
	return nil
}
