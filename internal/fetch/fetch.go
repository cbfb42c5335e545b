// Package fetch performs bounded HTTP GETs against untrusted targets.
//
// A Fetcher follows redirects itself so every hop can be checked by the
// host guard, stops reading bodies at a byte cap, and applies a per-hop
// deadline.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
)

// DefaultAccept is sent on every fetch.
const DefaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// HostGuard vets a hostname before a connection is made.
type HostGuard interface {
	AssertSafeHostname(ctx context.Context, hostname string) error
}

// Options bound a single fetch.
type Options struct {
	Timeout      time.Duration
	MaxBytes     int64
	MaxRedirects int
	UserAgent    string
}

// DefaultOptions returns the standard fetch bounds.
func DefaultOptions() Options {
	return Options{
		Timeout:      constants.FetchTimeout,
		MaxBytes:     constants.FetchMaxBytes,
		MaxRedirects: constants.FetchMaxRedirects,
		UserAgent:    constants.UserAgent,
	}
}

// Redirect records one followed hop.
type Redirect struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Status int    `json:"status"`
}

// Result is the outcome of a successful fetch.
type Result struct {
	FinalURL  string        `json:"finalUrl"`
	Status    int           `json:"status"`
	Headers   http.Header   `json:"-"`
	Body      []byte        `json:"-"`
	Redirects []Redirect    `json:"redirects"`
	Timing    time.Duration `json:"-"`
}

// TimingMs returns the whole-chain duration in milliseconds.
func (r *Result) TimingMs() int64 {
	return r.Timing.Milliseconds()
}

// Fetcher performs guarded, bounded fetches.
type Fetcher struct {
	Client  *http.Client
	Guard   HostGuard
	Options Options
}

// New returns a Fetcher with its own client. Transport-level redirect
// following is disabled.
func New(guard HostGuard, opts Options) *Fetcher {
	return &Fetcher{
		Client:  NewClient(),
		Guard:   guard,
		Options: withDefaults(opts),
	}
}

// NewClient returns an http.Client that never follows redirects.
func NewClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = def.MaxRedirects
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	return opts
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Fetch GETs rawURL, following up to MaxRedirects hops.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	opts := withDefaults(f.Options)
	client := f.Client
	if client == nil {
		client = NewClient()
	}

	current, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	start := time.Now()
	redirects := []Redirect{}

	for i := 0; i <= opts.MaxRedirects; i++ {
		if f.Guard != nil {
			if err := f.Guard.AssertSafeHostname(ctx, current.Hostname()); err != nil {
				return nil, err
			}
		}

		status, headers, body, err := f.hop(ctx, client, current.String(), opts)
		if err != nil {
			return nil, err
		}

		if isRedirect(status) {
			loc := headers.Get("Location")
			if loc != "" {
				next, err := current.Parse(loc)
				if err != nil {
					return nil, fmt.Errorf("parse redirect location: %w", err)
				}
				redirects = append(redirects, Redirect{From: current.String(), To: next.String(), Status: status})
				current = next
				continue
			}
		}

		return &Result{
			FinalURL:  current.String(),
			Status:    status,
			Headers:   headers,
			Body:      body,
			Redirects: redirects,
			Timing:    time.Since(start),
		}, nil
	}

	return nil, &TooManyRedirectsError{Max: opts.MaxRedirects}
}

// hop performs a single request. The body of a redirect response is not read.
func (f *Fetcher) hop(ctx context.Context, client *http.Client, target string, opts Options) (int, http.Header, []byte, error) {
	hopCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(hopCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	req.Header.Set("Accept", DefaultAccept)

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(hopCtx, err) {
			return 0, nil, nil, &TimeoutError{URL: target, After: opts.Timeout}
		}
		return 0, nil, nil, fmt.Errorf("request %s: %w", target, err)
	}
	defer resp.Body.Close()

	if isRedirect(resp.StatusCode) && resp.Header.Get("Location") != "" {
		return resp.StatusCode, resp.Header, nil, nil
	}

	body, err := readCapped(resp.Body, opts.MaxBytes)
	if err != nil {
		if isTimeout(hopCtx, err) {
			return 0, nil, nil, &TimeoutError{URL: target, After: opts.Timeout}
		}
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, body, nil
}

// readCapped reads until EOF or until more than limit bytes arrive.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, &TooLargeError{Limit: limit}
	}
	return body, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Probe issues one GET without following redirects or reading the body and
// returns the status code.
func (f *Fetcher) Probe(ctx context.Context, rawURL string, timeout time.Duration) (int, error) {
	opts := withDefaults(f.Options)
	client := f.Client
	if client == nil {
		client = NewClient()
	}
	if timeout <= 0 {
		timeout = constants.ProbeTimeout
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", opts.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(probeCtx, err) {
			return 0, &TimeoutError{URL: rawURL, After: timeout}
		}
		return 0, fmt.Errorf("probe %s: %w", rawURL, err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
