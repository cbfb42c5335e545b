package checker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/khanhnv2901/siteterminal/internal/fetch"
)

// stubFetcher serves a canned page, or per-URL pages when pages is set.
type stubFetcher struct {
	status  int
	headers http.Header
	body    string
	err     error
	pages   map[string]*fetch.Result

	mu    sync.Mutex
	calls []string
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, rawURL)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	if s.pages != nil {
		if res, ok := s.pages[rawURL]; ok {
			return res, nil
		}
		return &fetch.Result{FinalURL: rawURL, Status: http.StatusNotFound, Headers: http.Header{}}, nil
	}
	headers := s.headers
	if headers == nil {
		headers = http.Header{}
	}
	return &fetch.Result{
		FinalURL: rawURL,
		Status:   s.status,
		Headers:  headers,
		Body:     []byte(s.body),
		Timing:   42 * time.Millisecond,
	}, nil
}

func page(status int, body string) *fetch.Result {
	return &fetch.Result{Status: status, Headers: http.Header{}, Body: []byte(body)}
}
