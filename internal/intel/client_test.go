package intel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.Endpoints = Endpoints{
		CrtSh:        server.URL,
		Wayback:      server.URL,
		IPAPI:        server.URL,
		HackerTarget: server.URL,
		CIRCL:        server.URL,
		Shodan:       server.URL,
		HIBP:         server.URL,
	}
	return New(cfg)
}

func TestCertificateNames(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "%.example.com" {
			t.Errorf("q = %q", got)
		}
		if ua := r.Header.Get("User-Agent"); ua != "SiteTerminal/1.0 Security Research" {
			t.Errorf("User-Agent = %q", ua)
		}
		_, _ = w.Write([]byte(`[{"name_value":"www.example.com\nexample.com"},{"name_value":"*.api.example.com"}]`))
	}, Config{})

	entries, err := c.CertificateNames(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("CertificateNames() error = %v", err)
	}
	if len(entries) != 2 || !strings.Contains(entries[0].NameValue, "\n") {
		t.Errorf("entries = %+v", entries)
	}
}

func TestCertificateNames_UpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, Config{})

	_, err := c.CertificateNames(context.Background(), "example.com")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusBadGateway {
		t.Fatalf("expected StatusError 502, got %v", err)
	}
	if !errors.Is(err, apperrors.ErrUpstream) {
		t.Error("StatusError should unwrap to ErrUpstream")
	}
	if err.Error() != "crt.sh returned 502" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestWaybackRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("url") != "example.com/*" || q.Get("filter") != "statuscode:200" || q.Get("limit") != "500" {
			t.Errorf("unexpected query %v", q)
		}
		_, _ = w.Write([]byte(`[["original","statuscode","timestamp","mimetype"],["http://example.com/.env","200","20200101120000","text/plain"]]`))
	}, Config{})

	rows, err := c.WaybackRows(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("WaybackRows() error = %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "http://example.com/.env" {
		t.Errorf("rows = %v", rows)
	}
}

func TestReverseIP(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"hosts", "a.example.com\nb.example.com\n\n", 2},
		{"upstream error", "error check your search parameter", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}, Config{})
			hosts, err := c.ReverseIP(context.Background(), "93.184.216.34")
			if err != nil {
				t.Fatalf("ReverseIP() error = %v", err)
			}
			if len(hosts) != tt.want {
				t.Errorf("len(hosts) = %d, want %d", len(hosts), tt.want)
			}
		})
	}
}

func TestSearchCVE_NonArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}, Config{})

	_, ok, err := c.SearchCVE(context.Background(), "nginx")
	if err != nil || ok {
		t.Errorf("SearchCVE() = ok %v, err %v; want false, nil", ok, err)
	}
}

func TestShodanLookup(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		c := New(Config{})
		_, err := c.ShodanLookup(context.Background(), "1.1.1.1")
		if !errors.Is(err, apperrors.ErrMissingAPIKey) {
			t.Fatalf("expected ErrMissingAPIKey, got %v", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, Config{ShodanAPIKey: "k"})
		_, err := c.ShodanLookup(context.Background(), "1.1.1.1")
		if !errors.Is(err, ErrHostNotFound) {
			t.Fatalf("expected ErrHostNotFound, got %v", err)
		}
	})

	t.Run("found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("key") != "k" {
				t.Errorf("missing key parameter")
			}
			_, _ = w.Write([]byte(`{"ip_str":"1.1.1.1","org":"Example","ports":[80,443],"country_name":"Australia"}`))
		}, Config{ShodanAPIKey: "k"})
		host, err := c.ShodanLookup(context.Background(), "1.1.1.1")
		if err != nil {
			t.Fatalf("ShodanLookup() error = %v", err)
		}
		if host.IPStr != "1.1.1.1" || len(host.Ports) != 2 || host.CountryName != "Australia" {
			t.Errorf("host = %+v", host)
		}
	})
}

func TestBreaches_SendsKeyHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("hibp-api-key") != "secret" {
			t.Errorf("hibp-api-key header missing")
		}
		_, _ = w.Write([]byte(`[{"Name":"Adobe"}]`))
	}, Config{HIBPAPIKey: "secret"})

	breaches, err := c.Breaches(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Breaches() error = %v", err)
	}
	if len(breaches) != 1 {
		t.Errorf("len(breaches) = %d, want 1", len(breaches))
	}
}
