package intel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

// CertificateEntry is one crt.sh search row.
type CertificateEntry struct {
	NameValue string `json:"name_value"`
}

// CertificateNames queries certificate transparency for %.domain.
func (c *Client) CertificateNames(ctx context.Context, domain string) ([]CertificateEntry, error) {
	u := fmt.Sprintf("%s/?q=%%25.%s&output=json", c.endpoints.CrtSh, url.QueryEscape(domain))
	var entries []CertificateEntry
	if err := c.getJSON(ctx, "crt.sh", u, 15*time.Second, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// WaybackRows returns the raw CDX rows for domain/*, header row included.
// Columns are original, statuscode, timestamp, mimetype.
func (c *Client) WaybackRows(ctx context.Context, domain string) ([][]string, error) {
	q := url.Values{}
	q.Set("url", domain+"/*")
	q.Set("output", "json")
	q.Set("fl", "original,statuscode,timestamp,mimetype")
	q.Set("collapse", "urlkey")
	q.Set("limit", "500")
	q.Set("filter", "statuscode:200")
	u := c.endpoints.Wayback + "/cdx/search/cdx?" + q.Encode()

	body, err := c.get(ctx, "wayback", u, 20*time.Second, nil)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode wayback response: %w", err)
	}
	return rows, nil
}

// IPInfo is the ip-api response.
type IPInfo struct {
	Status      string  `json:"status"`
	Message     string  `json:"message,omitempty"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"countryCode,omitempty"`
	Region      string  `json:"region,omitempty"`
	RegionName  string  `json:"regionName,omitempty"`
	City        string  `json:"city,omitempty"`
	Zip         string  `json:"zip,omitempty"`
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
	ISP         string  `json:"isp,omitempty"`
	Org         string  `json:"org,omitempty"`
	AS          string  `json:"as,omitempty"`
	Query       string  `json:"query,omitempty"`
}

// Field sets requested from ip-api.
const (
	IPFieldsFull  = "status,message,country,countryCode,region,regionName,city,zip,lat,lon,timezone,isp,org,as,query"
	IPFieldsInfra = "status,message,country,countryCode,isp,org,as,query"
)

// LookupIP queries ip-api for ip with the given field set.
func (c *Client) LookupIP(ctx context.Context, ip, fields string) (*IPInfo, error) {
	u := fmt.Sprintf("%s/json/%s?fields=%s", c.endpoints.IPAPI, url.PathEscape(ip), fields)
	var info IPInfo
	if err := c.getJSON(ctx, "ip-api", u, 10*time.Second, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ReverseIP lists hostnames sharing ip. An upstream "error" body yields an
// empty list.
func (c *Client) ReverseIP(ctx context.Context, ip string) ([]string, error) {
	u := fmt.Sprintf("%s/reverseiplookup/?q=%s", c.endpoints.HackerTarget, url.QueryEscape(ip))
	body, err := c.get(ctx, "hackertarget", u, 5*time.Second, nil)
	if err != nil {
		return nil, err
	}
	text := string(body)
	if strings.Contains(text, "error") {
		return []string{}, nil
	}
	hosts := []string{}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			hosts = append(hosts, line)
		}
	}
	return hosts, nil
}

// CVE is one CIRCL search result.
type CVE struct {
	ID        string `json:"id"`
	Summary   string `json:"summary"`
	CVSS      any    `json:"cvss"`
	Published string `json:"Published"`
}

// SearchCVE queries CIRCL for product. A non-array response yields ok=false.
func (c *Client) SearchCVE(ctx context.Context, product string) ([]CVE, bool, error) {
	u := fmt.Sprintf("%s/api/search/%s", c.endpoints.CIRCL, url.PathEscape(product))
	body, err := c.get(ctx, "circl", u, 10*time.Second, nil)
	if err != nil {
		return nil, false, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false, nil
	}
	out := make([]CVE, 0, len(raw))
	for _, item := range raw {
		var v CVE
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, true, nil
}

// ShodanHost is the subset of the Shodan host response the service reports.
type ShodanHost struct {
	IPStr       string   `json:"ip_str"`
	Org         string   `json:"org"`
	ISP         string   `json:"isp"`
	OS          *string  `json:"os"`
	Ports       []int    `json:"ports"`
	Vulns       []string `json:"vulns"`
	Tags        []string `json:"tags"`
	LastUpdate  string   `json:"last_update"`
	City        string   `json:"city"`
	CountryName string   `json:"country_name"`
	CountryCode string   `json:"country_code"`
}

// ErrHostNotFound is returned when Shodan has no record of an address.
var ErrHostNotFound = errors.New("host not found")

// ShodanLookup fetches Shodan's record for ip.
func (c *Client) ShodanLookup(ctx context.Context, ip string) (*ShodanHost, error) {
	if c.shodanKey == "" {
		return nil, fmt.Errorf("shodan: %w", apperrors.ErrMissingAPIKey)
	}
	u := fmt.Sprintf("%s/shodan/host/%s?key=%s", c.endpoints.Shodan, url.PathEscape(ip), url.QueryEscape(c.shodanKey))

	var host ShodanHost
	err := c.getJSON(ctx, "shodan", u, 10*time.Second, nil, &host)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound {
		return nil, ErrHostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &host, nil
}

// Breaches lists HIBP breaches for domain. The result is passed through
// unmodified.
func (c *Client) Breaches(ctx context.Context, domain string) ([]json.RawMessage, error) {
	if c.hibpKey == "" {
		return nil, fmt.Errorf("hibp: %w", apperrors.ErrMissingAPIKey)
	}
	u := fmt.Sprintf("%s/api/v3/breaches?domain=%s", c.endpoints.HIBP, url.QueryEscape(domain))
	header := http.Header{}
	header.Set("hibp-api-key", c.hibpKey)
	header.Set("User-Agent", "SiteTerminal")

	var breaches []json.RawMessage
	if err := c.getJSON(ctx, "hibp", u, 10*time.Second, header, &breaches); err != nil {
		return nil, err
	}
	return breaches, nil
}
