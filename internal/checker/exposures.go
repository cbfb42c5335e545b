package checker

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/khanhnv2901/siteterminal/internal/fetch"
	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
)

// exposureBatchSize bounds simultaneous probes against one target.
const exposureBatchSize = 6

// exposurePath is one catalog entry.
type exposurePath struct {
	path        string
	severity    Severity
	description string
}

// exposureCatalog is probed in order; the order is preserved in results.
var exposureCatalog = []exposurePath{
	{"/.env", SeverityCritical, "Environment file — may contain API keys, DB credentials, secrets"},
	{"/.env.local", SeverityCritical, "Local environment file — may contain secrets"},
	{"/.env.production", SeverityCritical, "Production environment file"},
	{"/.git/config", SeverityCritical, "Git repository config — may expose remote URLs and credentials"},
	{"/.git/HEAD", SeverityHigh, "Git HEAD file — confirms exposed .git directory"},
	{"/wp-config.php", SeverityCritical, "WordPress config — contains DB credentials if exposed"},
	{"/wp-config.php.bak", SeverityCritical, "WordPress config backup"},
	{"/wp-config.old", SeverityCritical, "WordPress config old backup"},
	{"/phpinfo.php", SeverityHigh, "PHP info page — leaks server config and installed extensions"},
	{"/server-status", SeverityHigh, "Apache/Nginx server status — leaks request data and server info"},
	{"/server-info", SeverityHigh, "Apache server info endpoint"},
	{"/admin/", SeverityMedium, "Admin panel accessible — check if authentication required"},
	{"/administrator/", SeverityMedium, "Joomla/generic admin panel"},
	{"/phpmyadmin/", SeverityHigh, "phpMyAdmin — database admin interface publicly reachable"},
	{"/backup.zip", SeverityCritical, "Backup archive — may contain full site source code and data"},
	{"/backup.tar.gz", SeverityCritical, "Backup archive"},
	{"/backup.sql", SeverityCritical, "SQL dump — may contain all database data"},
	{"/db.sql", SeverityCritical, "SQL dump"},
	{"/.DS_Store", SeverityMedium, "macOS .DS_Store — reveals directory structure"},
	{"/composer.json", SeverityLow, "PHP Composer manifest — reveals dependency names/versions"},
	{"/package.json", SeverityLow, "Node.js package manifest — reveals dependency names/versions"},
	{"/.htaccess", SeverityMedium, "Apache .htaccess — may reveal rewrite rules and access controls"},
	{"/web.config", SeverityMedium, "IIS web.config — may reveal server configuration"},
	{"/crossdomain.xml", SeverityLow, "Flash crossdomain policy — outdated but may indicate permissive CORS-like config"},
	{"/clientaccesspolicy.xml", SeverityLow, "Silverlight client access policy"},
}

var dirListingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Index of /`),
	regexp.MustCompile(`(?i)Directory Listing`),
	regexp.MustCompile(`(?i)Parent Directory`),
	regexp.MustCompile(`(?i)\[DIR\]`),
	regexp.MustCompile(`(?i)<title>[^<]*Index of[^<]*</title>`),
}

// Exposure is the probe outcome for one catalog path. Status is null when
// the probe failed to connect or timed out.
type Exposure struct {
	Path        string   `json:"path"`
	Status      *int     `json:"status"`
	Exposed     bool     `json:"exposed"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// ExposureResult is the verdict over the whole catalog.
type ExposureResult struct {
	URL                string     `json:"url"`
	CheckedPaths       int        `json:"checkedPaths"`
	ExposedCount       int        `json:"exposedCount"`
	Exposures          []Exposure `json:"exposures"`
	DirListingDetected bool       `json:"dirListingDetected"`
}

// Prober issues a single non-following GET and reports the status.
type Prober interface {
	Probe(ctx context.Context, rawURL string, timeout time.Duration) (int, error)
}

// ExposureScanner probes well-known sensitive paths on a site.
type ExposureScanner struct {
	Guard   fetch.HostGuard
	Prober  Prober
	Fetcher PageFetcher
	// Timeout applies to each path probe.
	Timeout time.Duration
}

func (s *ExposureScanner) Name() string { return "exposures" }

func (s *ExposureScanner) Analyze(ctx context.Context, target Target) (any, error) {
	return s.Scan(ctx, target.URL)
}

// IsExposed reports whether a probe status confirms the path exists. 403 is
// treated as exposed since it confirms existence.
func IsExposed(status int) bool {
	return status == http.StatusOK || status == http.StatusForbidden
}

// Scan probes the catalog against the origin of baseURL in batches and checks
// the root for a directory listing.
func (s *ExposureScanner) Scan(ctx context.Context, baseURL string) (*ExposureResult, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, &InputError{Message: "Invalid URL. Must start with http:// or https://", Err: err}
	}
	if s.Guard != nil {
		if err := s.Guard.AssertSafeHostname(ctx, u.Hostname()); err != nil {
			return nil, err
		}
	}
	origin := u.Scheme + "://" + u.Host

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = constants.ProbeTimeout
	}

	results := make([]Exposure, len(exposureCatalog))
	for start := 0; start < len(exposureCatalog); start += exposureBatchSize {
		end := start + exposureBatchSize
		if end > len(exposureCatalog) {
			end = len(exposureCatalog)
		}

		// Probe failures become null statuses, so the group never errors.
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				entry := exposureCatalog[i]
				results[i] = Exposure{
					Path:        entry.path,
					Severity:    entry.severity,
					Description: entry.description,
				}
				status, err := s.Prober.Probe(ctx, origin+entry.path, timeout)
				if err == nil {
					results[i].Status = &status
					results[i].Exposed = IsExposed(status)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	exposed := 0
	for _, r := range results {
		if r.Exposed {
			exposed++
		}
	}

	return &ExposureResult{
		URL:                baseURL,
		CheckedPaths:       len(exposureCatalog),
		ExposedCount:       exposed,
		Exposures:          results,
		DirListingDetected: s.detectDirectoryListing(ctx, origin+"/"),
	}, nil
}

func (s *ExposureScanner) detectDirectoryListing(ctx context.Context, rootURL string) bool {
	if s.Fetcher == nil {
		return false
	}
	res, err := s.Fetcher.Fetch(ctx, rootURL)
	if err != nil {
		return false
	}
	return HasDirectoryListing(string(res.Body))
}

// HasDirectoryListing matches body text against directory index signatures.
func HasDirectoryListing(body string) bool {
	for _, p := range dirListingPatterns {
		if p.MatchString(body) {
			return true
		}
	}
	return false
}
