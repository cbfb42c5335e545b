package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// AppName names the config file, data directory and CSV exports.
	AppName = "siteterminal"

	// BotName is the robots.txt agent token for UserAgent.
	BotName = "SiteTerminalBot"
	// UserAgent identifies outbound probes against target sites.
	UserAgent = "SiteTerminalBot/1.0 (+public-inspector)"
	// ResearchUserAgent identifies calls to third-party intelligence APIs.
	ResearchUserAgent = "SiteTerminal/1.0 Security Research"
)

const (
	// FetchTimeout bounds each hop of a bounded fetch.
	FetchTimeout = 10 * time.Second
	// FetchMaxBytes caps a fetched body.
	FetchMaxBytes int64 = 2_000_000
	// FetchMaxRedirects caps redirect hops per fetch.
	FetchMaxRedirects = 5

	// ProbeTimeout bounds a single exposure or security.txt probe.
	ProbeTimeout = 8 * time.Second
	// TLSDialTimeout bounds the certificate audit handshake.
	TLSDialTimeout = 10 * time.Second
	// PortProbeTimeout bounds a single TCP connect during port discovery.
	PortProbeTimeout = 2 * time.Second
)

const (
	// RateLimitMax is the default number of analyzer calls per client per window.
	RateLimitMax = 30
	// RateLimitWindow is the default fixed window length.
	RateLimitWindow = time.Minute

	// CacheTTL applies to most cached analyzer responses.
	CacheTTL = 10 * time.Minute
	// ExposureCacheTTL is shorter so re-checks are fresher.
	ExposureCacheTTL = 5 * time.Minute
)
