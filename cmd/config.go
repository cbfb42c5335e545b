package cmd

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/khanhnv2901/siteterminal/internal/checker"
	"github.com/khanhnv2901/siteterminal/internal/domain/user"
	"github.com/khanhnv2901/siteterminal/internal/fetch"
	"github.com/khanhnv2901/siteterminal/internal/infrastructure/persistence/sqlite"
	"github.com/khanhnv2901/siteterminal/internal/intel"
	"github.com/khanhnv2901/siteterminal/internal/netguard"
	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
)

const (
	defaultAddr            = "127.0.0.1:8080"
	defaultShutdownTimeout = 30 * time.Second
	defaultIntelRPS        = 2
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Server       ServerConfig
	RateLimit    RateLimitConfig
	Cache        CacheConfig
	Store        StoreConfig
	Fetch        fetch.Options
	DNS          DNSConfig
	Integrations IntegrationsConfig
	Session      SessionConfig
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	AuthToken       string
}

type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

type CacheConfig struct {
	Enabled bool
}

type StoreConfig struct {
	Path string
}

// DNSConfig groups DNS-specific runtime options.
type DNSConfig struct {
	Nameserver string
	Timeout    time.Duration
}

// IntegrationsConfig holds third-party API keys and the outbound pace.
type IntegrationsConfig struct {
	ShodanAPIKey      string
	HIBPAPIKey        string
	RequestsPerSecond float64
}

type SessionConfig struct {
	TTL time.Duration
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Server: ServerConfig{
			Addr:            defaultAddr,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		RateLimit: RateLimitConfig{
			Max:    constants.RateLimitMax,
			Window: constants.RateLimitWindow,
		},
		Cache:   CacheConfig{Enabled: true},
		Store:   StoreConfig{Path: defaultStorePath()},
		Fetch:   fetch.DefaultOptions(),
		DNS:     DNSConfig{Nameserver: checker.DefaultNameserver, Timeout: 5 * time.Second},
		Session: SessionConfig{TTL: user.SessionTTL},
		Integrations: IntegrationsConfig{
			RequestsPerSecond: defaultIntelRPS,
		},
	}
}

// defaultStorePath places the database in the XDG data directory.
func defaultStorePath() string {
	return filepath.Join(xdg.DataHome, constants.AppName, sqlite.DefaultFileName)
}

// loadCLIConfig overlays config file and environment values on the defaults.
func loadCLIConfig() *CLIConfig {
	cfg := newCLIConfig()

	stringKey("server.addr", &cfg.Server.Addr)
	durationKey("server.shutdown_timeout", &cfg.Server.ShutdownTimeout)
	if viper.IsSet("server.cors_origins") {
		cfg.Server.CORSOrigins = viper.GetStringSlice("server.cors_origins")
	}
	stringKey("server.auth_token", &cfg.Server.AuthToken)

	intKey("ratelimit.max", &cfg.RateLimit.Max)
	durationKey("ratelimit.window", &cfg.RateLimit.Window)

	if viper.IsSet("cache.enabled") {
		cfg.Cache.Enabled = viper.GetBool("cache.enabled")
	}
	stringKey("store.path", &cfg.Store.Path)

	durationKey("fetch.timeout", &cfg.Fetch.Timeout)
	if viper.IsSet("fetch.max_bytes") {
		cfg.Fetch.MaxBytes = viper.GetInt64("fetch.max_bytes")
	}
	intKey("fetch.max_redirects", &cfg.Fetch.MaxRedirects)
	stringKey("fetch.user_agent", &cfg.Fetch.UserAgent)

	stringKey("dns.nameserver", &cfg.DNS.Nameserver)
	durationKey("dns.timeout", &cfg.DNS.Timeout)

	stringKey("integrations.shodan_api_key", &cfg.Integrations.ShodanAPIKey)
	stringKey("integrations.hibp_api_key", &cfg.Integrations.HIBPAPIKey)
	if viper.IsSet("integrations.requests_per_second") {
		cfg.Integrations.RequestsPerSecond = viper.GetFloat64("integrations.requests_per_second")
	}

	durationKey("session.ttl", &cfg.Session.TTL)
	return cfg
}

func stringKey(key string, dst *string) {
	if viper.IsSet(key) {
		if v := viper.GetString(key); v != "" {
			*dst = v
		}
	}
}

func intKey(key string, dst *int) {
	if viper.IsSet(key) {
		*dst = viper.GetInt(key)
	}
}

func durationKey(key string, dst *time.Duration) {
	if viper.IsSet(key) {
		if v := viper.GetDuration(key); v > 0 {
			*dst = v
		}
	}
}

// applyConfigDefaults fills the --db flag from the config when the user
// did not set it.
func applyConfigDefaults(cmd *cobra.Command) {
	setStringFlagIfUnset(cmd.Flags(), "db", cliConfig.Store.Path)
}

// newDeps builds the analyzer collaborators from cfg. guard may be nil to
// use the production SSRF guard.
func newDeps(cfg *CLIConfig, guard fetch.HostGuard) checker.Deps {
	if guard == nil {
		guard = netguard.New()
	}
	burst := int(cfg.Integrations.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return checker.Deps{
		Guard:    guard,
		Fetcher:  fetch.New(guard, cfg.Fetch),
		Resolver: checker.NewDNSResolver(cfg.DNS.Nameserver, cfg.DNS.Timeout),
		Intel: intel.New(intel.Config{
			UserAgent:         constants.ResearchUserAgent,
			RequestsPerSecond: cfg.Integrations.RequestsPerSecond,
			Burst:             burst,
			ShodanAPIKey:      cfg.Integrations.ShodanAPIKey,
			HIBPAPIKey:        cfg.Integrations.HIBPAPIKey,
		}),
	}
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyDurationDefault(flags *pflag.FlagSet, name string, value time.Duration, setter func(time.Duration)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}
