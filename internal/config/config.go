package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/unifi-ops/internal/logging"
	"github.com/yourusername/unifi-ops/internal/transport"
)

// Config is the resolved per-process connection context plus ambient
// settings. It is constructed once at startup and never mutated; a
// reconfiguration replaces it wholesale.
type Config struct {
	Mode        string       `yaml:"mode" json:"mode"` // "hosted" or "local-proxy"
	Hosted      HostedConfig `yaml:"hosted" json:"hosted"`
	Local       LocalConfig  `yaml:"local" json:"local"`
	DefaultSite string       `yaml:"default_site" json:"default_site"`

	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Timeout   time.Duration   `yaml:"timeout" json:"timeout"`

	Cache   CacheConfig    `yaml:"cache" json:"cache"`
	Backup  BackupConfig   `yaml:"backup" json:"backup"`
	Audit   AuditConfig    `yaml:"audit" json:"audit"`
	Webhook WebhookConfig  `yaml:"webhook" json:"webhook"`
	Logging logging.Config `yaml:"logging" json:"logging"`

	configFile string `yaml:"-" json:"-"`
}

// HostedConfig holds cloud endpoint settings.
type HostedConfig struct {
	APIURL string `yaml:"api_url" json:"api_url"`
	APIKey string `yaml:"api_key" json:"-"`
}

// LocalConfig holds local gateway settings. VerifyTLS must be disabled
// explicitly; it is never silently defaulted off.
type LocalConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	APIKey    string `yaml:"api_key" json:"-"`
	Username  string `yaml:"username" json:"username"`
	Password  string `yaml:"password" json:"-"`
	VerifyTLS *bool  `yaml:"verify_tls" json:"verify_tls"`
}

// RateLimitConfig defines the request budget per window.
type RateLimitConfig struct {
	Requests int           `yaml:"requests" json:"requests"`
	Window   time.Duration `yaml:"window" json:"window"`
	MaxWait  time.Duration `yaml:"max_wait" json:"max_wait"`
}

// RetryConfig defines the retry policy for idempotent calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`
}

// BackupConfig controls backup polling, the local ledger, and any
// recurring backup schedules run by the serve command.
type BackupConfig struct {
	PollInterval time.Duration    `yaml:"poll_interval" json:"poll_interval"`
	PollTimeout  time.Duration    `yaml:"poll_timeout" json:"poll_timeout"`
	LedgerPath   string           `yaml:"ledger_path" json:"ledger_path"`
	Schedules    []ScheduleConfig `yaml:"schedules" json:"schedules"`
}

// ScheduleConfig is one recurring backup job.
type ScheduleConfig struct {
	Site          string `yaml:"site" json:"site"`
	Cron          string `yaml:"cron" json:"cron"`
	Type          string `yaml:"type" json:"type"`
	RetentionDays int    `yaml:"retention_days" json:"retention_days"`
	Keep          int    `yaml:"keep" json:"keep"`
}

// AuditConfig controls audit logging of mutating operations.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	File    string `yaml:"file" json:"file"`
}

// WebhookConfig controls the webhook receiver.
type WebhookConfig struct {
	Listen string `yaml:"listen" json:"listen"`
	Secret string `yaml:"secret" json:"-"`
}

// Option applies an explicit override, the highest-precedence source.
type Option func(*Config)

func WithMode(mode string) Option        { return func(c *Config) { c.Mode = mode } }
func WithAPIKey(key string) Option       { return func(c *Config) { c.Hosted.APIKey = key; c.Local.APIKey = key } }
func WithLocalHost(host string) Option   { return func(c *Config) { c.Local.Host = host } }
func WithLocalPort(port int) Option      { return func(c *Config) { c.Local.Port = port } }
func WithDefaultSite(site string) Option { return func(c *Config) { c.DefaultSite = site } }
func WithConfigFile(path string) Option  { return func(c *Config) { c.configFile = path } }

// WithVerifyTLS sets the local-gateway TLS verification flag explicitly.
func WithVerifyTLS(verify bool) Option {
	return func(c *Config) { c.Local.VerifyTLS = &verify }
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	verify := true
	return &Config{
		Mode: "hosted",
		Hosted: HostedConfig{
			APIURL: "https://api.ui.com",
		},
		Local: LocalConfig{
			Port:      443,
			VerifyTLS: &verify,
		},
		DefaultSite: "default",
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   time.Minute,
			MaxWait:  2 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
		},
		Timeout: 30 * time.Second,
		Cache: CacheConfig{
			Enabled: true,
		},
		Backup: BackupConfig{
			PollInterval: 2 * time.Second,
			PollTimeout:  5 * time.Minute,
			LedgerPath:   "./data/unifi-ops.db",
		},
		Audit: AuditConfig{
			Enabled: true,
			File:    "./data/audit.log",
		},
		Webhook: WebhookConfig{
			Listen: ":8787",
		},
		Logging: logging.Config{
			Level:      "info",
			Format:     "json",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// Resolve builds the configuration from layered sources with precedence
// explicit option > environment > config file > defaults. It performs no
// side effects beyond reading the sources.
func Resolve(opts ...Option) (*Config, error) {
	cfg := Defaults()

	// The config file path itself may come from an option or the
	// environment, so apply options to a probe first.
	probe := *cfg
	for _, opt := range opts {
		opt(&probe)
	}

	path := probe.configFile
	if path == "" {
		path = os.Getenv("UNIFI_OPS_CONFIG")
	}
	if path == "" {
		path = "./configs/config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, transport.WrapError(transport.KindConfiguration, err, "reading config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, transport.WrapError(transport.KindConfiguration, err, "parsing config file %s", path)
		}
	}

	applyEnv(cfg)

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays UNIFI_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	setString(&cfg.Mode, "UNIFI_MODE")
	setString(&cfg.Hosted.APIURL, "UNIFI_CLOUD_API_URL")
	setString(&cfg.DefaultSite, "UNIFI_DEFAULT_SITE")
	setString(&cfg.Local.Host, "UNIFI_LOCAL_HOST")
	setString(&cfg.Local.Username, "UNIFI_LOCAL_USERNAME")
	setString(&cfg.Local.Password, "UNIFI_LOCAL_PASSWORD")
	setString(&cfg.Cache.RedisAddr, "UNIFI_REDIS_ADDR")
	setString(&cfg.Webhook.Secret, "UNIFI_WEBHOOK_SECRET")
	setString(&cfg.Logging.Level, "LOG_LEVEL")

	if key := os.Getenv("UNIFI_API_KEY"); key != "" {
		cfg.Hosted.APIKey = key
		cfg.Local.APIKey = key
	}
	if port := os.Getenv("UNIFI_LOCAL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Local.Port = p
		}
	}
	if v := os.Getenv("UNIFI_LOCAL_VERIFY_SSL"); v != "" {
		verify := !isFalsy(v)
		cfg.Local.VerifyTLS = &verify
	}
	if n := os.Getenv("UNIFI_RATE_LIMIT_REQUESTS"); n != "" {
		if r, err := strconv.Atoi(n); err == nil {
			cfg.RateLimit.Requests = r
		}
	}
	if n := os.Getenv("UNIFI_MAX_RETRIES"); n != "" {
		if r, err := strconv.Atoi(n); err == nil {
			cfg.Retry.MaxAttempts = r
		}
	}
}

// Validate checks the configuration for the selected mode. Failures are
// configuration errors, fatal at startup.
func (c *Config) Validate() error {
	switch c.Mode {
	case "hosted":
		if strings.TrimSpace(c.Hosted.APIKey) == "" {
			return transport.NewError(transport.KindConfiguration,
				"hosted mode requires an API key (UNIFI_API_KEY)")
		}
		if isPlaceholder(c.Hosted.APIURL) {
			return transport.NewError(transport.KindConfiguration,
				"hosted api_url is empty or a placeholder: %q", c.Hosted.APIURL)
		}
	case "local-proxy":
		if isPlaceholder(c.Local.Host) {
			return transport.NewError(transport.KindConfiguration,
				"local-proxy mode requires a gateway host (UNIFI_LOCAL_HOST)")
		}
		if c.Local.Port < 1 || c.Local.Port > 65535 {
			return transport.NewError(transport.KindConfiguration,
				"local port must be between 1 and 65535, got %d", c.Local.Port)
		}
		hasKey := strings.TrimSpace(c.Local.APIKey) != ""
		hasLogin := c.Local.Username != "" && c.Local.Password != ""
		if !hasKey && !hasLogin {
			return transport.NewError(transport.KindConfiguration,
				"local-proxy mode requires an API key or username+password")
		}
		if c.Local.VerifyTLS == nil {
			return transport.NewError(transport.KindConfiguration,
				"local-proxy mode requires verify_tls to be set explicitly")
		}
	default:
		return transport.NewError(transport.KindConfiguration,
			"mode must be %q or %q, got %q", "hosted", "local-proxy", c.Mode)
	}

	if c.DefaultSite == "" {
		return transport.NewError(transport.KindConfiguration, "default_site must not be empty")
	}
	return nil
}

// Endpoint builds the transport endpoint for the active mode.
func (c *Config) Endpoint() transport.Endpoint {
	if c.Mode == "local-proxy" {
		verify := c.Local.VerifyTLS == nil || *c.Local.VerifyTLS
		return transport.NewLocalEndpoint(transport.LocalOptions{
			Host:      c.Local.Host,
			Port:      c.Local.Port,
			APIKey:    c.Local.APIKey,
			Username:  c.Local.Username,
			Password:  c.Local.Password,
			VerifyTLS: verify,
		})
	}
	return transport.NewHostedEndpoint(c.Hosted.APIURL, c.Hosted.APIKey)
}

// ClientOptions assembles transport options for the active mode. Local
// gateways have no published ceiling, so budgeting only applies to hosted.
func (c *Config) ClientOptions() transport.Options {
	opts := transport.Options{
		Endpoint: c.Endpoint(),
		Timeout:  c.Timeout,
	}
	if c.Mode == "hosted" {
		opts.RateCeiling = c.RateLimit.Requests
		opts.RateWindow = c.RateLimit.Window
		opts.RateMaxWait = c.RateLimit.MaxWait
	}
	retry := transport.DefaultRetryPolicy()
	if c.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.BaseDelay > 0 {
		retry.BaseDelay = c.Retry.BaseDelay
	}
	if c.Retry.MaxDelay > 0 {
		retry.MaxDelay = c.Retry.MaxDelay
	}
	opts.Retry = retry
	return opts
}

func isPlaceholder(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	switch v {
	case "", "changeme", "change-me", "your-gateway", "example.com", "<host>":
		return true
	}
	return strings.HasPrefix(v, "${")
}

func isFalsy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no", "off":
		return true
	}
	return false
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
