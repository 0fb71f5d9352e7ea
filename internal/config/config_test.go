package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yourusername/unifi-ops/internal/transport"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"UNIFI_MODE", "UNIFI_API_KEY", "UNIFI_CLOUD_API_URL", "UNIFI_DEFAULT_SITE",
		"UNIFI_LOCAL_HOST", "UNIFI_LOCAL_PORT", "UNIFI_LOCAL_USERNAME",
		"UNIFI_LOCAL_PASSWORD", "UNIFI_LOCAL_VERIFY_SSL", "UNIFI_REDIS_ADDR",
		"UNIFI_WEBHOOK_SECRET", "UNIFI_RATE_LIMIT_REQUESTS", "UNIFI_MAX_RETRIES",
		"UNIFI_OPS_CONFIG", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Mode != "hosted" {
		t.Errorf("default mode = %q, want hosted", cfg.Mode)
	}
	if cfg.Hosted.APIURL != "https://api.ui.com" {
		t.Errorf("default api url = %q", cfg.Hosted.APIURL)
	}
	if cfg.DefaultSite != "default" {
		t.Errorf("default site = %q", cfg.DefaultSite)
	}
	if cfg.RateLimit.Requests != 100 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("rate limit = %d/%s", cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("retry = %d attempts, %s base", cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay)
	}
	if cfg.Local.VerifyTLS == nil || !*cfg.Local.VerifyTLS {
		t.Error("TLS verification should default on")
	}
}

func TestResolveHostedMissingKey(t *testing.T) {
	clearEnv(t)
	_, err := Resolve(WithConfigFile(filepath.Join(t.TempDir(), "none.yaml")))
	if err == nil {
		t.Fatal("expected error for hosted mode without an API key")
	}
	var terr *transport.Error
	if !errors.As(err, &terr) || terr.Kind != transport.KindConfiguration {
		t.Errorf("error = %v, want configuration kind", err)
	}
}

func TestResolveEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("UNIFI_API_KEY", "env-key")
	t.Setenv("UNIFI_DEFAULT_SITE", "branch-office")
	t.Setenv("UNIFI_RATE_LIMIT_REQUESTS", "50")

	cfg, err := Resolve(WithConfigFile(filepath.Join(t.TempDir(), "none.yaml")))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Hosted.APIKey != "env-key" {
		t.Errorf("api key = %q", cfg.Hosted.APIKey)
	}
	if cfg.DefaultSite != "branch-office" {
		t.Errorf("site = %q", cfg.DefaultSite)
	}
	if cfg.RateLimit.Requests != 50 {
		t.Errorf("rate limit = %d", cfg.RateLimit.Requests)
	}
}

func TestResolveFileLayer(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
mode: local-proxy
local:
  host: 192.168.1.1
  api_key: file-key
  verify_tls: false
default_site: warehouse
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Resolve(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Mode != "local-proxy" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Local.Host != "192.168.1.1" || cfg.Local.Port != 443 {
		t.Errorf("local = %s:%d", cfg.Local.Host, cfg.Local.Port)
	}
	if cfg.DefaultSite != "warehouse" {
		t.Errorf("site = %q", cfg.DefaultSite)
	}
	if cfg.Local.VerifyTLS == nil || *cfg.Local.VerifyTLS {
		t.Error("verify_tls: false in file should carry through")
	}
}

func TestResolveExplicitBeatsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("UNIFI_API_KEY", "env-key")
	t.Setenv("UNIFI_DEFAULT_SITE", "env-site")

	cfg, err := Resolve(
		WithConfigFile(filepath.Join(t.TempDir(), "none.yaml")),
		WithDefaultSite("explicit-site"),
	)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.DefaultSite != "explicit-site" {
		t.Errorf("site = %q, explicit option should win over env", cfg.DefaultSite)
	}
}

func TestValidateLocalProxy(t *testing.T) {
	verify := true
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name: "api key auth",
			mutate: func(c *Config) {
				c.Local.APIKey = "k"
			},
		},
		{
			name: "username password auth",
			mutate: func(c *Config) {
				c.Local.Username = "admin"
				c.Local.Password = "secret"
			},
		},
		{
			name:    "no credentials",
			mutate:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "placeholder host",
			mutate: func(c *Config) {
				c.Local.Host = "your-gateway"
				c.Local.APIKey = "k"
			},
			wantErr: true,
		},
		{
			name: "port out of range",
			mutate: func(c *Config) {
				c.Local.APIKey = "k"
				c.Local.Port = 70000
			},
			wantErr: true,
		},
		{
			name: "missing verify_tls decision",
			mutate: func(c *Config) {
				c.Local.APIKey = "k"
				c.Local.VerifyTLS = nil
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Mode = "local-proxy"
			cfg.Local.Host = "10.0.0.1"
			cfg.Local.VerifyTLS = &verify
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "direct"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestClientOptionsHosted(t *testing.T) {
	cfg := Defaults()
	cfg.Hosted.APIKey = "k"
	opts := cfg.ClientOptions()
	if opts.RateCeiling != 100 {
		t.Errorf("rate ceiling = %d", opts.RateCeiling)
	}
	if opts.Endpoint.Mode() != transport.ModeHosted {
		t.Errorf("endpoint mode = %v", opts.Endpoint.Mode())
	}
}

func TestClientOptionsLocalSkipsBudget(t *testing.T) {
	verify := false
	cfg := Defaults()
	cfg.Mode = "local-proxy"
	cfg.Local.Host = "10.0.0.1"
	cfg.Local.APIKey = "k"
	cfg.Local.VerifyTLS = &verify
	opts := cfg.ClientOptions()
	if opts.RateCeiling != 0 {
		t.Errorf("local mode should not carry a rate ceiling, got %d", opts.RateCeiling)
	}
	if opts.Endpoint.Mode() != transport.ModeLocalProxy {
		t.Errorf("endpoint mode = %v", opts.Endpoint.Mode())
	}
}
