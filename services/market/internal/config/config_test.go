package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadReadsYAML(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
logLevel: debug
platformURL: http://localhost:9100
platformKey: anon-key
feedCacheTTL: 2m
signInRateLimitPerMinute: 10
trustedProxyCidrs:
  - 10.0.0.0/8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.PlatformURL != "http://localhost:9100" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.SignInRateLimitPerMinute != 10 || len(cfg.TrustedProxyCIDRs) != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
platformURL: http://file.local
`)
	t.Setenv("PLATFORM_URL", "http://env.local")
	t.Setenv("PLATFORM_ANON_KEY", "env-key")
	t.Setenv("MARKET_SIGNUP_RATE_LIMIT_PER_MINUTE", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PlatformURL != "http://env.local" || cfg.PlatformKey != "env-key" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.SignUpRateLimitPerMinute != 7 {
		t.Fatalf("rate limit override = %d", cfg.SignUpRateLimitPerMinute)
	}
}

func TestLoadAllowsMissingPlatformCredentials(t *testing.T) {
	// Absent credentials select offline mode; they must not fail
	// validation.
	path := writeConfig(t, `
port: "8080"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PlatformURL != "" || cfg.PlatformKey != "" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadRequiresPort(t *testing.T) {
	path := writeConfig(t, `
logLevel: info
`)
	if _, err := Load(path); err == nil {
		t.Fatal("missing port must fail validation")
	}
}

func TestParseFeedCacheTTL(t *testing.T) {
	if d, err := ParseFeedCacheTTL(""); err != nil || d != 0 {
		t.Fatalf("empty ttl = (%v, %v)", d, err)
	}
	if d, err := ParseFeedCacheTTL("90s"); err != nil || d != 90*time.Second {
		t.Fatalf("90s ttl = (%v, %v)", d, err)
	}
	if _, err := ParseFeedCacheTTL("never"); err == nil {
		t.Fatal("invalid duration must fail")
	}
}
