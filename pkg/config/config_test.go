package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Fatalf("Port = %d", cfg.Server.Port)
	}
	if cfg.Limits.MaxThreadDepth != DefaultMaxThreadDepth {
		t.Fatalf("MaxThreadDepth = %d", cfg.Limits.MaxThreadDepth)
	}
	if cfg.RateLimit.Window.Duration() != DefaultRateWindow {
		t.Fatalf("Window = %v", cfg.RateLimit.Window.Duration())
	}
	if cfg.RateLimit.Threshold != DefaultRateThreshold {
		t.Fatalf("Threshold = %d", cfg.RateLimit.Threshold)
	}
	if cfg.Retention.Cron != DefaultRetentionCron {
		t.Fatalf("Cron = %q", cfg.Retention.Cron)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  address: "127.0.0.1"
  port: 9090
  db_path: "/tmp/msgcore-test"
logging:
  level: debug
limits:
  max_body_runes: 280
  max_thread_depth: 8
rate_limit:
  window: 30s
  threshold: 3
policy:
  admin_bypass: true
notify:
  workers: 4
  retry_backoff: 100ms
retention:
  enabled: true
  cron: "*/5 * * * *"
  notification_max_age: 720h
security:
  max_request_body: 2MB
  rate_limit:
    rps: 10
    burst: 20
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Server.Addr(); got != "127.0.0.1:9090" {
		t.Fatalf("Addr = %q", got)
	}
	if cfg.Limits.MaxBodyRunes != 280 || cfg.Limits.MaxThreadDepth != 8 {
		t.Fatalf("Limits = %+v", cfg.Limits)
	}
	if cfg.RateLimit.Window.Duration() != 30*time.Second || cfg.RateLimit.Threshold != 3 {
		t.Fatalf("RateLimit = %+v", cfg.RateLimit)
	}
	if !cfg.Policy.AdminBypass {
		t.Fatalf("AdminBypass not set")
	}
	if cfg.Notify.Workers != 4 || cfg.Notify.RetryBackoff.Duration() != 100*time.Millisecond {
		t.Fatalf("Notify = %+v", cfg.Notify)
	}
	if !cfg.Retention.Enabled || cfg.Retention.NotificationMaxAge.Duration() != 720*time.Hour {
		t.Fatalf("Retention = %+v", cfg.Retention)
	}
	if cfg.Security.MaxRequestBody.Int64() != 2*1000*1000 {
		t.Fatalf("MaxRequestBody = %d", cfg.Security.MaxRequestBody.Int64())
	}
	// untouched fields still pick up defaults
	if cfg.Notify.MaxRetries != DefaultMaxRetries {
		t.Fatalf("MaxRetries = %d", cfg.Notify.MaxRetries)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Fatalf("Port = %d", cfg.Server.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MSGCORE_PORT", "8123")
	t.Setenv("MSGCORE_DB_PATH", "/srv/msgcore")
	t.Setenv("MSGCORE_SIGNING_KEY", "sekrit")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8123 {
		t.Fatalf("Port = %d", cfg.Server.Port)
	}
	if cfg.Server.DBPath != "/srv/msgcore" {
		t.Fatalf("DBPath = %q", cfg.Server.DBPath)
	}
	if len(cfg.Security.SigningKeys) != 1 || cfg.Security.SigningKeys[0] != "sekrit" {
		t.Fatalf("SigningKeys = %v", cfg.Security.SigningKeys)
	}
}

func TestDurationParsing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	// bare numbers are seconds
	body := "rate_limit:\n  window: 45\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RateLimit.Window.Duration() != 45*time.Second {
		t.Fatalf("Window = %v", cfg.RateLimit.Window.Duration())
	}
}
