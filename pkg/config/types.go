package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Limits    LimitsConfig    `yaml:"limits"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Policy    PolicyConfig    `yaml:"policy"`
	Notify    NotifyConfig    `yaml:"notify"`
	Retention RetentionConfig `yaml:"retention"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServerConfig holds listen and storage settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
}

// Addr renders the listen address. An Address already carrying a port
// (e.g. from the -addr flag) wins over the Port field.
func (s ServerConfig) Addr() string {
	if strings.Contains(s.Address, ":") {
		return s.Address
	}
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LimitsConfig bounds message bodies and reply-tree depth.
type LimitsConfig struct {
	// MaxBodyRunes caps message bodies, counted in code points.
	MaxBodyRunes int `yaml:"max_body_runes"`
	// MaxThreadDepth bounds the parent chain of a reply.
	MaxThreadDepth int `yaml:"max_thread_depth"`
}

// RateLimitConfig configures the sliding-window send limiter.
type RateLimitConfig struct {
	Window    Duration `yaml:"window"`
	Threshold int      `yaml:"threshold"`
}

// PolicyConfig configures the access policy evaluator.
type PolicyConfig struct {
	AdminBypass bool `yaml:"admin_bypass"`
}

// NotifyConfig controls the fan-out engine and its event queue.
type NotifyConfig struct {
	Workers       int      `yaml:"workers"`
	QueueCapacity int      `yaml:"queue_capacity"`
	MaxRetries    int      `yaml:"max_retries"`
	RetryBackoff  Duration `yaml:"retry_backoff"`
}

// RetentionConfig drives the cron-scheduled sweeper.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	// NotificationMaxAge purges read notifications older than this;
	// zero keeps them indefinitely.
	NotificationMaxAge Duration `yaml:"notification_max_age"`
	DryRun             bool     `yaml:"dry_run"`
}

// SecurityConfig holds HTTP-host security settings.
type SecurityConfig struct {
	// SigningKeys verify the X-User-Signature header on frontend calls.
	SigningKeys []string `yaml:"signing_keys"`
	RateLimit   struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	// MaxRequestBody bounds HTTP request bodies.
	MaxRequestBody SizeBytes `yaml:"max_request_body"`
}

// SizeBytes is a byte count parsed from human-friendly strings like "64MB"
// or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration with YAML parsing from strings like "100ms"
// or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
