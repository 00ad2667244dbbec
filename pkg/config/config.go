// Package config loads the YAML configuration file, applies environment
// overrides, and fills defaults. Flags handled in main win over both.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the file and environment leave a field unset.
const (
	DefaultPort           = 7480
	DefaultDBPath         = "./data"
	DefaultMaxBodyRunes   = 4096
	DefaultMaxThreadDepth = 64
	DefaultRateWindow     = 60 * time.Second
	DefaultRateThreshold  = 5
	DefaultNotifyWorkers  = 2
	DefaultQueueCapacity  = 64 * 1024
	DefaultMaxRetries     = 5
	DefaultRetryBackoff   = 50 * time.Millisecond
	DefaultRetentionCron  = "0 2 * * *"
)

// Load reads the config file at path (optional: empty path or a missing
// file yields pure defaults), applies MSGCORE_* env overrides, and fills
// defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MSGCORE_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MSGCORE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("MSGCORE_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("MSGCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MSGCORE_SIGNING_KEY"); v != "" {
		cfg.Security.SigningKeys = append(cfg.Security.SigningKeys, v)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.DBPath == "" {
		cfg.Server.DBPath = DefaultDBPath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Limits.MaxBodyRunes <= 0 {
		cfg.Limits.MaxBodyRunes = DefaultMaxBodyRunes
	}
	if cfg.Limits.MaxThreadDepth <= 0 {
		cfg.Limits.MaxThreadDepth = DefaultMaxThreadDepth
	}
	if cfg.RateLimit.Window.Duration() <= 0 {
		cfg.RateLimit.Window = Duration(DefaultRateWindow)
	}
	if cfg.RateLimit.Threshold <= 0 {
		cfg.RateLimit.Threshold = DefaultRateThreshold
	}
	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = DefaultNotifyWorkers
	}
	if cfg.Notify.QueueCapacity <= 0 {
		cfg.Notify.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.Notify.MaxRetries <= 0 {
		cfg.Notify.MaxRetries = DefaultMaxRetries
	}
	if cfg.Notify.RetryBackoff.Duration() <= 0 {
		cfg.Notify.RetryBackoff = Duration(DefaultRetryBackoff)
	}
	if cfg.Retention.Cron == "" {
		cfg.Retention.Cron = DefaultRetentionCron
	}
	if cfg.Security.RateLimit.RPS <= 0 {
		cfg.Security.RateLimit.RPS = 25
	}
	if cfg.Security.RateLimit.Burst <= 0 {
		cfg.Security.RateLimit.Burst = 50
	}
	if cfg.Security.MaxRequestBody <= 0 {
		cfg.Security.MaxRequestBody = 1 << 20
	}
}
