package main

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/goccy/go-yaml"
)

// Config is the server configuration, loaded from an optional YAML
// file and overridden by WEBX_* environment variables.
type Config struct {
	Addr     string `yaml:"addr" env:"WEBX_ADDR"`
	LogLevel string `yaml:"log_level" env:"WEBX_LOG_LEVEL"`

	ReadTimeout  time.Duration `yaml:"read_timeout" env:"WEBX_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WEBX_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"WEBX_IDLE_TIMEOUT"`

	MaxHeaderBytes int   `yaml:"max_header_bytes" env:"WEBX_MAX_HEADER_BYTES"`
	MaxBodyBytes   int64 `yaml:"max_body_bytes" env:"WEBX_MAX_BODY_BYTES"`

	// StaticDir, when set, is mounted under /static.
	StaticDir string `yaml:"static_dir" env:"WEBX_STATIC_DIR"`

	// RatePerSecond caps requests per client address; 0 disables the
	// limiter.
	RatePerSecond float64 `yaml:"rate_per_second" env:"WEBX_RATE_PER_SECOND"`
	RateBurst     int     `yaml:"rate_burst" env:"WEBX_RATE_BURST"`

	// AdminUser/AdminPass guard the /admin routes when both are set.
	AdminUser string `yaml:"admin_user" env:"WEBX_ADMIN_USER"`
	AdminPass string `yaml:"admin_pass" env:"WEBX_ADMIN_PASS"`
}

// loadConfig layers the configuration: YAML file when present, then
// environment overrides, then defaults for whatever is still unset.
func loadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, errors.Wrapf(err, "read config %s", path)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "parse environment")
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.RateBurst == 0 {
		c.RateBurst = 10
	}
}
