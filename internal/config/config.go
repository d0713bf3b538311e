// Package config loads and validates auditor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Service  ServiceConfig  `mapstructure:"service"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Poll     PollConfig     `mapstructure:"poll"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the operational HTTP surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ServiceConfig points at the remote analysis service.
type ServiceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout converts the per-request timeout into a duration.
func (c ServiceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DispatchConfig governs session fan-out.
type DispatchConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// PollConfig governs the backoff polling loop.
type PollConfig struct {
	InitialDelayMs int     `mapstructure:"initial_delay_ms"`
	Factor         float64 `mapstructure:"factor"`
	MaxDelayMs     int     `mapstructure:"max_delay_ms"`
	BudgetSeconds  int     `mapstructure:"budget_seconds"`
}

// InitialDelay converts the initial poll delay into a duration.
func (c PollConfig) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMs) * time.Millisecond
}

// MaxDelay converts the poll delay cap into a duration.
func (c PollConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// Budget converts the total poll budget into a duration.
func (c PollConfig) Budget() time.Duration {
	return time.Duration(c.BudgetSeconds) * time.Second
}

// ShutdownConfig bounds graceful shutdown latency.
type ShutdownConfig struct {
	GraceSeconds int `mapstructure:"grace_seconds"`
}

// Grace converts the shutdown grace period into a duration.
func (c ShutdownConfig) Grace() time.Duration {
	return time.Duration(c.GraceSeconds) * time.Second
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUDITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("service.timeout_seconds", 30)
	v.SetDefault("dispatch.max_concurrency", 10)
	v.SetDefault("poll.initial_delay_ms", 500)
	v.SetDefault("poll.factor", 1.5)
	v.SetDefault("poll.max_delay_ms", 5000)
	v.SetDefault("poll.budget_seconds", 180)
	v.SetDefault("shutdown.grace_seconds", 10)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Service.BaseURL == "" {
		return fmt.Errorf("service.base_url is required")
	}
	if c.Service.TimeoutSeconds <= 0 {
		return fmt.Errorf("service.timeout_seconds must be > 0")
	}
	if c.Dispatch.MaxConcurrency < 0 {
		return fmt.Errorf("dispatch.max_concurrency must be >= 0")
	}
	if c.Poll.InitialDelayMs <= 0 {
		return fmt.Errorf("poll.initial_delay_ms must be > 0")
	}
	if c.Poll.Factor <= 1 {
		return fmt.Errorf("poll.factor must be > 1")
	}
	if c.Poll.MaxDelayMs < c.Poll.InitialDelayMs {
		return fmt.Errorf("poll.max_delay_ms must be >= poll.initial_delay_ms")
	}
	if c.Poll.BudgetSeconds <= 0 {
		return fmt.Errorf("poll.budget_seconds must be > 0")
	}
	if c.Shutdown.GraceSeconds <= 0 {
		return fmt.Errorf("shutdown.grace_seconds must be > 0")
	}
	return nil
}
