// Package config provides Viper-based configuration loading for the matchmaker.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// HTTPConfig holds settings for the HTTP API listener.
type HTTPConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`
	// Port is the TCP port.
	Port int `mapstructure:"port"`
	// ReadTimeout bounds reading a full request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// MatcherConfig holds matching pass settings.
type MatcherConfig struct {
	// Interval is the delay between scheduled passes.
	Interval time.Duration `mapstructure:"interval"`
	// GameDuration is the active window of newly created sessions.
	GameDuration time.Duration `mapstructure:"game_duration"`
}

// Lock backends.
const (
	LockNone     = "none"
	LockPostgres = "postgres"
	LockRedis    = "redis"
)

// LockConfig selects how concurrent matcher instances are excluded.
type LockConfig struct {
	// Backend is one of "none", "postgres", or "redis".
	Backend string `mapstructure:"backend"`
	// Key names the lock. For postgres it is hashed into an advisory lock id.
	Key string `mapstructure:"key"`
	// TTL bounds how long a redis lock survives a crashed holder.
	TTL time.Duration `mapstructure:"ttl"`
}

// RedisConfig holds Redis connection settings used by the redis lock backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LatencyConfig holds the bucket edges mapping milliseconds to latency levels.
type LatencyConfig struct {
	// ThresholdsMs are the ascending upper bounds of levels 1 to 4.
	ThresholdsMs []int `mapstructure:"thresholds_ms"`
}

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Matcher  MatcherConfig  `mapstructure:"matcher"`
	Lock     LockConfig     `mapstructure:"lock"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Latency  LatencyConfig  `mapstructure:"latency"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	validators := []func() error{
		func() error { return validateDatabase(c.Database) },
		func() error { return validateHTTP(c.HTTP) },
		func() error { return validateLogging(c.Logging) },
		func() error { return validateMatcher(c.Matcher) },
		func() error { return validateLock(c.Lock, c.Redis) },
		func() error { return validateLatency(c.Latency) },
	}
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if h.Port < 1 || h.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be 1-65535, got %d", h.Port))
	}
	if h.ReadTimeout < 0 {
		errs = append(errs, "http.read_timeout must not be negative")
	}
	if h.WriteTimeout < 0 {
		errs = append(errs, "http.write_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateMatcher(m MatcherConfig) error {
	var errs []string
	if m.Interval <= 0 {
		errs = append(errs, fmt.Sprintf("matcher.interval must be > 0, got %s", m.Interval))
	}
	if m.GameDuration <= 0 {
		errs = append(errs, fmt.Sprintf("matcher.game_duration must be > 0, got %s", m.GameDuration))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLock(l LockConfig, r RedisConfig) error {
	switch l.Backend {
	case LockNone:
		return nil
	case LockPostgres:
	case LockRedis:
		if r.Addr == "" {
			return errors.New("redis.addr must not be empty when lock.backend is redis")
		}
		if l.TTL <= 0 {
			return fmt.Errorf("lock.ttl must be > 0 for the redis backend, got %s", l.TTL)
		}
	default:
		return fmt.Errorf("lock.backend must be one of [none, postgres, redis], got %q", l.Backend)
	}
	if l.Key == "" {
		return errors.New("lock.key must not be empty")
	}
	return nil
}

func validateLatency(l LatencyConfig) error {
	if len(l.ThresholdsMs) != 4 {
		return fmt.Errorf("latency.thresholds_ms must hold 4 values, got %d", len(l.ThresholdsMs))
	}
	for i, t := range l.ThresholdsMs {
		if t < 0 || (i > 0 && t <= l.ThresholdsMs[i-1]) {
			return fmt.Errorf("latency.thresholds_ms must be ascending and non-negative, got %v", l.ThresholdsMs)
		}
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with MATCH_ prefix
	v.SetEnvPrefix("MATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the default settings.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "matchmaker")
	v.SetDefault("database.password", "matchmaker")
	v.SetDefault("database.name", "matchmaker")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("matcher.interval", "10s")
	v.SetDefault("matcher.game_duration", "30m")

	v.SetDefault("lock.backend", LockPostgres)
	v.SetDefault("lock.key", "matchmaker:run")
	v.SetDefault("lock.ttl", "2m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("latency.thresholds_ms", []int{50, 100, 150, 250})
}
