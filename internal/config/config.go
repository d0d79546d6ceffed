// Package config loads server configuration from a YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Stream   StreamConfig   `yaml:"stream"`
	Limiter  LimiterConfig  `yaml:"limiter"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"THERMO_ADDR"`
	OpsAddr         string        `yaml:"ops_addr" env:"THERMO_OPS_ADDR"` // gRPC health; empty disables
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec" env:"THERMO_RATE_LIMIT_PER_SEC"`
	RateBurst       int           `yaml:"rate_burst" env:"THERMO_RATE_BURST"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"THERMO_CORS_ORIGINS"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"THERMO_SHUTDOWN_TIMEOUT"`
	TLSCert         string        `yaml:"tls_cert" env:"THERMO_TLS_CERT"` // both set enables TLS on every listener
	TLSKey          string        `yaml:"tls_key" env:"THERMO_TLS_KEY"`
}

// TLSEnabled reports whether a certificate pair is configured.
func (s ServerConfig) TLSEnabled() bool { return s.TLSCert != "" && s.TLSKey != "" }

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"THERMO_DB_DRIVER"` // postgres | sqlite
	DSN      string `yaml:"dsn" env:"THERMO_DB_DSN"`       // sqlite: file path or :memory:
	MaxConns int32  `yaml:"max_conns" env:"THERMO_DB_MAX_CONNS"`
}

// AuthConfig holds token and handshake settings. Secret, algorithm and TTL
// have no defaults.
type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret" env:"THERMO_JWT_SECRET"`
	JWTAlgorithm string        `yaml:"jwt_algorithm" env:"THERMO_JWT_ALGORITHM"`
	TokenTTL     time.Duration `yaml:"token_ttl" env:"THERMO_TOKEN_TTL"`
	ChallengeTTL time.Duration `yaml:"challenge_ttl" env:"THERMO_CHALLENGE_TTL"`
}

// StreamConfig tunes the live report stream.
type StreamConfig struct {
	Lookback      time.Duration `yaml:"lookback" env:"THERMO_STREAM_LOOKBACK"`
	InboxCapacity int           `yaml:"inbox_capacity" env:"THERMO_STREAM_INBOX"`
	KeepAlive     time.Duration `yaml:"keep_alive" env:"THERMO_STREAM_KEEPALIVE"`
}

// LimiterConfig holds login lockout thresholds.
type LimiterConfig struct {
	Window   time.Duration `yaml:"window" env:"THERMO_LIMITER_WINDOW"`
	MaxFails int           `yaml:"max_fails" env:"THERMO_LIMITER_MAX_FAILS"`
	BlockFor time.Duration `yaml:"block_for" env:"THERMO_LIMITER_BLOCK_FOR"`
}

// LogConfig selects the zap preset.
type LogConfig struct {
	Development bool   `yaml:"development" env:"THERMO_LOG_DEVELOPMENT"`
	Level       string `yaml:"level" env:"THERMO_LOG_LEVEL"`
}

// AdminConfig bootstraps an administrator on startup when both fields are set.
type AdminConfig struct {
	Email    string `yaml:"email" env:"THERMO_ADMIN_EMAIL"`
	Password string `yaml:"password" env:"THERMO_ADMIN_PASSWORD"`
}

// Default returns a Config with every non-security knob set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimitPerSec: 20,
			RateBurst:       40,
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Driver: "postgres", MaxConns: 10},
		Auth:     AuthConfig{ChallengeTTL: 5 * time.Minute},
		Stream: StreamConfig{
			Lookback:      10 * time.Minute,
			InboxCapacity: 64,
			KeepAlive:     15 * time.Second,
		},
		Limiter: LimiterConfig{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute},
		Log:     LogConfig{Level: "info"},
	}
}

// Load applies defaults, then the YAML file at path (if non-empty), then
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails on missing security settings or inconsistent values.
func (c *Config) Validate() error {
	var problems []error
	if c.Auth.JWTSecret == "" {
		problems = append(problems, errors.New("auth.jwt_secret is required"))
	}
	switch c.Auth.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		problems = append(problems, fmt.Errorf("auth.jwt_algorithm %q is not one of HS256, HS384, HS512", c.Auth.JWTAlgorithm))
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, errors.New("auth.token_ttl must be a positive duration"))
	}
	if c.Auth.ChallengeTTL <= 0 {
		problems = append(problems, errors.New("auth.challenge_ttl must be a positive duration"))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Errorf("database.driver %q is not postgres or sqlite", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		problems = append(problems, errors.New("database.dsn is required"))
	}
	if c.Stream.InboxCapacity <= 0 {
		problems = append(problems, errors.New("stream.inbox_capacity must be positive"))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		problems = append(problems, errors.New("server.tls_cert and server.tls_key must be set together"))
	}
	if c.Limiter.MaxFails <= 0 {
		problems = append(problems, errors.New("limiter.max_fails must be positive"))
	}
	return errors.Join(problems...)
}
