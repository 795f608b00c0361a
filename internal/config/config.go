// Package config loads authd settings from the environment and an
// optional .env file using Viper.
package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/MrEthical07/sessionauth"
	"github.com/spf13/viper"
)

// Config holds daemon settings. Engine settings are mapped onto a
// sessionauth.Config by [Config.Engine].
type Config struct {
	// HTTPAddr is the listen address, e.g. ":8080".
	HTTPAddr string `mapstructure:"SESSIONAUTH_HTTP_ADDR"`
	// Dev runs against an in-process Redis and the memory user store.
	Dev bool `mapstructure:"SESSIONAUTH_DEV"`
	// LogFormat is "json" or "console".
	LogFormat string `mapstructure:"SESSIONAUTH_LOG_FORMAT"`
	LogLevel  string `mapstructure:"SESSIONAUTH_LOG_LEVEL"`

	RedisAddr     string `mapstructure:"SESSIONAUTH_REDIS_ADDR"`
	RedisPassword string `mapstructure:"SESSIONAUTH_REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"SESSIONAUTH_REDIS_DB"`
	// DatabaseURL is the Postgres DSN for the users table. Required unless Dev.
	DatabaseURL string `mapstructure:"SESSIONAUTH_DATABASE_URL"`

	SigningMethod string `mapstructure:"SESSIONAUTH_JWT_SIGNING_METHOD"`
	ActiveKeyID   string `mapstructure:"SESSIONAUTH_JWT_ACTIVE_KEY_ID"`
	// SigningKey is base64: an Ed25519 seed or private key, or an HS256 secret.
	SigningKey string        `mapstructure:"SESSIONAUTH_JWT_SIGNING_KEY"`
	Issuer     string        `mapstructure:"SESSIONAUTH_JWT_ISSUER"`
	Audience   string        `mapstructure:"SESSIONAUTH_JWT_AUDIENCE"`
	AccessTTL  time.Duration `mapstructure:"SESSIONAUTH_JWT_ACCESS_TTL"`
	RefreshTTL time.Duration `mapstructure:"SESSIONAUTH_JWT_REFRESH_TTL"`
	Leeway     time.Duration `mapstructure:"SESSIONAUTH_JWT_LEEWAY"`

	MaxLoginAttempts int           `mapstructure:"SESSIONAUTH_LOCKOUT_MAX_LOGIN_ATTEMPTS"`
	MaxIPAttempts    int           `mapstructure:"SESSIONAUTH_LOCKOUT_MAX_IP_ATTEMPTS"`
	LockoutDuration  time.Duration `mapstructure:"SESSIONAUTH_LOCKOUT_DURATION"`

	KeyPrefix        string        `mapstructure:"SESSIONAUTH_STORE_KEY_PREFIX"`
	OperationTimeout time.Duration `mapstructure:"SESSIONAUTH_STORE_OPERATION_TIMEOUT"`

	FailOpen         bool `mapstructure:"SESSIONAUTH_FAIL_OPEN"`
	ProductionMode   bool `mapstructure:"SESSIONAUTH_PRODUCTION_MODE"`
	AuditEnabled     bool `mapstructure:"SESSIONAUTH_AUDIT_ENABLED"`
	LatencyHistogram bool `mapstructure:"SESSIONAUTH_METRICS_LATENCY"`
}

// Load reads envFile (".env" when empty) if present, then the
// environment. Environment variables override the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}

	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}

	v.AutomaticEnv()

	base := sessionauth.DefaultConfig()
	v.SetDefault("SESSIONAUTH_HTTP_ADDR", ":8080")
	v.SetDefault("SESSIONAUTH_DEV", false)
	v.SetDefault("SESSIONAUTH_LOG_FORMAT", "json")
	v.SetDefault("SESSIONAUTH_LOG_LEVEL", "info")
	v.SetDefault("SESSIONAUTH_REDIS_ADDR", "localhost:6379")
	v.SetDefault("SESSIONAUTH_REDIS_PASSWORD", "")
	v.SetDefault("SESSIONAUTH_REDIS_DB", 0)
	v.SetDefault("SESSIONAUTH_DATABASE_URL", "")
	v.SetDefault("SESSIONAUTH_JWT_SIGNING_METHOD", base.JWT.SigningMethod)
	v.SetDefault("SESSIONAUTH_JWT_ACTIVE_KEY_ID", base.JWT.ActiveKeyID)
	v.SetDefault("SESSIONAUTH_JWT_SIGNING_KEY", "")
	v.SetDefault("SESSIONAUTH_JWT_ISSUER", "")
	v.SetDefault("SESSIONAUTH_JWT_AUDIENCE", "")
	v.SetDefault("SESSIONAUTH_JWT_ACCESS_TTL", base.JWT.AccessTTL)
	v.SetDefault("SESSIONAUTH_JWT_REFRESH_TTL", base.JWT.RefreshTTL)
	v.SetDefault("SESSIONAUTH_JWT_LEEWAY", base.JWT.Leeway)
	v.SetDefault("SESSIONAUTH_LOCKOUT_MAX_LOGIN_ATTEMPTS", base.Lockout.MaxLoginAttempts)
	v.SetDefault("SESSIONAUTH_LOCKOUT_MAX_IP_ATTEMPTS", base.Lockout.MaxIPAttempts)
	v.SetDefault("SESSIONAUTH_LOCKOUT_DURATION", base.Lockout.LockoutDuration)
	v.SetDefault("SESSIONAUTH_STORE_KEY_PREFIX", base.Store.KeyPrefix)
	v.SetDefault("SESSIONAUTH_STORE_OPERATION_TIMEOUT", base.Store.OperationTimeout)
	v.SetDefault("SESSIONAUTH_FAIL_OPEN", base.Security.FailOpenOnStoreOutage)
	v.SetDefault("SESSIONAUTH_PRODUCTION_MODE", false)
	v.SetDefault("SESSIONAUTH_AUDIT_ENABLED", true)
	v.SetDefault("SESSIONAUTH_METRICS_LATENCY", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: SESSIONAUTH_HTTP_ADDR must be set")
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return nil, fmt.Errorf("config: SESSIONAUTH_LOG_FORMAT must be json or console, got %q", cfg.LogFormat)
	}
	if !cfg.Dev && cfg.DatabaseURL == "" {
		return nil, errors.New("config: SESSIONAUTH_DATABASE_URL must be set outside dev mode")
	}
	if !cfg.Dev && cfg.SigningKey == "" {
		return nil, errors.New("config: SESSIONAUTH_JWT_SIGNING_KEY must be set outside dev mode")
	}
	if cfg.Dev && cfg.ProductionMode {
		return nil, errors.New("config: SESSIONAUTH_DEV must not be combined with SESSIONAUTH_PRODUCTION_MODE")
	}

	return &cfg, nil
}

// Engine maps the settings onto a validated sessionauth.Config. In dev
// mode without a signing key an ephemeral Ed25519 key is generated, so
// tokens do not survive a restart.
func (c *Config) Engine() (sessionauth.Config, error) {
	out := sessionauth.DefaultConfig()
	out.JWT.SigningMethod = strings.ToLower(c.SigningMethod)
	out.JWT.ActiveKeyID = c.ActiveKeyID
	out.JWT.Issuer = c.Issuer
	out.JWT.Audience = c.Audience
	out.JWT.AccessTTL = c.AccessTTL
	out.JWT.RefreshTTL = c.RefreshTTL
	out.JWT.Leeway = c.Leeway
	out.Lockout = sessionauth.LockoutConfig{
		MaxLoginAttempts: c.MaxLoginAttempts,
		MaxIPAttempts:    c.MaxIPAttempts,
		LockoutDuration:  c.LockoutDuration,
	}
	out.Store = sessionauth.StoreConfig{
		KeyPrefix:        c.KeyPrefix,
		OperationTimeout: c.OperationTimeout,
	}
	out.Security.FailOpenOnStoreOutage = c.FailOpen
	out.Security.ProductionMode = c.ProductionMode
	out.Audit.Enabled = c.AuditEnabled
	out.Metrics.EnableLatencyHistograms = c.LatencyHistogram

	key, err := c.signingKey(out.JWT.SigningMethod)
	if err != nil {
		return sessionauth.Config{}, err
	}
	out.JWT.SigningKeys = map[string][]byte{out.JWT.ActiveKeyID: key}

	if err := out.Validate(); err != nil {
		return sessionauth.Config{}, fmt.Errorf("config: %w", err)
	}
	return out, nil
}

func (c *Config) signingKey(method string) ([]byte, error) {
	if c.SigningKey == "" {
		if !c.Dev {
			return nil, errors.New("config: signing key required")
		}
		if method == "hs256" {
			secret := make([]byte, 64)
			if _, err := rand.Read(secret); err != nil {
				return nil, err
			}
			return secret, nil
		}
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return priv, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.SigningKey))
	if err != nil {
		return nil, fmt.Errorf("config: SESSIONAUTH_JWT_SIGNING_KEY is not base64: %w", err)
	}
	if method == "hs256" {
		return raw, nil
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return raw, nil
	default:
		return nil, fmt.Errorf("config: ed25519 key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}
