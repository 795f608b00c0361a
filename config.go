package sessionauth

import (
	"errors"
	"strings"
	"time"
)

// Config is the full engine configuration. Build it from [DefaultConfig]
// and pass it to [Builder.WithConfig]; it is copied and treated as
// immutable after Build.
type Config struct {
	JWT      JWTConfig
	Lockout  LockoutConfig
	Store    StoreConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and lifetimes.
//
// SigningKeys maps key IDs to signing material; ActiveKeyID selects the key
// used for new tokens. PublicKeys holds extra verification-only keys
// (Ed25519) so tokens signed by a retired key stay valid until they expire.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	ActiveKeyID   string
	SigningKeys   map[string][]byte
	PublicKeys    map[string][]byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig holds brute-force thresholds. Counters slide: each failure
// re-arms the window to LockoutDuration.
type LockoutConfig struct {
	MaxLoginAttempts int
	MaxIPAttempts    int
	LockoutDuration  time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig controls Redis key namespacing and per-call deadlines.
type StoreConfig struct {
	KeyPrefix        string
	OperationTimeout time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds explicit security trade-offs.
type SecurityConfig struct {
	// FailOpenOnStoreOutage admits verified access tokens when the blacklist
	// cannot be read. Revoked tokens are accepted while the store is down.
	FailOpenOnStoreOutage bool
	// ProductionMode rejects HS256 secrets shorter than 64 bytes and
	// requires an issuer.
	ProductionMode bool
}

// AuditConfig controls the async audit dispatcher. DropIfFull applies to
// routine events only; lockout, logout-all, revocation and fail-open
// events always wait for buffer space.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			ActiveKeyID:   "default",
			Leeway:        5 * time.Second,
		},
		Lockout: LockoutConfig{
			MaxLoginAttempts: 5,
			MaxIPAttempts:    10,
			LockoutDuration:  15 * time.Minute,
		},
		Store: StoreConfig{
			KeyPrefix:        "sa",
			OperationTimeout: 250 * time.Millisecond,
		},
		Security: SecurityConfig{
			FailOpenOnStoreOutage: false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns a production-leaning baseline. Signing keys must
// still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SigningKeys = cloneKeyMap(cfg.JWT.SigningKeys)
	out.JWT.PublicKeys = cloneKeyMap(cfg.JWT.PublicKeys)
	return out
}

func cloneKeyMap(in map[string][]byte) map[string][]byte {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(in))
	for kid, b := range in {
		out[kid] = cloneBytes(b)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks bounds and cross-field consistency. It does not parse key
// material; that happens when the token manager is built.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}

	method := strings.ToLower(c.JWT.SigningMethod)
	if method != "ed25519" && method != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.ActiveKeyID == "" {
		return errors.New("JWT ActiveKeyID must be set")
	}
	if len(c.JWT.SigningKeys[c.JWT.ActiveKeyID]) == 0 {
		return errors.New("JWT SigningKeys must contain ActiveKeyID")
	}
	if method == "hs256" && len(c.JWT.PublicKeys) > 0 {
		return errors.New("JWT PublicKeys are only valid with ed25519")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Lockout
	if c.Lockout.MaxLoginAttempts <= 0 {
		return errors.New("Lockout MaxLoginAttempts must be > 0")
	}
	if c.Lockout.MaxIPAttempts <= 0 {
		return errors.New("Lockout MaxIPAttempts must be > 0")
	}
	if c.Lockout.MaxIPAttempts < c.Lockout.MaxLoginAttempts {
		return errors.New("Lockout MaxIPAttempts must be >= MaxLoginAttempts")
	}
	if c.Lockout.LockoutDuration <= 0 {
		return errors.New("Lockout LockoutDuration must be > 0")
	}

	// Store
	if strings.TrimSpace(c.Store.KeyPrefix) == "" {
		return errors.New("Store KeyPrefix must be set")
	}
	if strings.ContainsAny(c.Store.KeyPrefix, " \t\n") {
		return errors.New("Store KeyPrefix must not contain whitespace")
	}
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Production
	if c.Security.ProductionMode {
		if c.JWT.Issuer == "" {
			return errors.New("JWT Issuer is required in production mode")
		}
		if method == "hs256" {
			for kid, key := range c.JWT.SigningKeys {
				if len(key) < 64 {
					return errors.New("hs256 key " + kid + " must be >= 64 bytes in production mode")
				}
			}
		}
		if c.Security.FailOpenOnStoreOutage {
			return errors.New("FailOpenOnStoreOutage is not allowed in production mode")
		}
	}

	return nil
}
