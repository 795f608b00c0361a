package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CounterStore is the subset of the session store the guard needs.
type CounterStore interface {
	IncrementAttempts(ctx context.Context, identifier string, ttl time.Duration) (int64, error)
	GetAttempts(ctx context.Context, identifier string) (int64, error)
	AttemptsTTL(ctx context.Context, identifier string) (time.Duration, error)
	ResetAttempts(ctx context.Context, identifiers ...string) error
}

// Config holds lockout thresholds.
type Config struct {
	MaxLoginAttempts int
	MaxIPAttempts    int
	LockoutDuration  time.Duration
}

// DefaultConfig returns 5 attempts per email, 10 per IP and a 15 minute
// lockout.
func DefaultConfig() Config {
	return Config{
		MaxLoginAttempts: 5,
		MaxIPAttempts:    10,
		LockoutDuration:  15 * time.Minute,
	}
}

// Status is a point-in-time view of both counters.
type Status struct {
	EmailAttempts int64
	IPAttempts    int64
	Locked        bool
	RetryAfter    time.Duration
}

// Guard decides whether a login attempt may proceed. It holds no mutable
// state of its own.
type Guard struct {
	store  CounterStore
	config Config
}

// NewGuard creates a [Guard]. Zero fields in cfg fall back to
// [DefaultConfig].
func NewGuard(store CounterStore, cfg Config) *Guard {
	def := DefaultConfig()
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = def.MaxLoginAttempts
	}
	if cfg.MaxIPAttempts <= 0 {
		cfg.MaxIPAttempts = def.MaxIPAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	return &Guard{store: store, config: cfg}
}

// Config returns the effective thresholds.
func (g *Guard) Config() Config {
	return g.config
}

// EmailKey returns the counter identifier for an email. Emails are
// compared case-insensitively.
func EmailKey(email string) string {
	return "email:" + strings.ToLower(strings.TrimSpace(email))
}

// IPKey returns the counter identifier for a client address.
func IPKey(ip string) string {
	return "ip:" + strings.TrimSpace(ip)
}

func (g *Guard) identifiers(email, ip string) []string {
	ids := []string{EmailKey(email)}
	if strings.TrimSpace(ip) != "" {
		ids = append(ids, IPKey(ip))
	}
	return ids
}

// Check returns a [*LockoutError] if attempts(email) >= MaxLoginAttempts or
// attempts(ip) >= MaxIPAttempts. An empty ip skips the IP counter.
func (g *Guard) Check(ctx context.Context, email, ip string) error {
	if err := g.checkOne(ctx, ScopeEmail, EmailKey(email), g.config.MaxLoginAttempts); err != nil {
		return err
	}
	if strings.TrimSpace(ip) == "" {
		return nil
	}
	return g.checkOne(ctx, ScopeIP, IPKey(ip), g.config.MaxIPAttempts)
}

func (g *Guard) checkOne(ctx context.Context, scope Scope, id string, limit int) error {
	count, err := g.store.GetAttempts(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count < int64(limit) {
		return nil
	}
	retry, err := g.store.AttemptsTTL(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if retry <= 0 {
		retry = g.config.LockoutDuration
	}
	return &LockoutError{Scope: scope, Attempts: count, RetryAfter: retry}
}

// RecordFailure increments both counters, each re-armed to LockoutDuration,
// and reports whether either reached its threshold.
func (g *Guard) RecordFailure(ctx context.Context, email, ip string) (bool, error) {
	var errs []error
	locked := false

	count, err := g.store.IncrementAttempts(ctx, EmailKey(email), g.config.LockoutDuration)
	if err != nil {
		errs = append(errs, err)
	} else if count >= int64(g.config.MaxLoginAttempts) {
		locked = true
	}

	if strings.TrimSpace(ip) != "" {
		count, err = g.store.IncrementAttempts(ctx, IPKey(ip), g.config.LockoutDuration)
		if err != nil {
			errs = append(errs, err)
		} else if count >= int64(g.config.MaxIPAttempts) {
			locked = true
		}
	}

	if len(errs) > 0 {
		return locked, fmt.Errorf("%w: %v", ErrUnavailable, errors.Join(errs...))
	}
	return locked, nil
}

// RecordSuccess clears both counters.
func (g *Guard) RecordSuccess(ctx context.Context, email, ip string) error {
	if err := g.store.ResetAttempts(ctx, g.identifiers(email, ip)...); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Status reads both counters without modifying them.
func (g *Guard) Status(ctx context.Context, email, ip string) (Status, error) {
	var st Status
	err := g.Check(ctx, email, ip)
	var lockErr *LockoutError
	switch {
	case errors.As(err, &lockErr):
		st.Locked = true
		st.RetryAfter = lockErr.RetryAfter
	case err != nil:
		return st, err
	}

	st.EmailAttempts, err = g.store.GetAttempts(ctx, EmailKey(email))
	if err != nil {
		return st, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if strings.TrimSpace(ip) != "" {
		st.IPAttempts, err = g.store.GetAttempts(ctx, IPKey(ip))
		if err != nil {
			return st, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return st, nil
}
