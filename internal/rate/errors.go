package rate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLockedOut is returned by [Guard.Check] when either counter is at or
	// above its threshold.
	ErrLockedOut = errors.New("too many failed login attempts")
	// ErrUnavailable wraps counter backend failures.
	ErrUnavailable = errors.New("attempt counter unavailable")
)

// Scope names the counter that triggered a lockout.
type Scope string

const (
	ScopeEmail Scope = "email"
	ScopeIP    Scope = "ip"
)

// LockoutError carries how long the caller should wait before retrying.
// It unwraps to [ErrLockedOut].
type LockoutError struct {
	Scope      Scope
	Attempts   int64
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("%s: %s locked for %s", ErrLockedOut, e.Scope, e.RetryAfter.Round(time.Second))
}

func (e *LockoutError) Unwrap() error { return ErrLockedOut }
