package sessionauth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/sessionauth/internal/audit"
	"github.com/rs/zerolog"
)

// Identity is the read-only account view supplied by a [UserStore].
type Identity struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         string
	Active       bool
}

// UserStore is implemented by the host application. FindByEmail and
// FindByID return (nil, nil) when no such identity exists; a non-nil error
// means the lookup itself failed.
//
//	Implementations: userstore.Memory, userstore.Postgres
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
	ValidatePassword(plain, hash string) bool
}

// LoginRequest is the input to [Engine.Login]. IP and UserAgent fall back
// to the values attached with [WithClientIP] and [WithUserAgent].
type LoginRequest struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// TokenPair is returned by login and refresh. ExpiresIn is the access
// token lifetime in seconds.
type TokenPair struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	RefreshTokenID string `json:"refresh_token_id"`
	ExpiresIn      int64  `json:"expires_in"`
	TokenType      string `json:"token_type"`
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	Identity Identity
	Tokens   TokenPair
}

// LogoutRequest is the input to [Engine.Logout]. An empty RefreshTokenID
// signs the subject out on every device.
type LogoutRequest struct {
	SubjectID      string
	AccessToken    string
	RefreshTokenID string
}

// Principal is the authenticated caller produced by [Engine.Authenticate].
type Principal struct {
	SubjectID string
	Email     string
	Username  string
	Role      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// LockoutStatus is a read-only view of the brute-force counters.
type LockoutStatus struct {
	EmailAttempts int64
	IPAttempts    int64
	Locked        bool
	RetryAfter    time.Duration
}

// HealthStatus reports store reachability.
type HealthStatus struct {
	Available bool
	Latency   time.Duration
	Err       error
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// LoggerSink writes events through a zerolog logger.
type LoggerSink = internalaudit.LoggerSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLoggerSink creates a [LoggerSink] on logger.
func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return internalaudit.NewLoggerSink(logger)
}
