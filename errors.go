package sessionauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLockedOut is returned by Login while either brute-force counter is
	// at its threshold.
	ErrLockedOut = errors.New("too many failed login attempts")
	// ErrInvalidCredentials covers unknown email, wrong password and
	// inactive subject alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSubjectInactive is never returned to callers; it is the internal
	// reason recorded in logs and audit events.
	ErrSubjectInactive = errors.New("subject inactive")
	ErrNoToken         = errors.New("no token presented")
	ErrTokenExpired    = errors.New("token expired")
	ErrTokenMalformed  = errors.New("token malformed")
	ErrTokenRevoked    = errors.New("token revoked")
	// ErrTokenNotYetValid covers nbf/iat in the future beyond leeway.
	ErrTokenNotYetValid = errors.New("token not yet valid")
	// ErrStoreUnavailable is retryable.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrInvalidRequest carries field-level detail in [AuthError.Fields].
	ErrInvalidRequest = errors.New("invalid request")
	ErrEngineNotReady = errors.New("engine not initialized")
	ErrInternal       = errors.New("internal error")
)

// Kind is the coarse error category exposed to transports.
type Kind string

const (
	KindLockedOut          Kind = "locked_out"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindNoToken            Kind = "no_token"
	KindTokenExpired       Kind = "token_expired"
	KindTokenMalformed     Kind = "token_malformed"
	KindTokenRevoked       Kind = "token_revoked"
	KindTokenNotYetValid   Kind = "token_not_yet_valid"
	KindStoreUnavailable   Kind = "store_unavailable"
	KindInvalidRequest     Kind = "invalid_request"
	KindInternal           Kind = "internal"
)

// Action tells the client what to do next after a token failure.
type Action string

const (
	ActionNone          Action = ""
	ActionRefreshToken  Action = "REFRESH_TOKEN"
	ActionLoginRequired Action = "LOGIN_REQUIRED"
	ActionRetryLater    Action = "RETRY_LATER"
	ActionFixRequest    Action = "FIX_REQUEST"
)

// AuthError is the structured error returned by every Engine operation.
// It unwraps to one of the package sentinels, so errors.Is keeps working.
//
// Detail is for logs only and must not be sent to clients.
type AuthError struct {
	Kind       Kind
	Err        error
	Detail     string
	Action     Action
	RetryAfter time.Duration
	Retryable  bool
	Fields     map[string]string
}

func (e *AuthError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Detail)
}

func (e *AuthError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PublicMessage is the text safe to show an end user.
func (e *AuthError) PublicMessage() string {
	if e == nil || e.Err == nil {
		return ErrInternal.Error()
	}
	return e.Err.Error()
}

func newAuthError(kind Kind, sentinel error, detail string) *AuthError {
	e := &AuthError{Kind: kind, Err: sentinel, Detail: detail}
	switch kind {
	case KindTokenExpired:
		e.Action = ActionRefreshToken
	case KindNoToken, KindTokenMalformed, KindTokenRevoked, KindTokenNotYetValid, KindInvalidCredentials:
		e.Action = ActionLoginRequired
	case KindStoreUnavailable:
		e.Action = ActionRetryLater
		e.Retryable = true
	case KindLockedOut:
		e.Action = ActionRetryLater
	case KindInvalidRequest:
		e.Action = ActionFixRequest
	}
	return e
}

func lockedOutError(retryAfter time.Duration) *AuthError {
	e := newAuthError(KindLockedOut, ErrLockedOut, "")
	e.RetryAfter = retryAfter
	return e
}

func invalidRequestError(fields map[string]string) *AuthError {
	e := newAuthError(KindInvalidRequest, ErrInvalidRequest, "")
	e.Fields = fields
	return e
}

func storeUnavailableError(err error) *AuthError {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return newAuthError(KindStoreUnavailable, ErrStoreUnavailable, detail)
}

// AsAuthError extracts the *AuthError from err, if any.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// ActionFor returns the client action hint for err.
func ActionFor(err error) Action {
	if ae, ok := AsAuthError(err); ok {
		return ae.Action
	}
	return ActionNone
}
