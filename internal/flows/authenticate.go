package flows

import (
	"context"

	"github.com/MrEthical07/sessionauth/jwt"
)

// AuthenticateFailureKind classifies request-time authentication failures.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureNoToken
	AuthenticateFailureVerify
	AuthenticateFailureRevoked
	AuthenticateFailureStoreUnavailable
)

// AuthenticateResult returns either the verified claims or a classified
// failure.
type AuthenticateResult struct {
	Failure AuthenticateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
	// FailedOpen is set when the blacklist could not be read and the
	// request was admitted anyway.
	FailedOpen bool
}

// BlacklistReader answers the revocation question.
type BlacklistReader interface {
	IsBlacklisted(ctx context.Context, tokenKey string) (bool, error)
}

// AuthenticateDeps captures request-time validation dependencies.
type AuthenticateDeps struct {
	VerifyAccess func(string) (*jwt.AccessClaims, error)
	Digest       func(string) string
	Sessions     BlacklistReader
	// FailOpen admits verified tokens when the blacklist read fails.
	FailOpen bool
}

// RunAuthenticate verifies the token and checks the blacklist. A fresh,
// non-revoked token costs exactly one store round trip.
func RunAuthenticate(ctx context.Context, token string, deps AuthenticateDeps) AuthenticateResult {
	if token == "" {
		return AuthenticateResult{Failure: AuthenticateFailureNoToken}
	}

	claims, err := deps.VerifyAccess(token)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureVerify, Err: err}
	}

	revoked, err := deps.Sessions.IsBlacklisted(ctx, deps.Digest(token))
	if err != nil {
		if deps.FailOpen {
			return AuthenticateResult{Claims: claims, Err: err, FailedOpen: true}
		}
		return AuthenticateResult{Failure: AuthenticateFailureStoreUnavailable, Err: err, Claims: claims}
	}
	if revoked {
		return AuthenticateResult{Failure: AuthenticateFailureRevoked, Claims: claims}
	}
	return AuthenticateResult{Claims: claims}
}
