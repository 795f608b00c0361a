package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/sessionauth/jwt"
)

// LogoutFailureKind classifies logout failures.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureInvalidRequest
	LogoutFailureMalformed
	LogoutFailureSubjectMismatch
	LogoutFailureBlacklist
	LogoutFailureRemoveRefresh
)

// LogoutInput is the flow-local logout request. An empty RefreshTokenID
// signs the subject out of every device.
type LogoutInput struct {
	SubjectID      string
	AccessToken    string
	RefreshTokenID string
}

// LogoutResult reports what logout revoked.
type LogoutResult struct {
	Failure LogoutFailureKind
	Err     error

	SubjectID string
	// Blacklisted is false when the access token was already past expiry
	// plus leeway.
	Blacklisted    bool
	BlacklistTTL   time.Duration
	AllDevices     bool
	RemovedRefresh int
}

// LogoutSessionStore is the revocation surface logout needs.
type LogoutSessionStore interface {
	Blacklist(ctx context.Context, tokenKey string, ttl time.Duration) error
	RemoveRefresh(ctx context.Context, subjectID, tokenID string) error
	RemoveAllRefresh(ctx context.Context, subjectID string) (int, error)
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	// Decode reads claims without verifying; it only feeds the blacklist
	// TTL and the subject cross-check.
	Decode func(string) (*jwt.AccessClaims, error)
	Digest func(string) string
	Now    func() time.Time
	// Leeway is the clock skew access verification tolerates past exp.
	Leeway   time.Duration
	Sessions LogoutSessionStore
}

// RunLogout blacklists the access token for as long as verification would
// still accept it, then removes one refresh entry or all of them.
func RunLogout(ctx context.Context, in LogoutInput, deps LogoutDeps) LogoutResult {
	if in.SubjectID == "" || in.AccessToken == "" {
		return LogoutResult{Failure: LogoutFailureInvalidRequest}
	}
	res := LogoutResult{SubjectID: in.SubjectID}

	claims, err := deps.Decode(in.AccessToken)
	if err != nil {
		res.Failure = LogoutFailureMalformed
		res.Err = err
		return res
	}
	if claims.SubjectID() != in.SubjectID {
		res.Failure = LogoutFailureSubjectMismatch
		return res
	}

	// exp + leeway - now
	if ttl := claims.RemainingTTL(deps.Now().Add(-deps.Leeway)); ttl > 0 {
		if err := deps.Sessions.Blacklist(ctx, deps.Digest(in.AccessToken), ttl); err != nil {
			res.Failure = LogoutFailureBlacklist
			res.Err = err
			return res
		}
		res.Blacklisted = true
		res.BlacklistTTL = ttl
	}

	if in.RefreshTokenID != "" {
		if err := deps.Sessions.RemoveRefresh(ctx, in.SubjectID, in.RefreshTokenID); err != nil {
			res.Failure = LogoutFailureRemoveRefresh
			res.Err = err
			return res
		}
		res.RemovedRefresh = 1
		return res
	}

	res.AllDevices = true
	removed, err := deps.Sessions.RemoveAllRefresh(ctx, in.SubjectID)
	if err != nil {
		res.Failure = LogoutFailureRemoveRefresh
		res.Err = err
		return res
	}
	res.RemovedRefresh = removed
	return res
}

// RunLogoutAll removes every refresh entry for subjectID. Access tokens
// already issued stay valid until they expire.
func RunLogoutAll(ctx context.Context, subjectID string, deps LogoutDeps) LogoutResult {
	if subjectID == "" {
		return LogoutResult{Failure: LogoutFailureInvalidRequest}
	}
	res := LogoutResult{SubjectID: subjectID, AllDevices: true}
	removed, err := deps.Sessions.RemoveAllRefresh(ctx, subjectID)
	if err != nil {
		res.Failure = LogoutFailureRemoveRefresh
		res.Err = err
		return res
	}
	res.RemovedRefresh = removed
	return res
}
