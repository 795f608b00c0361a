package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/sessionauth/jwt"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNoToken
	RefreshFailureVerify
	RefreshFailureUserLookup
	RefreshFailureSubjectInactive
	RefreshFailureIssueAccess
	RefreshFailureIssueRefresh
	// RefreshFailureRotate means the store could not run the rotation.
	RefreshFailureRotate
	RefreshFailureRevoked
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error

	SubjectID      string
	PreviousID     string
	User           *UserRecord
	AccessToken    string
	AccessClaims   *jwt.AccessClaims
	RefreshToken   string
	RefreshTokenID string
	// Revoked counts entries removed when the subject was found inactive.
	Revoked int
}

// RefreshSessionStore is the refresh-entry surface rotation needs.
type RefreshSessionStore interface {
	// RotateRefresh deletes the entry oldID and records newID in one
	// atomic step. It reports false, writing nothing, when oldID is absent.
	RotateRefresh(ctx context.Context, subjectID, oldID, newID string, ttl time.Duration) (bool, error)
	RemoveAllRefresh(ctx context.Context, subjectID string) (int, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	VerifyRefresh func(string) (*jwt.RefreshClaims, error)
	FindByID      func(ctx context.Context, subjectID string) (*UserRecord, error)
	Codec         TokenIssuer
	Sessions      RefreshSessionStore
}

// RunRefresh verifies the presented refresh token, checks the subject is
// still active, signs a successor pair and swaps the stored entry for the
// successor. The swap is a single atomic check-and-replace, so of several
// concurrent calls with one token only the first rotates; the others
// observe RefreshFailureRevoked. A LogoutAll that lands anywhere in the
// flow either removes the old entry before the swap, which then fails, or
// removes the successor after it.
//
// Every step that can fail runs before the swap, so a failed refresh
// leaves the presented entry usable.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureNoToken}
	}

	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureVerify, Err: err}
	}
	subjectID := claims.SubjectID()
	tokenID := claims.TokenID()
	res := RefreshResult{SubjectID: subjectID, PreviousID: tokenID}

	user, err := deps.FindByID(ctx, subjectID)
	if err != nil {
		res.Failure = RefreshFailureUserLookup
		res.Err = err
		return res
	}
	if user == nil || !user.Active {
		res.Failure = RefreshFailureSubjectInactive
		res.User = user
		res.Revoked, res.Err = deps.Sessions.RemoveAllRefresh(ctx, subjectID)
		return res
	}
	res.User = user

	pair, step, err := signPair(user, deps.Codec)
	if err != nil {
		res.Err = err
		if step == issueStepAccess {
			res.Failure = RefreshFailureIssueAccess
		} else {
			res.Failure = RefreshFailureIssueRefresh
		}
		return res
	}

	ok, err := deps.Sessions.RotateRefresh(ctx, subjectID, tokenID, pair.refreshID, deps.Codec.RefreshTTL())
	if err != nil {
		res.Failure = RefreshFailureRotate
		res.Err = err
		return res
	}
	if !ok {
		res.Failure = RefreshFailureRevoked
		return res
	}

	res.AccessToken = pair.access
	res.AccessClaims = pair.accessClaims
	res.RefreshToken = pair.refresh
	res.RefreshTokenID = pair.refreshID
	return res
}
