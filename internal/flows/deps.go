package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/sessionauth/jwt"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Login        LoginDeps
	Refresh      RefreshDeps
	Logout       LogoutDeps
	Authenticate AuthenticateDeps
}

// UserRecord is the flow-local view of an identity.
type UserRecord struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         string
	Active       bool
}

func (u *UserRecord) accessInput() jwt.AccessInput {
	return jwt.AccessInput{
		SubjectID: u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Role:      u.Role,
	}
}

// TokenIssuer mints access/refresh pairs.
type TokenIssuer interface {
	IssueAccess(in jwt.AccessInput, ttl time.Duration) (string, *jwt.AccessClaims, error)
	IssueRefresh(subjectID string, ttl time.Duration) (string, string, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// RefreshWriter persists refresh entries.
type RefreshWriter interface {
	StoreRefresh(ctx context.Context, subjectID, tokenID string, ttl time.Duration) error
}

// issuedPair is the output shared by login and refresh.
type issuedPair struct {
	access       string
	accessClaims *jwt.AccessClaims
	refresh      string
	refreshID    string
}

type issueStep int

const (
	issueStepAccess issueStep = iota + 1
	issueStepRefresh
	issueStepStore
)

// signPair signs a new pair for user without touching the store.
func signPair(user *UserRecord, codec TokenIssuer) (issuedPair, issueStep, error) {
	access, claims, err := codec.IssueAccess(user.accessInput(), codec.AccessTTL())
	if err != nil {
		return issuedPair{}, issueStepAccess, err
	}
	refresh, refreshID, err := codec.IssueRefresh(user.ID, codec.RefreshTTL())
	if err != nil {
		return issuedPair{}, issueStepRefresh, err
	}
	return issuedPair{
		access:       access,
		accessClaims: claims,
		refresh:      refresh,
		refreshID:    refreshID,
	}, 0, nil
}

// issuePair signs a new pair for user and records the refresh entry.
// The entry is written last so a signing failure leaves nothing behind.
func issuePair(ctx context.Context, user *UserRecord, codec TokenIssuer, store RefreshWriter) (issuedPair, issueStep, error) {
	pair, step, err := signPair(user, codec)
	if err != nil {
		return issuedPair{}, step, err
	}
	if err := store.StoreRefresh(ctx, user.ID, pair.refreshID, codec.RefreshTTL()); err != nil {
		return issuedPair{}, issueStepStore, err
	}
	return pair, 0, nil
}
