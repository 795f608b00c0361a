package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/sessionauth/jwt"
)

// LoginStage tracks how far a login attempt progressed.
type LoginStage int

const (
	LoginStageStart LoginStage = iota
	LoginStageBruteForceCheck
	LoginStageCredentialVerify
	LoginStageIssue
	LoginStageReject
)

func (s LoginStage) String() string {
	switch s {
	case LoginStageStart:
		return "start"
	case LoginStageBruteForceCheck:
		return "brute_force_check"
	case LoginStageCredentialVerify:
		return "credential_verify"
	case LoginStageIssue:
		return "issue"
	case LoginStageReject:
		return "reject"
	default:
		return "unknown"
	}
}

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInvalidRequest
	LoginFailureLockedOut
	LoginFailureGuardUnavailable
	LoginFailureUserLookup
	LoginFailureUnknownUser
	LoginFailureBadPassword
	LoginFailureInactive
	LoginFailureIssueAccess
	LoginFailureIssueRefresh
	LoginFailureStoreRefresh
)

// IsCredentialFailure reports whether the kind is one of the reasons that
// surface externally as invalid credentials.
func (k LoginFailureKind) IsCredentialFailure() bool {
	switch k {
	case LoginFailureUnknownUser, LoginFailureBadPassword, LoginFailureInactive:
		return true
	}
	return false
}

func (k LoginFailureKind) String() string {
	switch k {
	case LoginFailureNone:
		return "none"
	case LoginFailureInvalidRequest:
		return "invalid_request"
	case LoginFailureLockedOut:
		return "locked_out"
	case LoginFailureGuardUnavailable:
		return "guard_unavailable"
	case LoginFailureUserLookup:
		return "user_lookup"
	case LoginFailureUnknownUser:
		return "unknown_user"
	case LoginFailureBadPassword:
		return "bad_password"
	case LoginFailureInactive:
		return "subject_inactive"
	case LoginFailureIssueAccess:
		return "issue_access"
	case LoginFailureIssueRefresh:
		return "issue_refresh"
	case LoginFailureStoreRefresh:
		return "store_refresh"
	default:
		return "unknown"
	}
}

// LoginInput is the flow-local login request.
type LoginInput struct {
	Email    string
	Password string
	IP       string
}

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Stage   LoginStage
	Err     error

	// NowLocked is set when this failure pushed a counter to its threshold.
	NowLocked bool
	// GuardErr is a non-fatal counter error seen while recording the outcome.
	GuardErr error

	User           *UserRecord
	AccessToken    string
	AccessClaims   *jwt.AccessClaims
	RefreshToken   string
	RefreshTokenID string
}

// LoginGuard is the brute-force policy consulted before and after the
// credential check.
type LoginGuard interface {
	Check(ctx context.Context, email, ip string) error
	RecordFailure(ctx context.Context, email, ip string) (bool, error)
	RecordSuccess(ctx context.Context, email, ip string) error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Guard            LoginGuard
	FindByEmail      func(ctx context.Context, email string) (*UserRecord, error)
	ValidatePassword func(plain, hash string) bool
	// DummyHash is verified against when the email is unknown so that
	// response time does not reveal whether the account exists.
	DummyHash string
	Codec     TokenIssuer
	Sessions  RefreshWriter
	// IsLockedOut reports whether a Guard.Check error is a lockout rather
	// than a backend failure.
	IsLockedOut func(error) bool
}

var errEmptyCredentials = errors.New("email and password are required")

// RunLogin executes START -> BRUTE_FORCE_CHECK -> CREDENTIAL_VERIFY ->
// {ISSUE | REJECT}. A lockout short-circuits before any credential work.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) LoginResult {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return LoginResult{Failure: LoginFailureInvalidRequest, Stage: LoginStageStart, Err: errEmptyCredentials}
	}

	if err := deps.Guard.Check(ctx, email, in.IP); err != nil {
		kind := LoginFailureGuardUnavailable
		if deps.IsLockedOut != nil && deps.IsLockedOut(err) {
			kind = LoginFailureLockedOut
		}
		return LoginResult{Failure: kind, Stage: LoginStageBruteForceCheck, Err: err}
	}

	user, err := deps.FindByEmail(ctx, email)
	if err != nil {
		return LoginResult{Failure: LoginFailureUserLookup, Stage: LoginStageCredentialVerify, Err: err}
	}

	var kind LoginFailureKind
	switch {
	case user == nil:
		if deps.DummyHash != "" {
			_ = deps.ValidatePassword(in.Password, deps.DummyHash)
		}
		kind = LoginFailureUnknownUser
	case !deps.ValidatePassword(in.Password, user.PasswordHash):
		kind = LoginFailureBadPassword
	case !user.Active:
		kind = LoginFailureInactive
	}

	if kind != LoginFailureNone {
		locked, guardErr := deps.Guard.RecordFailure(ctx, email, in.IP)
		return LoginResult{
			Failure:   kind,
			Stage:     LoginStageReject,
			NowLocked: locked,
			GuardErr:  guardErr,
			User:      user,
		}
	}

	res := LoginResult{Stage: LoginStageIssue, User: user}
	res.GuardErr = deps.Guard.RecordSuccess(ctx, email, in.IP)

	pair, step, err := issuePair(ctx, user, deps.Codec, deps.Sessions)
	if err != nil {
		res.Err = err
		switch step {
		case issueStepAccess:
			res.Failure = LoginFailureIssueAccess
		case issueStepRefresh:
			res.Failure = LoginFailureIssueRefresh
		default:
			res.Failure = LoginFailureStoreRefresh
		}
		return res
	}

	res.AccessToken = pair.access
	res.AccessClaims = pair.accessClaims
	res.RefreshToken = pair.refresh
	res.RefreshTokenID = pair.refreshID
	return res
}
