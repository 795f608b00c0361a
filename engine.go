package sessionauth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/sessionauth/internal/audit"
	"github.com/MrEthical07/sessionauth/internal/flows"
	"github.com/MrEthical07/sessionauth/internal/rate"
	"github.com/MrEthical07/sessionauth/jwt"
	"github.com/MrEthical07/sessionauth/session"
	"github.com/rs/zerolog"
)

// Engine is the authentication orchestrator. It holds only immutable
// configuration and shared clients, so any number of instances may serve
// requests against one store.
type Engine struct {
	config     Config
	store      deadlineStore
	guard      *rate.Guard
	jwtManager *jwt.Manager
	users      UserStore
	dummyHash  string
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     zerolog.Logger
	flowDeps   flows.Deps
}

// Close flushes the audit dispatcher. The Redis client is owned by the
// caller and is left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
		if e.audit.Dropped() > 0 {
			ev := e.logger.Warn().Str("op", "close")
			for eventType, n := range e.audit.DroppedByType() {
				ev = ev.Uint64(eventType, n)
			}
			ev.Msg("audit events dropped")
		}
	}
}

// AuditDropped returns how many audit events were discarded.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks [Engine.AuditDropped] down by event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.audit == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || e.metrics == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) now() time.Time {
	return e.jwtManager.Now()
}

func (e *Engine) buildFlowDeps() flows.Deps {
	return flows.Deps{
		Login: flows.LoginDeps{
			Guard:            e.guard,
			FindByEmail:      e.findByEmail,
			ValidatePassword: e.users.ValidatePassword,
			DummyHash:        e.dummyHash,
			Codec:            e.jwtManager,
			Sessions:         e.store,
			IsLockedOut: func(err error) bool {
				return errors.Is(err, rate.ErrLockedOut)
			},
		},
		Refresh: flows.RefreshDeps{
			VerifyRefresh: e.jwtManager.VerifyRefresh,
			FindByID:      e.findByID,
			Codec:         e.jwtManager,
			Sessions:      e.store,
		},
		Logout: flows.LogoutDeps{
			Decode:   e.jwtManager.Decode,
			Digest:   session.TokenDigest,
			Now:      e.now,
			Leeway:   e.config.JWT.Leeway,
			Sessions: e.store,
		},
		Authenticate: flows.AuthenticateDeps{
			VerifyAccess: e.jwtManager.VerifyAccess,
			Digest:       session.TokenDigest,
			Sessions:     e.store,
			FailOpen:     e.config.Security.FailOpenOnStoreOutage,
		},
	}
}

func toUserRecord(id *Identity) *flows.UserRecord {
	if id == nil {
		return nil
	}
	return &flows.UserRecord{
		ID:           id.ID,
		Email:        id.Email,
		Username:     id.Username,
		PasswordHash: id.PasswordHash,
		Role:         id.Role,
		Active:       id.Active,
	}
}

func toIdentity(u *flows.UserRecord) Identity {
	if u == nil {
		return Identity{}
	}
	return Identity{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     u.Role,
		Active:   u.Active,
	}
}

func (e *Engine) findByEmail(ctx context.Context, email string) (*flows.UserRecord, error) {
	id, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return toUserRecord(id), nil
}

func (e *Engine) findByID(ctx context.Context, subjectID string) (*flows.UserRecord, error) {
	id, err := e.users.FindByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return toUserRecord(id), nil
}

func (e *Engine) tokenPair(access, refresh, refreshID string) TokenPair {
	return TokenPair{
		AccessToken:    access,
		RefreshToken:   refresh,
		RefreshTokenID: refreshID,
		ExpiresIn:      int64(e.jwtManager.AccessTTL() / time.Second),
		TokenType:      "Bearer",
	}
}

// tokenError maps a jwt verification failure onto the public taxonomy.
// A bad signature is reported as malformed; the distinction stays in Detail.
func tokenError(err error) *AuthError {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return newAuthError(KindTokenExpired, ErrTokenExpired, "")
	case errors.Is(err, jwt.ErrNotYetValid):
		return newAuthError(KindTokenNotYetValid, ErrTokenNotYetValid, "")
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return newAuthError(KindTokenMalformed, ErrTokenMalformed, "signature_invalid")
	default:
		return newAuthError(KindTokenMalformed, ErrTokenMalformed, "")
	}
}

// Login runs the brute-force check, verifies credentials and issues a new
// token pair. Unknown email, wrong password and inactive subject all return
// [ErrInvalidCredentials]; the precise reason only reaches logs and audit.
//
//	Flow: START -> BRUTE_FORCE_CHECK -> CREDENTIAL_VERIFY -> ISSUE | REJECT
//	Redis ops (success): 2 GET + 1 DEL + 1 EVALSHA
//	Errors: ErrInvalidRequest, ErrLockedOut, ErrInvalidCredentials, ErrStoreUnavailable
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricLoginLatency, start)

	if req.IP == "" {
		req.IP = clientIPFromContext(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = userAgentFromContext(ctx)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	af := auditFields{email: email, ip: req.IP, userAgent: req.UserAgent}

	res := flows.RunLogin(ctx, flows.LoginInput{
		Email:    email,
		Password: req.Password,
		IP:       req.IP,
	}, e.flowDeps.Login)

	if res.GuardErr != nil {
		e.metricInc(MetricStoreUnavailable)
		e.logger.Error().Str("op", "login").Str("stage", res.Stage.String()).Err(res.GuardErr).Msg("attempt counter update failed")
	}

	if res.Failure == flows.LoginFailureNone {
		e.metricInc(MetricLoginSuccess)
		af.subjectID = res.User.ID
		af.tokenID = res.RefreshTokenID
		e.emitAudit(ctx, auditEventLoginSuccess, true, af)
		e.logger.Debug().Str("op", "login").Str("subject_id", res.User.ID).Msg("login succeeded")
		return &LoginResult{
			Identity: toIdentity(res.User),
			Tokens:   e.tokenPair(res.AccessToken, res.RefreshToken, res.RefreshTokenID),
		}, nil
	}

	var authErr *AuthError
	switch {
	case res.Failure == flows.LoginFailureInvalidRequest:
		fields := map[string]string{}
		if email == "" {
			fields["email"] = "required"
		}
		if req.Password == "" {
			fields["password"] = "required"
		}
		return nil, invalidRequestError(fields)

	case res.Failure == flows.LoginFailureLockedOut:
		var lockErr *rate.LockoutError
		retry := e.config.Lockout.LockoutDuration
		if errors.As(res.Err, &lockErr) {
			retry = lockErr.RetryAfter
			af.metadata = map[string]string{"scope": string(lockErr.Scope)}
		}
		e.metricInc(MetricLoginLockedOut)
		af.reason = "locked_out"
		e.emitAudit(ctx, auditEventLoginLockedOut, false, af)
		authErr = lockedOutError(retry)
		e.logFailure("login", authErr, nil).Str("ip", req.IP).Dur("retry_after", retry).Msg("login rejected while locked out")
		return nil, authErr

	case res.Failure.IsCredentialFailure():
		e.metricInc(MetricLoginFailure)
		af.reason = res.Failure.String()
		if res.User != nil {
			af.subjectID = res.User.ID
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, af)
		if res.NowLocked {
			e.metricInc(MetricLockoutTriggered)
			e.emitAudit(ctx, auditEventLockoutTriggered, false, af)
		}
		authErr = newAuthError(KindInvalidCredentials, ErrInvalidCredentials, "")
		cause := error(nil)
		if res.Failure == flows.LoginFailureInactive {
			cause = ErrSubjectInactive
		}
		e.logFailure("login", authErr, cause).
			Str("reason", af.reason).
			Str("subject_id", af.subjectID).
			Str("ip", req.IP).
			Bool("now_locked", res.NowLocked).
			Msg("login rejected")
		return nil, authErr

	case res.Failure == flows.LoginFailureGuardUnavailable,
		res.Failure == flows.LoginFailureUserLookup,
		res.Failure == flows.LoginFailureStoreRefresh:
		e.metricInc(MetricStoreUnavailable)
		authErr = storeUnavailableError(res.Err)

	default:
		authErr = newAuthError(KindInternal, ErrInternal, res.Failure.String())
	}

	e.metricInc(MetricLoginFailure)
	af.reason = res.Failure.String()
	e.emitAudit(ctx, auditEventLoginFailure, false, af)
	e.logFailure("login", authErr, res.Err).Str("reason", af.reason).Msg("login failed")
	return nil, authErr
}

// Refresh rotates a refresh token: a successor pair is signed and the
// presented entry is swapped for the successor atomically. Presenting the
// same token again, or racing a concurrent rotation and losing, returns
// [ErrTokenRevoked]. An expired refresh token asks the client to log in.
//
//	Redis ops (success): 1 EVALSHA
//	Errors: ErrNoToken, ErrTokenExpired, ErrTokenMalformed, ErrTokenNotYetValid, ErrTokenRevoked, ErrStoreUnavailable
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flowDeps.Refresh)
	af := auditFields{subjectID: res.SubjectID, tokenID: res.PreviousID}

	if res.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		af.metadata = map[string]string{"successor_id": res.RefreshTokenID}
		e.emitAudit(ctx, auditEventRefreshSuccess, true, af)
		e.logger.Debug().Str("op", "refresh").Str("subject_id", res.SubjectID).Msg("refresh rotated")
		pair := e.tokenPair(res.AccessToken, res.RefreshToken, res.RefreshTokenID)
		return &pair, nil
	}

	var authErr *AuthError
	event := auditEventRefreshFailure
	switch res.Failure {
	case flows.RefreshFailureNoToken:
		authErr = newAuthError(KindNoToken, ErrNoToken, "")
		af.reason = "no_token"
	case flows.RefreshFailureVerify:
		authErr = tokenError(res.Err)
		// There is nothing left to refresh with.
		authErr.Action = ActionLoginRequired
		af.reason = string(authErr.Kind)
	case flows.RefreshFailureRevoked:
		e.metricInc(MetricRefreshRevoked)
		authErr = newAuthError(KindTokenRevoked, ErrTokenRevoked, "")
		event = auditEventRefreshRevoked
		af.reason = "entry_absent"
	case flows.RefreshFailureSubjectInactive:
		e.metricInc(MetricRefreshRevoked)
		authErr = newAuthError(KindTokenRevoked, ErrTokenRevoked, "")
		event = auditEventRefreshRevoked
		af.reason = "subject_inactive"
		af.metadata = map[string]string{"revoked_entries": strconv.Itoa(res.Revoked)}
	case flows.RefreshFailureUserLookup, flows.RefreshFailureRotate:
		e.metricInc(MetricStoreUnavailable)
		authErr = storeUnavailableError(res.Err)
		af.reason = "store_unavailable"
	default:
		authErr = newAuthError(KindInternal, ErrInternal, "")
		af.reason = "issue_failed"
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, event, false, af)
	e.logFailure("refresh", authErr, res.Err).
		Str("reason", af.reason).
		Str("subject_id", res.SubjectID).
		Str("token_id", res.PreviousID).
		Msg("refresh rejected")
	return nil, authErr
}

// Logout blacklists the access token for its remaining lifetime plus the
// verification leeway and removes the named refresh entry, or every entry
// for the subject when RefreshTokenID is empty. A token already past
// expiry plus leeway is not blacklisted.
//
// SubjectID must come from an authenticated principal; a token whose sub
// claim differs is rejected as malformed.
func (e *Engine) Logout(ctx context.Context, req LogoutRequest) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}
	fields := map[string]string{}
	if req.SubjectID == "" {
		fields["subject_id"] = "required"
	}
	if req.AccessToken == "" {
		fields["access_token"] = "required"
	}
	if len(fields) > 0 {
		return invalidRequestError(fields)
	}

	res := flows.RunLogout(ctx, flows.LogoutInput{
		SubjectID:      req.SubjectID,
		AccessToken:    req.AccessToken,
		RefreshTokenID: req.RefreshTokenID,
	}, e.flowDeps.Logout)
	return e.finishLogout(ctx, "logout", res)
}

// LogoutAll removes every refresh entry for subjectID. Outstanding access
// tokens stay valid until they expire.
func (e *Engine) LogoutAll(ctx context.Context, subjectID string) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}
	if subjectID == "" {
		return invalidRequestError(map[string]string{"subject_id": "required"})
	}
	res := flows.RunLogoutAll(ctx, subjectID, e.flowDeps.Logout)
	return e.finishLogout(ctx, "logout_all", res)
}

func (e *Engine) finishLogout(ctx context.Context, op string, res flows.LogoutResult) error {
	af := auditFields{subjectID: res.SubjectID}

	if res.Failure == flows.LogoutFailureNone {
		if res.Blacklisted {
			e.metricInc(MetricTokenBlacklisted)
		}
		event := auditEventLogout
		if res.AllDevices {
			e.metricInc(MetricLogoutAll)
			event = auditEventLogoutAll
		} else {
			e.metricInc(MetricLogout)
		}
		af.metadata = map[string]string{
			"removed_refresh": strconv.Itoa(res.RemovedRefresh),
		}
		e.emitAudit(ctx, event, true, af)
		e.logger.Debug().Str("op", op).Str("subject_id", res.SubjectID).Int("removed", res.RemovedRefresh).Msg("logout complete")
		return nil
	}

	var authErr *AuthError
	switch res.Failure {
	case flows.LogoutFailureMalformed:
		authErr = tokenError(res.Err)
	case flows.LogoutFailureSubjectMismatch:
		authErr = newAuthError(KindTokenMalformed, ErrTokenMalformed, "subject_mismatch")
	default:
		e.metricInc(MetricStoreUnavailable)
		authErr = storeUnavailableError(res.Err)
	}

	af.reason = string(authErr.Kind)
	if authErr.Detail != "" {
		af.reason = authErr.Detail
	}
	e.emitAudit(ctx, auditEventLogout, false, af)
	e.logFailure(op, authErr, res.Err).Str("subject_id", res.SubjectID).Msg("logout failed")
	return authErr
}

// Authenticate verifies an access token and checks it against the
// blacklist. The success path costs one store round trip. A store failure
// rejects the request with [ErrStoreUnavailable] unless
// Security.FailOpenOnStoreOutage is set.
//
//	Errors: ErrNoToken, ErrTokenExpired, ErrTokenMalformed, ErrTokenNotYetValid, ErrTokenRevoked, ErrStoreUnavailable
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricAuthenticateLatency, start)

	res := flows.RunAuthenticate(ctx, accessToken, e.flowDeps.Authenticate)

	switch res.Failure {
	case flows.AuthenticateFailureNone:
		if res.FailedOpen {
			e.metricInc(MetricAuthenticateFailOpen)
			e.metricInc(MetricStoreUnavailable)
			e.emitAudit(ctx, auditEventAuthenticateFailOpen, true, auditFields{
				subjectID: res.Claims.SubjectID(),
				tokenID:   res.Claims.ID,
				reason:    "blacklist_unreadable",
			})
			e.logger.Error().Str("op", "authenticate").Err(res.Err).Msg("blacklist unreadable; admitting token (fail-open)")
		}
		e.metricInc(MetricAuthenticateSuccess)
		return principalFromClaims(res.Claims), nil

	case flows.AuthenticateFailureNoToken:
		e.metricInc(MetricAuthenticateFailure)
		return nil, newAuthError(KindNoToken, ErrNoToken, "")

	case flows.AuthenticateFailureVerify:
		e.metricInc(MetricAuthenticateFailure)
		return nil, tokenError(res.Err)

	case flows.AuthenticateFailureRevoked:
		e.metricInc(MetricAuthenticateFailure)
		e.metricInc(MetricAuthenticateRevoked)
		e.emitAudit(ctx, auditEventAuthenticateRevoked, false, auditFields{
			subjectID: res.Claims.SubjectID(),
			tokenID:   res.Claims.ID,
			reason:    "blacklisted",
		})
		return nil, newAuthError(KindTokenRevoked, ErrTokenRevoked, "")

	default:
		e.metricInc(MetricAuthenticateFailure)
		e.metricInc(MetricStoreUnavailable)
		authErr := storeUnavailableError(res.Err)
		e.logFailure("authenticate", authErr, res.Err).Msg("blacklist unreadable; rejecting")
		return nil, authErr
	}
}

func principalFromClaims(c *jwt.AccessClaims) *Principal {
	p := &Principal{
		SubjectID: c.SubjectID(),
		Email:     c.Email,
		Username:  c.Username,
		Role:      c.Role,
		TokenID:   c.ID,
	}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	return p
}

// IsRefreshValid reports whether refreshToken verifies and its entry is
// still live, without consuming it. Tokens that fail verification report
// false with a nil error.
func (e *Engine) IsRefreshValid(ctx context.Context, refreshToken string) (bool, error) {
	if e == nil || e.jwtManager == nil {
		return false, ErrEngineNotReady
	}
	claims, err := e.jwtManager.VerifyRefresh(refreshToken)
	if err != nil {
		return false, nil
	}
	ok, err := e.store.IsRefreshValid(ctx, claims.SubjectID(), claims.TokenID())
	if err != nil {
		return false, storeUnavailableError(err)
	}
	return ok, nil
}

// ActiveRefreshIDs lists the live refresh token IDs for subjectID.
func (e *Engine) ActiveRefreshIDs(ctx context.Context, subjectID string) ([]string, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if subjectID == "" {
		return nil, invalidRequestError(map[string]string{"subject_id": "required"})
	}
	ids, err := e.store.ActiveRefreshIDs(ctx, subjectID)
	if err != nil {
		return nil, storeUnavailableError(err)
	}
	return ids, nil
}

// LockoutStatus reads the brute-force counters for an email/IP pair
// without changing them.
func (e *Engine) LockoutStatus(ctx context.Context, email, ip string) (LockoutStatus, error) {
	if e == nil || e.guard == nil {
		return LockoutStatus{}, ErrEngineNotReady
	}
	st, err := e.guard.Status(ctx, email, ip)
	if err != nil {
		return LockoutStatus{}, storeUnavailableError(err)
	}
	return LockoutStatus{
		EmailAttempts: st.EmailAttempts,
		IPAttempts:    st.IPAttempts,
		Locked:        st.Locked,
		RetryAfter:    st.RetryAfter,
	}, nil
}

// Health pings the session store.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.jwtManager == nil {
		return HealthStatus{Err: ErrEngineNotReady}
	}
	latency, err := e.store.Ping(ctx)
	return HealthStatus{Available: err == nil, Latency: latency, Err: err}
}
