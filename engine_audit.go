package sessionauth

import (
	"context"

	"github.com/rs/zerolog"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginLockedOut       = "login_locked_out"
	auditEventLockoutTriggered     = "lockout_triggered"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventRefreshRevoked       = "refresh_revoked"
	auditEventLogout               = "logout"
	auditEventLogoutAll            = "logout_all"
	auditEventAuthenticateRevoked  = "authenticate_revoked"
	auditEventAuthenticateFailOpen = "authenticate_fail_open"
)

// criticalAuditEvents record security state changes. The dispatcher never
// sheds them under DropIfFull.
var criticalAuditEvents = []string{
	auditEventLockoutTriggered,
	auditEventRefreshRevoked,
	auditEventLogoutAll,
	auditEventAuthenticateRevoked,
	auditEventAuthenticateFailOpen,
}

type auditFields struct {
	subjectID string
	email     string
	tokenID   string
	ip        string
	userAgent string
	reason    string
	metadata  map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, f auditFields) {
	if e == nil || e.audit == nil {
		return
	}
	if f.ip == "" {
		f.ip = clientIPFromContext(ctx)
	}
	if f.userAgent == "" {
		f.userAgent = userAgentFromContext(ctx)
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		SubjectID: f.subjectID,
		Email:     f.email,
		TokenID:   f.tokenID,
		IP:        f.ip,
		UserAgent: f.userAgent,
		Success:   success,
		Reason:    f.reason,
		Metadata:  f.metadata,
	})
}

// logFailure writes a security failure at warn level, or at error level
// when the cause is a backend outage.
func (e *Engine) logFailure(op string, authErr *AuthError, cause error) *zerolog.Event {
	ev := e.logger.Warn()
	if authErr != nil && authErr.Kind == KindStoreUnavailable {
		ev = e.logger.Error()
	}
	ev = ev.Str("op", op)
	if authErr != nil {
		ev = ev.Str("kind", string(authErr.Kind))
	}
	if cause != nil {
		ev = ev.Err(cause)
	}
	return ev
}
