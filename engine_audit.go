package edgeauth

import (
	"context"
	"time"

	"github.com/trackwise/edgeauth/internal/audit"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventSessionSuperseded     = "session_superseded"
	auditEventLogout                = "logout"
	auditEventRevokeAll             = "revoke_all"
	auditEventRoleChanged           = "role_changed"
	auditEventRoleVersionMismatch   = "role_version_mismatch"
	auditEventRegistrationSuccess   = "registration_success"
	auditEventRegistrationDuplicate = "registration_duplicate"
	auditEventSessionsPurged        = "sessions_purged"
)

const (
	auditErrInvalidCredentials = "invalid_credentials"
	auditErrInactivePrincipal  = "inactive_principal"
	auditErrRateLimited        = "rate_limited"
	auditErrStore              = "store_unavailable"
)

type clientIPContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for the per-IP login throttle and audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the address stored by WithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, principalID, username, errCode string, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, audit.Event{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		Username:    username,
		IP:          ClientIPFromContext(ctx),
		Success:     success,
		Error:       errCode,
		Metadata:    metadata,
	})
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}
