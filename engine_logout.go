package edgeauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/trackwise/edgeauth/session"
)

// Revoke deactivates the session behind token. Revoking an already inactive
// session is a no-op that reports changed=false and keeps the original
// revocation time.
func (e *Engine) Revoke(ctx context.Context, token string) (*SessionInfo, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	rec, changed, err := e.sessions.Revoke(ctx, token, e.now())
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, false, ErrSessionNotFound
		}
		return nil, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if changed {
		e.metrics.Inc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, rec.PrincipalID, rec.Subject, "", nil)
	}
	return sessionInfo(rec), changed, nil
}

// RevokeAll deactivates every active session of a principal and returns how
// many were affected.
func (e *Engine) RevokeAll(ctx context.Context, principalID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.sessions.RevokeAll(ctx, principalID, e.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metrics.Inc(MetricRevokeAll)
	e.emitAudit(ctx, auditEventRevokeAll, true, principalID, "", "", map[string]string{
		"revoked": strconv.Itoa(n),
	})
	return n, nil
}

// ActiveSessions returns how many sessions of principalID are still active.
func (e *Engine) ActiveSessions(ctx context.Context, principalID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.sessions.ActiveCount(ctx, principalID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// PurgeExpired deletes every session whose expiry is strictly before the
// current time, in batches of Config.Session.PurgeBatch.
func (e *Engine) PurgeExpired(ctx context.Context) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.sessions.PurgeExpired(ctx, e.now(), e.config.Session.PurgeBatch)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n > 0 {
		e.metrics.Add(MetricSessionsPurged, uint64(n))
		e.emitAudit(ctx, auditEventSessionsPurged, true, "", "", "", map[string]string{
			"count": strconv.Itoa(n),
		})
	}
	return n, nil
}

// PurgeInterval returns how often a janitor should call PurgeExpired.
func (e *Engine) PurgeInterval() time.Duration {
	return e.config.Session.PurgeInterval
}

func sessionInfo(rec *session.Record) *SessionInfo {
	return &SessionInfo{
		PrincipalID: rec.PrincipalID,
		Subject:     rec.Subject,
		IssuedAt:    rec.IssuedAt,
		ExpiresAt:   rec.ExpiresAt,
		Active:      rec.Active,
		RevokedAt:   rec.RevokedAt,
	}
}
