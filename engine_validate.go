package edgeauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/trackwise/edgeauth/session"
)

// Validate resolves token to its principal by consulting the session store.
//
// Checks run in this order: the session must exist, must not be past its
// expiry (an expired session reports [ErrTokenExpired] even when it was also
// revoked), must be active, and its principal must still exist, be active
// and hold the role version the session was issued under.
func (e *Engine) Validate(ctx context.Context, token string) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()

	rec, err := e.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.metrics.Inc(MetricValidateNotFound)
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if rec.ExpiredAt(e.now()) {
		e.metrics.Inc(MetricValidateExpired)
		return nil, ErrTokenExpired
	}
	if !rec.Active {
		e.metrics.Inc(MetricValidateRevoked)
		return nil, ErrTokenRevoked
	}

	pr, err := e.users.GetPrincipal(ctx, rec.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metrics.Inc(MetricValidateRevoked)
			return nil, ErrTokenRevoked
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !pr.Active {
		e.metrics.Inc(MetricValidateRevoked)
		return nil, ErrTokenRevoked
	}
	if pr.RoleVersion != rec.RoleVersion {
		// The role changed after this session was issued; retire the
		// session so later calls fail fast on the active flag.
		_, _, _ = e.sessions.Revoke(ctx, token, e.now())
		e.metrics.Inc(MetricRoleVersionMismatch)
		e.metrics.Inc(MetricValidateRevoked)
		e.emitAudit(ctx, auditEventRoleVersionMismatch, false, pr.ID, pr.Username, "", map[string]string{
			"session_version":   strconv.FormatUint(uint64(rec.RoleVersion), 10),
			"principal_version": strconv.FormatUint(uint64(pr.RoleVersion), 10),
		})
		return nil, ErrTokenRevoked
	}

	e.metrics.Inc(MetricValidateSuccess)
	p := pr.Principal
	return &p, nil
}

// Authenticate implements [AuthorityVerifier].
func (e *Engine) Authenticate(ctx context.Context, token string) (*Principal, error) {
	return e.Validate(ctx, token)
}
