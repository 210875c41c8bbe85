package edgeauth

import (
	"context"
	"errors"
	"fmt"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// UpdateRole changes a principal's role and revokes all of its sessions.
//
// The provider bumps the role version in the same write as the role itself,
// so sessions issued under the old role stop validating even if the
// revocation below does not complete.
func (e *Engine) UpdateRole(ctx context.Context, principalID string, role Role) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	rec, err := e.users.UpdateRole(ctx, principalID, role)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metrics.Inc(MetricRoleUpdated)
	e.emitAudit(ctx, auditEventRoleChanged, true, rec.ID, rec.Username, "", map[string]string{
		"role": string(rec.Role),
	})

	if _, err := e.RevokeAll(ctx, rec.ID); err != nil {
		return nil, err
	}

	p := rec.Principal
	return &p, nil
}

// ListPrincipals pages through principals ordered by creation. A zero limit
// means the default page size; limit is capped.
func (e *Engine) ListPrincipals(ctx context.Context, skip, limit int) ([]Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if skip < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: skip and limit must be non-negative", ErrInvalidInput)
	}
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	out, err := e.users.ListPrincipals(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}
