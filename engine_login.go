package edgeauth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/trackwise/edgeauth/internal/rate"
	"github.com/trackwise/edgeauth/password"
	"github.com/trackwise/edgeauth/session"
)

// Issue verifies username and password and starts a new session. Any session
// the principal already held is revoked in the same store operation, so after
// Issue returns exactly one session of the principal is active.
//
// Unknown usernames, wrong passwords and inactive principals all fail with
// [ErrInvalidCredentials].
func (e *Engine) Issue(ctx context.Context, username, pass string) (*IssuedToken, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ip := ClientIPFromContext(ctx)

	if e.limiter != nil {
		if err := e.limiter.Check(ctx, username, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metrics.Inc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, "", username, auditErrRateLimited, nil)
				return nil, ErrRateLimited
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	rec, err := e.users.GetPrincipalByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		_, _ = e.hasher.Verify(pass, e.dummyHash)
		return nil, e.loginFailed(ctx, "", username, auditErrInvalidCredentials)
	}

	ok, err := e.hasher.Verify(pass, rec.PasswordHash)
	if err != nil || !ok {
		return nil, e.loginFailed(ctx, rec.ID, username, auditErrInvalidCredentials)
	}
	if !rec.Active {
		return nil, e.loginFailed(ctx, rec.ID, username, auditErrInactivePrincipal)
	}

	token, claims, err := e.tokens.CreateAccess(rec.Username)
	if err != nil {
		return nil, err
	}

	superseded, err := e.sessions.Create(ctx, token, session.Record{
		PrincipalID: rec.ID,
		Subject:     rec.Username,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
		RoleVersion: rec.RoleVersion,
	}, e.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if e.limiter != nil {
		_ = e.limiter.Reset(ctx, username, ip)
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.metrics.Inc(MetricSessionCreated)
	if superseded > 0 {
		e.metrics.Add(MetricSessionSuperseded, uint64(superseded))
		e.emitAudit(ctx, auditEventSessionSuperseded, true, rec.ID, rec.Username, "", map[string]string{
			"revoked": strconv.Itoa(superseded),
		})
	}
	e.emitAudit(ctx, auditEventLoginSuccess, true, rec.ID, rec.Username, "", nil)

	return &IssuedToken{
		AccessToken: token,
		ExpiresAt:   claims.ExpiresAt.Time,
		Principal:   rec.Principal,
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, principalID, username, reason string) error {
	if e.limiter != nil {
		_ = e.limiter.RecordFailure(ctx, username, ClientIPFromContext(ctx))
	}
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, principalID, username, reason, nil)
	return ErrInvalidCredentials
}

// Register creates a principal with the observer role. Callers cannot choose
// the initial role.
func (e *Engine) Register(ctx context.Context, in NewPrincipal) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" || len(username) > 64 {
		return nil, fmt.Errorf("%w: username must be 1 to 64 characters", ErrInvalidInput)
	}
	email := strings.TrimSpace(in.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: email address is not valid", ErrInvalidInput)
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) || errors.Is(err, password.ErrTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}

	rec, err := e.users.CreatePrincipal(ctx, CreatePrincipalInput{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleObserver,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateRegistration) {
			e.metrics.Inc(MetricRegistrationDuplicate)
			e.emitAudit(ctx, auditEventRegistrationDuplicate, false, "", username, "duplicate", nil)
			return nil, ErrDuplicateRegistration
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricRegistrationSuccess)
	e.emitAudit(ctx, auditEventRegistrationSuccess, true, rec.ID, rec.Username, "", nil)
	p := rec.Principal
	return &p, nil
}
