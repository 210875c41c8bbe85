package middleware

import (
	"context"
	"net/http"

	"github.com/trackwise/edgeauth"
	"github.com/trackwise/edgeauth/internal/api/presenter"
)

type principalContextKey struct{}

type subjectContextKey struct{}

// PrincipalFromContext returns the principal stored by [RequireAuthority].
func PrincipalFromContext(ctx context.Context) (*edgeauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*edgeauth.Principal)
	return p, ok && p != nil
}

// SubjectFromContext returns the token subject stored by [RequireStateless]
// or [RequireAuthority].
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectContextKey{}).(string)
	return s, ok && s != ""
}

// WithPrincipal stores p in ctx the way [RequireAuthority] does.
func WithPrincipal(ctx context.Context, p *edgeauth.Principal) context.Context {
	ctx = context.WithValue(ctx, principalContextKey{}, p)
	return context.WithValue(ctx, subjectContextKey{}, p.Username)
}

// RequireRole rejects requests whose principal does not hold one of roles
// with 403. It must run after [RequireAuthority].
func RequireRole(roles ...edgeauth.Role) func(http.Handler) http.Handler {
	allowed := make(map[edgeauth.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				presenter.Error(w, r, edgeauth.ErrAuthHeaderMissing)
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				presenter.Error(w, r, edgeauth.ErrNotAuthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
