package middleware

import (
	"context"
	"net/http"

	"github.com/trackwise/edgeauth"
	"github.com/trackwise/edgeauth/internal/api/presenter"
	"github.com/trackwise/edgeauth/internal/logging"
)

// RequireStateless checks the Authorization header with a stateless
// verifier. No network call is made, so a revoked token passes until it
// expires.
func RequireStateless(v edgeauth.StatelessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				presenter.Error(w, r, edgeauth.ErrEngineNotReady)
				return
			}
			subject, err := v.Verify(r.Header.Get("Authorization"))
			if err != nil {
				logging.Ctx(r.Context()).Debug().Str("code", edgeauth.ErrorCode(err)).Msg("stateless verification failed")
				presenter.Error(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), subjectContextKey{}, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
