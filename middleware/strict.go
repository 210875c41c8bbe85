package middleware

import (
	"net/http"

	"github.com/trackwise/edgeauth"
	"github.com/trackwise/edgeauth/bearer"
	"github.com/trackwise/edgeauth/internal/api/presenter"
	"github.com/trackwise/edgeauth/internal/logging"
)

// RequireAuthority resolves the bearer token against the session authority
// and stores the principal in the request context. Revoked and superseded
// sessions are rejected immediately.
func RequireAuthority(v edgeauth.AuthorityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				presenter.Error(w, r, edgeauth.ErrEngineNotReady)
				return
			}
			token, err := bearer.ParseHeader(r.Header.Get("Authorization"))
			if err != nil {
				presenter.Error(w, r, err)
				return
			}

			p, err := v.Authenticate(r.Context(), token)
			if err != nil {
				logging.Ctx(r.Context()).Debug().Str("code", edgeauth.ErrorCode(err)).Msg("authority verification failed")
				presenter.Error(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
