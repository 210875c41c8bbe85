package bearer

import (
	"errors"
	"strings"

	"github.com/trackwise/edgeauth"
	"github.com/trackwise/edgeauth/jwt"
)

// ParseHeader extracts the token from an Authorization header value.
//
// An empty value fails with ErrAuthHeaderMissing, a value that is not exactly
// two space-separated fields with ErrTokenMalformed, and a scheme other than
// a case-insensitive "Bearer" with ErrAuthSchemeInvalid.
func ParseHeader(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", edgeauth.ErrAuthHeaderMissing
	}
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return "", edgeauth.ErrTokenMalformed
	}
	if !strings.EqualFold(fields[0], "bearer") {
		return "", edgeauth.ErrAuthSchemeInvalid
	}
	return fields[1], nil
}

// Verifier is the edge's stateless credential check.
type Verifier struct {
	tokens *jwt.Manager
}

var _ edgeauth.StatelessVerifier = (*Verifier)(nil)

func NewVerifier(tokens *jwt.Manager) *Verifier {
	return &Verifier{tokens: tokens}
}

// Verify parses the header, checks signature and expiry, and returns the
// token subject. It never consults revocation state, so a logged-out token
// keeps passing here until it expires.
func (v *Verifier) Verify(authorizationHeader string) (string, error) {
	token, err := ParseHeader(authorizationHeader)
	if err != nil {
		return "", err
	}
	if v == nil || v.tokens == nil {
		return "", edgeauth.ErrEngineNotReady
	}

	claims, err := v.tokens.ParseAccess(token)
	switch {
	case err == nil:
		return claims.Subject, nil
	case errors.Is(err, jwt.ErrExpired):
		return "", edgeauth.ErrTokenExpired
	case errors.Is(err, jwt.ErrSubjectMissing):
		return "", edgeauth.ErrTokenSubjectMissing
	case errors.Is(err, jwt.ErrMalformed):
		return "", edgeauth.ErrTokenMalformed
	default:
		return "", edgeauth.ErrTokenSignatureInvalid
	}
}
