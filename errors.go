package edgeauth

import (
	"errors"
	"net/http"
)

// Authentication failures. Every error in this group is answered with 401 and
// a Bearer challenge.
var (
	// ErrAuthHeaderMissing is returned when a protected request carries no Authorization header.
	ErrAuthHeaderMissing = errors.New("authorization header missing")
	// ErrAuthSchemeInvalid is returned when the Authorization scheme is not Bearer.
	ErrAuthSchemeInvalid = errors.New("authorization scheme must be Bearer")
	// ErrTokenMalformed is returned for headers or tokens that cannot be split or decoded.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenSignatureInvalid is returned when the token signature does not verify.
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenExpired is returned when the token or its session is past expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when the session behind a token is no longer active.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenSubjectMissing is returned when a verified token has no subject claim.
	ErrTokenSubjectMissing = errors.New("token subject missing")
	// ErrSessionNotFound is returned by the authority when no session exists for a token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidCredentials is returned for an unknown username or wrong password.
	ErrInvalidCredentials = errors.New("incorrect username or password")
)

var (
	// ErrNotAuthorized is returned when the caller's role does not allow the operation.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNotFound is returned when a principal or route does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable is returned when an upstream service cannot be reached.
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	// ErrUpstreamTimeout is returned when an upstream service does not answer
	// in time. Callers see the same wire code as [ErrUpstreamUnavailable].
	ErrUpstreamTimeout = errors.New("upstream service timed out")
	// ErrDuplicateRegistration is returned when the username or email is already taken.
	ErrDuplicateRegistration = errors.New("username or email already taken")
	// ErrInvalidRole is returned for a role outside the known set.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidInput is returned for registration or query input that fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited is returned when the login throttle rejects an attempt.
	ErrRateLimited = errors.New("too many login attempts")
	// ErrStoreUnavailable is returned when the session or principal store fails.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

type errorClass struct {
	err     error
	code    string
	status  int
	message string
}

// Order matters: the first class whose sentinel matches wins, so more
// specific sentinels are listed before the generic ones.
var errorClasses = []errorClass{
	{ErrAuthHeaderMissing, "AUTH_HEADER_MISSING", http.StatusUnauthorized, ""},
	{ErrAuthSchemeInvalid, "AUTH_SCHEME_INVALID", http.StatusUnauthorized, "Invalid authentication scheme"},
	{ErrTokenMalformed, "TOKEN_MALFORMED", http.StatusUnauthorized, ""},
	{ErrTokenSignatureInvalid, "TOKEN_SIGNATURE_INVALID", http.StatusUnauthorized, ""},
	{ErrTokenExpired, "TOKEN_EXPIRED", http.StatusUnauthorized, ""},
	{ErrTokenRevoked, "TOKEN_REVOKED", http.StatusUnauthorized, ""},
	{ErrTokenSubjectMissing, "TOKEN_SUBJECT_MISSING", http.StatusUnauthorized, ""},
	{ErrSessionNotFound, "SESSION_NOT_FOUND", http.StatusUnauthorized, ""},
	{ErrInvalidCredentials, "INVALID_CREDENTIALS", http.StatusUnauthorized, "Incorrect username or password"},
	{ErrNotAuthorized, "NOT_AUTHORIZED", http.StatusForbidden, "Not authorized"},
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound, ""},
	{ErrUpstreamTimeout, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "Service temporarily unavailable"},
	{ErrUpstreamUnavailable, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "Service temporarily unavailable"},
	{ErrDuplicateRegistration, "DUPLICATE_REGISTRATION", http.StatusBadRequest, "Username or email already taken"},
	{ErrInvalidRole, "INVALID_ROLE", http.StatusBadRequest, ""},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest, ""},
	{ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests, ""},
	{ErrStoreUnavailable, "STORE_UNAVAILABLE", http.StatusServiceUnavailable, ""},
}

func classify(err error) (errorClass, bool) {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c, true
		}
	}
	return errorClass{}, false
}

// ErrorCode returns the stable wire code for err, or "INTERNAL_ERROR" when
// err does not wrap any taxonomy sentinel.
func ErrorCode(err error) string {
	if c, ok := classify(err); ok {
		return c.code
	}
	return "INTERNAL_ERROR"
}

// HTTPStatus returns the status code a handler should answer err with.
func HTTPStatus(err error) int {
	if c, ok := classify(err); ok {
		return c.status
	}
	return http.StatusInternalServerError
}

// IsAuthentication reports whether err belongs to the authentication group,
// i.e. whether the response must carry a Bearer challenge.
func IsAuthentication(err error) bool {
	c, ok := classify(err)
	return ok && c.status == http.StatusUnauthorized
}

// ErrorMessage returns the client-facing message for err. Unclassified
// errors never leak their text.
func ErrorMessage(err error) string {
	if c, ok := classify(err); ok {
		if c.message != "" {
			return c.message
		}
		return c.err.Error()
	}
	return "internal server error"
}
