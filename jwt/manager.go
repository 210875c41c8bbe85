package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod names a supported HMAC algorithm.
type SigningMethod string

const (
	// MethodHS256 is HMAC-SHA256, the default.
	MethodHS256 SigningMethod = "HS256"
	// MethodHS384 is HMAC-SHA384.
	MethodHS384 SigningMethod = "HS384"
	// MethodHS512 is HMAC-SHA512.
	MethodHS512 SigningMethod = "HS512"
)

var (
	// ErrMalformed is returned for input that is not a decodable JWT.
	ErrMalformed = errors.New("jwt: malformed token")
	// ErrSignature is returned when the signature or algorithm does not verify.
	ErrSignature = errors.New("jwt: invalid signature")
	// ErrExpired is returned when exp is in the past.
	ErrExpired = errors.New("jwt: token expired")
	// ErrSubjectMissing is returned when a valid token has an empty sub claim.
	ErrSubjectMissing = errors.New("jwt: subject claim missing")
)

// Config defines how tokens are signed and checked.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	Secret        []byte
	Issuer        string
	Leeway        time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Claims is the access-token payload.
type Claims struct {
	jwt.RegisteredClaims
}

// Manager signs and parses access tokens. It is immutable after NewManager
// and safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
}

// ParseSigningMethod maps a configured algorithm name such as "hs256" to a
// SigningMethod.
func ParseSigningMethod(name string) (SigningMethod, error) {
	switch m := SigningMethod(strings.ToUpper(strings.TrimSpace(name))); m {
	case MethodHS256, MethodHS384, MethodHS512:
		return m, nil
	case "":
		return MethodHS256, nil
	default:
		return "", fmt.Errorf("unsupported signing method %q", name)
	}
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hmac signing requires a secret")
	}
	method, err := ParseSigningMethod(string(cfg.SigningMethod))
	if err != nil {
		return nil, err
	}
	cfg.SigningMethod = method
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Manager{config: cfg, method: jwtMethod(method)}, nil
}

// TTL returns the configured access-token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.AccessTTL
}

// CreateAccess signs a token for subject that expires AccessTTL from now.
func (m *Manager) CreateAccess(subject string) (string, *Claims, error) {
	if subject == "" {
		return "", nil, ErrSubjectMissing
	}

	now := m.config.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			Issuer:    m.config.Issuer,
		},
	}

	token, err := jwt.NewWithClaims(m.method, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// ParseAccess verifies signature, algorithm and expiry and returns the
// claims. Errors wrap one of ErrMalformed, ErrSignature, ErrExpired or
// ErrSubjectMissing.
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.Subject == "" {
		return nil, ErrSubjectMissing
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
}

func jwtMethod(m SigningMethod) jwt.SigningMethod {
	switch m {
	case MethodHS384:
		return jwt.SigningMethodHS384
	case MethodHS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}
