package edgeauth

import (
	"context"
	"time"
)

// Role is a principal's privilege level.
type Role string

const (
	// RoleObserver is assigned to every newly registered principal.
	RoleObserver Role = "observer"
	// RoleManager may list principals and change roles.
	RoleManager Role = "manager"
	// RoleAdmin has every manager privilege.
	RoleAdmin Role = "admin"
)

var knownRoles = map[Role]struct{}{
	RoleObserver: {},
	RoleManager:  {},
	RoleAdmin:    {},
}

// ParseRole validates a role name coming from the wire.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := knownRoles[r]; !ok {
		return "", ErrInvalidRole
	}
	return r, nil
}

// CanManagePrincipals reports whether r may list principals and update roles.
func (r Role) CanManagePrincipals() bool {
	return r == RoleManager || r == RoleAdmin
}

// Principal is an authenticated user identity. Its JSON form is the wire
// shape returned by GET /auth/users/me and consumed by downstream services.
type Principal struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`

	// RoleVersion increases on every role change. Sessions remember the
	// version they were issued under.
	RoleVersion uint32 `json:"-"`
}

// PrincipalRecord is a Principal together with its stored credential hash.
type PrincipalRecord struct {
	Principal
	PasswordHash string
}

// NewPrincipal is the registration input.
type NewPrincipal struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreatePrincipalInput is what the Engine hands to a UserProvider after
// hashing the password and fixing the initial role.
type CreatePrincipalInput struct {
	Username     string
	Email        string
	PasswordHash string
	Role         Role
}

// UserProvider is the principal persistence contract used by the Engine.
//
// Lookups of unknown principals must return an error wrapping [ErrNotFound];
// uniqueness violations on create must wrap [ErrDuplicateRegistration].
type UserProvider interface {
	CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (PrincipalRecord, error)
	GetPrincipalByUsername(ctx context.Context, username string) (PrincipalRecord, error)
	GetPrincipal(ctx context.Context, id string) (PrincipalRecord, error)
	ListPrincipals(ctx context.Context, skip, limit int) ([]Principal, error)
	// UpdateRole persists role and increments the principal's role version
	// in the same write.
	UpdateRole(ctx context.Context, id string, role Role) (PrincipalRecord, error)
}

// StatelessVerifier checks a credential using only its signed content, the
// shared secret and the clock. It never consults revocation state.
type StatelessVerifier interface {
	Verify(authorizationHeader string) (subject string, err error)
}

// AuthorityVerifier checks a credential against the live session store.
type AuthorityVerifier interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// SessionInfo is the public view of one session.
type SessionInfo struct {
	PrincipalID string
	Subject     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Active      bool
	RevokedAt   time.Time
}

// IssuedToken is the result of a successful login.
type IssuedToken struct {
	AccessToken string
	ExpiresAt   time.Time
	Principal   Principal
}
