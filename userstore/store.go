package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trackwise/edgeauth"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrMigration wraps every failure raised while applying schema migrations.
var ErrMigration = errors.New("userstore: migration failed")

// Store is a SQLite-backed [edgeauth.UserProvider].
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ edgeauth.UserProvider = (*Store)(nil)

// Open opens the database at dsn. Accepted forms are a plain file path,
// "sqlite:///path" and "file:path". Open does not migrate; call Migrate
// before serving.
func Open(ctx context.Context, dsn string) (*Store, error) {
	path := normalizeDSN(dsn)
	if path == "" {
		return nil, errors.New("userstore: database path is required")
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func normalizeDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(dsn, "sqlite:///"):
		return strings.TrimPrefix(dsn, "sqlite:///")
	case strings.HasPrefix(dsn, "sqlite://"):
		return strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "file:"):
		return strings.TrimPrefix(dsn, "file:")
	}
	return dsn
}

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.db)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const principalColumns = "id, username, email, password_hash, role, role_version, is_active, created_at"

func (s *Store) CreatePrincipal(ctx context.Context, in edgeauth.CreatePrincipalInput) (edgeauth.PrincipalRecord, error) {
	rec := edgeauth.PrincipalRecord{
		Principal: edgeauth.Principal{
			ID:          uuid.NewString(),
			Username:    in.Username,
			Email:       in.Email,
			Role:        in.Role,
			Active:      true,
			CreatedAt:   s.now().UTC().Truncate(time.Second),
			RoleVersion: 1,
		},
		PasswordHash: in.PasswordHash,
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO principals(`+principalColumns+`)
VALUES(?, ?, ?, ?, ?, ?, 1, ?)`,
		rec.ID, rec.Username, rec.Email, rec.PasswordHash, string(rec.Role), rec.RoleVersion, rec.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return edgeauth.PrincipalRecord{}, edgeauth.ErrDuplicateRegistration
		}
		return edgeauth.PrincipalRecord{}, err
	}
	return rec, nil
}

func (s *Store) GetPrincipalByUsername(ctx context.Context, username string) (edgeauth.PrincipalRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+principalColumns+" FROM principals WHERE username = ?", username)
	return scanPrincipal(row)
}

func (s *Store) GetPrincipal(ctx context.Context, id string) (edgeauth.PrincipalRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+principalColumns+" FROM principals WHERE id = ?", id)
	return scanPrincipal(row)
}

// ListPrincipals returns principals in creation order.
func (s *Store) ListPrincipals(ctx context.Context, skip, limit int) ([]edgeauth.Principal, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+principalColumns+" FROM principals ORDER BY created_at, rowid LIMIT ? OFFSET ?",
		limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []edgeauth.Principal
	for rows.Next() {
		rec, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Principal)
	}
	return out, rows.Err()
}

// UpdateRole sets the role and increments role_version in one statement.
func (s *Store) UpdateRole(ctx context.Context, id string, role edgeauth.Role) (edgeauth.PrincipalRecord, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE principals SET role = ?, role_version = role_version + 1 WHERE id = ?",
		string(role), id)
	if err != nil {
		return edgeauth.PrincipalRecord{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return edgeauth.PrincipalRecord{}, err
	}
	if n == 0 {
		return edgeauth.PrincipalRecord{}, edgeauth.ErrNotFound
	}
	return s.GetPrincipal(ctx, id)
}

// SetActive enables or disables a principal. Disabled principals cannot log
// in and their sessions stop validating.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE principals SET is_active = ? WHERE id = ?", boolToInt(active), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return edgeauth.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row scanner) (edgeauth.PrincipalRecord, error) {
	var (
		rec       edgeauth.PrincipalRecord
		role      string
		active    int
		createdAt int64
	)
	err := row.Scan(&rec.ID, &rec.Username, &rec.Email, &rec.PasswordHash, &role, &rec.RoleVersion, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return edgeauth.PrincipalRecord{}, edgeauth.ErrNotFound
	}
	if err != nil {
		return edgeauth.PrincipalRecord{}, err
	}
	rec.Role = edgeauth.Role(role)
	rec.Active = active != 0
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
