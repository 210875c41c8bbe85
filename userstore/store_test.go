package userstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/trackwise/edgeauth"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "principals.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func createTestPrincipal(t *testing.T, s *Store, username string) edgeauth.PrincipalRecord {
	t.Helper()
	rec, err := s.CreatePrincipal(context.Background(), edgeauth.CreatePrincipalInput{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash-" + username,
		Role:         edgeauth.RoleObserver,
	})
	if err != nil {
		t.Fatalf("CreatePrincipal(%s): %v", username, err)
	}
	return rec
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recorded migration, got %d", n)
	}
}

func TestMigrateFailsLoudly(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "broken.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	// A conflicting table makes the first migration fail.
	if _, err := s.db.Exec("CREATE TABLE principals (id TEXT)"); err != nil {
		t.Fatalf("seed conflict: %v", err)
	}
	if err := s.Migrate(ctx); !errors.Is(err, ErrMigration) {
		t.Fatalf("expected ErrMigration, got %v", err)
	}
}

func TestCreateAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := createTestPrincipal(t, s, "alice")
	if created.ID == "" || created.RoleVersion != 1 || !created.Active {
		t.Fatalf("unexpected created record: %+v", created)
	}

	byName, err := s.GetPrincipalByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetPrincipalByUsername: %v", err)
	}
	if byName.ID != created.ID || byName.PasswordHash != "hash-alice" || byName.Role != edgeauth.RoleObserver {
		t.Fatalf("unexpected record: %+v", byName)
	}
	if !byName.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("created_at mismatch: %v vs %v", byName.CreatedAt, created.CreatedAt)
	}

	byID, err := s.GetPrincipal(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetPrincipal: %v", err)
	}
	if byID.Username != "alice" {
		t.Fatalf("unexpected username %q", byID.Username)
	}

	if _, err := s.GetPrincipal(ctx, "missing"); !errors.Is(err, edgeauth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetPrincipalByUsername(ctx, "missing"); !errors.Is(err, edgeauth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := openTestStore(t)
	createTestPrincipal(t, s, "alice")

	tests := []struct {
		name string
		in   edgeauth.CreatePrincipalInput
	}{
		{"same username", edgeauth.CreatePrincipalInput{Username: "alice", Email: "x@example.com", PasswordHash: "h", Role: edgeauth.RoleObserver}},
		{"same email", edgeauth.CreatePrincipalInput{Username: "other", Email: "alice@example.com", PasswordHash: "h", Role: edgeauth.RoleObserver}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreatePrincipal(context.Background(), tt.in); !errors.Is(err, edgeauth.ErrDuplicateRegistration) {
				t.Fatalf("expected ErrDuplicateRegistration, got %v", err)
			}
		})
	}
}

func TestUpdateRoleBumpsVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createTestPrincipal(t, s, "alice")

	rec, err := s.UpdateRole(ctx, alice.ID, edgeauth.RoleManager)
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if rec.Role != edgeauth.RoleManager || rec.RoleVersion != 2 {
		t.Fatalf("unexpected record after update: %+v", rec)
	}

	// Same role again still advances the version.
	rec, err = s.UpdateRole(ctx, alice.ID, edgeauth.RoleManager)
	if err != nil {
		t.Fatalf("UpdateRole repeat: %v", err)
	}
	if rec.RoleVersion != 3 {
		t.Fatalf("expected version 3, got %d", rec.RoleVersion)
	}

	if _, err := s.UpdateRole(ctx, "missing", edgeauth.RoleAdmin); !errors.Is(err, edgeauth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPrincipalsOrderAndPaging(t *testing.T) {
	s := openTestStore(t)
	base := time.Unix(1_700_000_000, 0)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		createTestPrincipal(t, s, name)
	}

	all, err := s.ListPrincipals(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("ListPrincipals: %v", err)
	}
	if len(all) != 3 || all[0].Username != "alice" || all[2].Username != "carol" {
		t.Fatalf("unexpected listing: %+v", all)
	}

	page, err := s.ListPrincipals(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("ListPrincipals page: %v", err)
	}
	if len(page) != 1 || page[0].Username != "bob" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestSetActive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createTestPrincipal(t, s, "alice")

	if err := s.SetActive(ctx, alice.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	rec, err := s.GetPrincipal(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetPrincipal: %v", err)
	}
	if rec.Active {
		t.Fatal("expected principal inactive")
	}
	if err := s.SetActive(ctx, "missing", true); !errors.Is(err, edgeauth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNormalizeDSN(t *testing.T) {
	tests := map[string]string{
		"sqlite:///./app.db": "./app.db",
		"sqlite://app.db":    "app.db",
		"file:app.db":        "app.db",
		" /var/lib/x.db ":    "/var/lib/x.db",
	}
	for in, want := range tests {
		if got := normalizeDSN(in); got != want {
			t.Fatalf("normalizeDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
