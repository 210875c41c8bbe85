package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "es")
	return store, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testRecord(pid string, now time.Time) Record {
	return Record{
		PrincipalID: pid,
		Subject:     "user-" + pid,
		IssuedAt:    now,
		ExpiresAt:   now.Add(30 * time.Minute),
		RoleVersion: 3,
	}
}

func TestCreateAndGet(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	revoked, err := store.Create(ctx, "tok-a", testRecord("p1", now), now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if revoked != 0 {
		t.Fatalf("expected no revoked sessions, got %d", revoked)
	}

	rec, err := store.Get(ctx, "tok-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.Active || rec.PrincipalID != "p1" || rec.Subject != "user-p1" || rec.RoleVersion != 3 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.ExpiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", rec.ExpiresAt)
	}

	// Raw tokens never appear in the key space.
	keys, err := rdb.Keys(ctx, "*tok-a*").Result()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("raw token leaked into keys: %v", keys)
	}
}

func TestGetUnknownToken(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRevokesPreviousSession(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if _, err := store.Create(ctx, "tok-a", testRecord("p1", now), now); err != nil {
		t.Fatalf("create a: %v", err)
	}
	revoked, err := store.Create(ctx, "tok-b", testRecord("p1", now.Add(time.Second)), now.Add(time.Second))
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if revoked != 1 {
		t.Fatalf("expected 1 revoked session, got %d", revoked)
	}

	a, err := store.Get(ctx, "tok-a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if a.Active || a.RevokedAt.IsZero() {
		t.Fatalf("expected tok-a revoked, got %+v", a)
	}
	b, err := store.Get(ctx, "tok-b")
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if !b.Active {
		t.Fatal("expected tok-b active")
	}

	count, err := store.ActiveCount(ctx, "p1")
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 active session, got %d", count)
	}
}

func TestCreateDoesNotTouchOtherPrincipals(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if _, err := store.Create(ctx, "tok-a", testRecord("p1", now), now); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := store.Create(ctx, "tok-b", testRecord("p2", now), now); err != nil {
		t.Fatalf("create b: %v", err)
	}

	a, err := store.Get(ctx, "tok-a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if !a.Active {
		t.Fatal("session of another principal must stay active")
	}
}

func TestConcurrentCreateLeavesOneActive(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Create(ctx, fmt.Sprintf("tok-%d", i), testRecord("p1", now), now)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	active := 0
	for i := 0; i < n; i++ {
		rec, err := store.Get(ctx, fmt.Sprintf("tok-%d", i))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if rec.Active {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active session, got %d", active)
	}
}

func TestRevokeIdempotent(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if _, err := store.Create(ctx, "tok-a", testRecord("p1", now), now); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec, changed, err := store.Revoke(ctx, "tok-a", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	if !changed || rec.Active || !rec.RevokedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected first revoke result: changed=%v rec=%+v", changed, rec)
	}

	rec, changed, err = store.Revoke(ctx, "tok-a", now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if changed {
		t.Fatal("second revoke must be a no-op")
	}
	if !rec.RevokedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("revocation time must not move, got %v", rec.RevokedAt)
	}

	if _, _, err := store.Revoke(ctx, "missing", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown token, got %v", err)
	}

	count, err := store.ActiveCount(ctx, "p1")
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no active sessions, got %d", count)
	}
}

func TestRevokeAll(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if _, err := store.Create(ctx, "tok-a", testRecord("p1", now), now); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := store.RevokeAll(ctx, "p1", now)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 revoked, got %d", n)
	}
	n, err = store.RevokeAll(ctx, "p1", now)
	if err != nil {
		t.Fatalf("second revoke all: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 revoked on repeat, got %d", n)
	}

	rec, err := store.Get(ctx, "tok-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Active {
		t.Fatal("expected session inactive after revoke all")
	}
}

func TestPurgeExpiredStrictlyBeforeNow(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	old := testRecord("p1", now.Add(-time.Hour)) // expires now-30m
	if _, err := store.Create(ctx, "tok-old", old, now.Add(-time.Hour)); err != nil {
		t.Fatalf("create old: %v", err)
	}
	edge := testRecord("p2", now.Add(-30*time.Minute)) // expires exactly now
	if _, err := store.Create(ctx, "tok-edge", edge, now); err != nil {
		t.Fatalf("create edge: %v", err)
	}
	fresh := testRecord("p3", now)
	if _, err := store.Create(ctx, "tok-fresh", fresh, now); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	n, err := store.PurgeExpired(ctx, now, 1)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged row, got %d", n)
	}

	if _, err := store.Get(ctx, "tok-old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected purged row gone, got %v", err)
	}
	if _, err := store.Get(ctx, "tok-edge"); err != nil {
		t.Fatalf("row expiring exactly at now must survive: %v", err)
	}
	if _, err := store.Get(ctx, "tok-fresh"); err != nil {
		t.Fatalf("fresh row must survive: %v", err)
	}
	if members, _ := rdb.SMembers(ctx, "es:u:p1").Result(); len(members) != 0 {
		t.Fatalf("expected purged digest removed from user index, got %v", members)
	}
}

func TestRedisFailureIsWrapped(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	rdb.Close()

	_, err := store.Create(context.Background(), "tok", testRecord("p1", time.Now()), time.Now())
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
