package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, cfg), mr
}

func TestLimiterBlocksAfterMaxAttempts(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxAttempts: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Check(ctx, "alice", ""); err != nil {
			t.Fatalf("attempt %d: unexpected %v", i, err)
		}
		if err := l.RecordFailure(ctx, "alice", ""); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if err := l.Check(ctx, "Alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Check(ctx, "bob", ""); err != nil {
		t.Fatalf("other usernames must not be throttled: %v", err)
	}
}

func TestLimiterWindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxAttempts: 1, Cooldown: time.Minute})
	ctx := context.Background()

	if err := l.RecordFailure(ctx, "alice", ""); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := l.Check(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.Check(ctx, "alice", ""); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestLimiterIPThrottleAndReset(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxAttempts: 2, Cooldown: time.Minute, EnableIPThrottle: true})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "alice", "10.0.0.1")
	_ = l.RecordFailure(ctx, "bob", "10.0.0.1")
	if err := l.Check(ctx, "carol", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}

	if err := l.Reset(ctx, "carol", "10.0.0.1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.Check(ctx, "carol", "10.0.0.1"); err != nil {
		t.Fatalf("expected reset to clear IP counter, got %v", err)
	}
}
