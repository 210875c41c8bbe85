package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/trackwise/edgeauth"
	"github.com/trackwise/edgeauth/userstore"
)

type principalState struct {
	username string
	mu       sync.Mutex
	token    string
}

func main() {
	var (
		principals  = pflag.Int("principals", 1000, "number of principals to register")
		concurrency = pflag.Int("concurrency", 128, "number of concurrent workers")
		ops         = pflag.Int("ops", 50000, "operations per phase")
		redisURL    = pflag.String("redis-url", "", "redis URL; if empty, REDIS_URL env or miniredis is used")
		prefix      = pflag.String("prefix", "lt", "session key prefix")
	)
	pflag.Parse()

	if *principals <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "principals, concurrency, and ops must be > 0")
		os.Exit(2)
	}
	if err := run(*principals, *concurrency, *ops, *redisURL, *prefix); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(principals, concurrency, ops int, redisURL, prefix string) error {
	ctx := context.Background()

	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	var client *redis.Client
	if redisURL == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
		fmt.Printf("using redis at %s\n", opt.Addr)
	}
	defer client.Close()

	dir, err := os.MkdirTemp("", "edgeauth-loadtest-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	store, err := userstore.Open(ctx, filepath.Join(dir, "principals.db"))
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	cfg := edgeauth.DefaultConfig()
	cfg.JWT.Secret = []byte("loadtest-secret")
	cfg.Session.RedisPrefix = prefix
	cfg.Metrics.EnableLatencyHistograms = true
	// cheap hashing so the login phase measures the session store
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := edgeauth.New().WithConfig(cfg).WithRedis(client).WithUserProvider(store).Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	states := make([]principalState, principals)
	fmt.Printf("registering %d principals...\n", principals)
	startSeed := time.Now()
	for i := range states {
		name := fmt.Sprintf("user%06d", i)
		states[i].username = name
		if _, err := engine.Register(ctx, edgeauth.NewPrincipal{
			Username: name,
			Email:    name + "@loadtest.local",
			Password: passwordFor(name),
		}); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	fmt.Printf("registered in %s\n", time.Since(startSeed).Round(time.Millisecond))

	issueStats := runPhase(ops, concurrency, func(r *rand.Rand) error {
		st := &states[r.IntN(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		tok, err := engine.Issue(ctx, st.username, passwordFor(st.username))
		if err != nil {
			return err
		}
		st.token = tok.AccessToken
		return nil
	})

	validateStats := runPhase(ops, concurrency, func(r *rand.Rand) error {
		st := &states[r.IntN(len(states))]
		st.mu.Lock()
		tok := st.token
		st.mu.Unlock()
		if tok == "" {
			return nil
		}
		_, err := engine.Validate(ctx, tok)
		return err
	})

	snap := engine.MetricsSnapshot()
	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("validate", validateStats)
	fmt.Printf("superseded=%d validate_success=%d validate_revoked=%d\n",
		snap.Counters[edgeauth.MetricSessionSuperseded],
		snap.Counters[edgeauth.MetricValidateSuccess],
		snap.Counters[edgeauth.MetricValidateRevoked],
	)
	return nil
}

func passwordFor(username string) string {
	return "pw-" + username + "-loadtest"
}

// runPhase runs op ops times across concurrency workers and records each
// call's latency.
func runPhase(ops, concurrency int, op func(*rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, ops)
	)

	start := time.Now()
	for w := range concurrency {
		wg.Go(func() {
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(w)*7919))
			local := make([]time.Duration, 0, ops/concurrency+1)
			for cursor.Add(1) <= int64(ops) {
				t0 := time.Now()
				if err := op(r); err != nil {
					failures.Add(1)
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		})
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	slices.Sort(samples)
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
