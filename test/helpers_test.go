//go:build integration
// +build integration

package test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/trackwise/edgeauth"
	"github.com/trackwise/edgeauth/authclient"
	"github.com/trackwise/edgeauth/bearer"
	"github.com/trackwise/edgeauth/gateway"
	"github.com/trackwise/edgeauth/internal/api/authority"
	"github.com/trackwise/edgeauth/jwt"
	"github.com/trackwise/edgeauth/middleware"
	"github.com/trackwise/edgeauth/userstore"
)

const stackSecret = "integration-secret"

// redisMode describes which Redis backend a suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes returns miniredis, plus a real standalone Redis when REDIS_ADDR
// is set and a sentinel-managed one when REDIS_SENTINEL_ADDRS is set.
// Cluster mode is not listed: the session scripts build keys from arguments.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close() })
				return rdb
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
				return rdb
			},
		})
	}

	if addrs := os.Getenv("REDIS_SENTINEL_ADDRS"); addrs != "" {
		master := os.Getenv("REDIS_SENTINEL_MASTER")
		if master == "" {
			master = "mymaster"
		}
		modes = append(modes, redisMode{
			name: "sentinel",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewFailoverClient(&redis.FailoverOptions{
					MasterName:    master,
					SentinelAddrs: splitAddrs(addrs),
				})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis sentinel: %v", err)
				}
				rdb.FlushDB(context.Background())
				t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
				return rdb
			},
		})
	}
	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// stack is a running gateway in front of the authority and three resource
// services. The defects service checks every token with the authority; the
// projects service trusts the gateway.
type stack struct {
	engine    *edgeauth.Engine
	users     *userstore.Store
	gateway   *httptest.Server
	authority *httptest.Server
	defects   *httptest.Server
}

func newStack(t *testing.T, rdb redis.UniversalClient) *stack {
	t.Helper()
	ctx := context.Background()

	users, err := userstore.Open(ctx, filepath.Join(t.TempDir(), "principals.db"))
	if err != nil {
		t.Fatalf("userstore open: %v", err)
	}
	t.Cleanup(func() { _ = users.Close() })
	if err := users.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := edgeauth.DefaultConfig()
	cfg.JWT.Secret = []byte(stackSecret)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	engine, err := edgeauth.New().WithConfig(cfg).WithRedis(rdb).WithUserProvider(users).Build()
	if err != nil {
		t.Fatalf("engine build: %v", err)
	}
	t.Cleanup(engine.Close)

	authSrv := httptest.NewServer(authority.New(engine, nil).Routes())
	t.Cleanup(authSrv.Close)

	client, err := authclient.New(authSrv.URL)
	if err != nil {
		t.Fatalf("authclient: %v", err)
	}
	defectsSrv := httptest.NewServer(middleware.RequireAuthority(client)(http.HandlerFunc(echoPrincipal)))
	t.Cleanup(defectsSrv.Close)

	projectsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}))
	t.Cleanup(projectsSrv.Close)

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		Secret:        []byte(stackSecret),
	})
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	gw, err := gateway.New(gateway.Config{
		Upstreams: gateway.Upstreams{
			Auth:     authSrv.URL,
			Projects: projectsSrv.URL,
			Defects:  defectsSrv.URL,
			// nothing listens here
			Reports: "http://127.0.0.1:1",
		},
		Timeout:        5 * time.Second,
		AllowedOrigins: []string{"http://localhost:3000"},
	}, bearer.NewVerifier(tokens))
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	gwSrv := httptest.NewServer(gw)
	t.Cleanup(gwSrv.Close)

	return &stack{
		engine:    engine,
		users:     users,
		gateway:   gwSrv,
		authority: authSrv,
		defects:   defectsSrv,
	}
}

func echoPrincipal(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"username":"` + p.Username + `","role":"` + string(p.Role) + `"}`))
}
