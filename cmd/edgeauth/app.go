package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/trackwise/edgeauth"
	"github.com/trackwise/edgeauth/internal/audit"
	"github.com/trackwise/edgeauth/internal/config"
	"github.com/trackwise/edgeauth/internal/logging"
	"github.com/trackwise/edgeauth/userstore"
)

// authorityApp owns every handle the session authority needs.
type authorityApp struct {
	engine *edgeauth.Engine
	store  *userstore.Store
	redis  *redis.Client
	nats   *nats.Conn
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return rdb, nil
}

func openStore(ctx context.Context, dsn string, migrate bool) (*userstore.Store, error) {
	store, err := userstore.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

func auditSink(url string) (edgeauth.AuditSink, *nats.Conn, error) {
	logger := logging.Component("audit")
	logSink := audit.NewLogSink(logger)
	if url == "" {
		return logSink, nil, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("edgeauth-authority"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return audit.MultiSink{
		logSink,
		audit.NewNATSSink(nc, audit.DefaultSubjectPrefix, logger),
	}, nc, nil
}

// newAuthorityApp wires redis, the principal store, NATS and the engine.
func newAuthorityApp(ctx context.Context, s config.Settings, migrate bool) (*authorityApp, error) {
	cfg, err := s.Engine()
	if err != nil {
		return nil, err
	}

	app := &authorityApp{}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	if app.redis, err = openRedis(ctx, s.RedisURL); err != nil {
		return nil, err
	}
	if app.store, err = openStore(ctx, s.DatabaseURL, migrate); err != nil {
		return nil, err
	}
	sink, nc, err := auditSink(s.NATSURL)
	if err != nil {
		return nil, err
	}
	app.nats = nc

	app.engine, err = edgeauth.New().
		WithConfig(cfg).
		WithRedis(app.redis).
		WithUserProvider(app.store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}
	ok = true
	return app, nil
}

// Close releases handles in reverse order of acquisition. The engine goes
// first so queued audit events still reach NATS.
func (a *authorityApp) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.nats != nil {
		_ = a.nats.Drain()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// serve runs h on addr until ctx is cancelled, then shuts down with a 10s
// grace period.
func serve(ctx context.Context, name, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("service", name).Msgf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Str("service", name).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s forced to shut down: %w", name, err)
	}
	log.Info().Str("service", name).Msg("exited")
	return nil
}
