package edgeauth

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trackwise/edgeauth/internal/audit"
	"github.com/trackwise/edgeauth/internal/rate"
	"github.com/trackwise/edgeauth/jwt"
	"github.com/trackwise/edgeauth/password"
	"github.com/trackwise/edgeauth/session"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config       Config
	redis        redis.UniversalClient
	userProvider UserProvider
	auditSink    AuditSink
	clock        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the session store and login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets where audit events go. Events are only dispatched when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the wall clock used for token issuance, expiry checks
// and revocation timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	cfg := cloneConfig(b.config)
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	// -------- TOKENS --------
	method, err := jwt.ParseSigningMethod(cfg.JWT.SigningMethod)
	if err != nil {
		return nil, err
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: method,
		Secret:        cfg.JWT.Secret,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		Now:           clock,
	})
	if err != nil {
		return nil, err
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}
	// Unknown usernames are verified against this hash so both failure
	// paths cost one argon2 evaluation.
	dummyHash, err := hasher.Hash("edgeauth-timing-equalizer")
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:    cfg,
		sessions:  session.NewStore(b.redis, cfg.Session.RedisPrefix),
		metrics:   NewMetrics(cfg.Metrics),
		hasher:    hasher,
		dummyHash: dummyHash,
		tokens:    tokens,
		users:     b.userProvider,
		clock:     clock,
	}

	if cfg.Security.EnableLoginThrottle {
		e.limiter = rate.New(b.redis, rate.Config{
			Prefix:           cfg.Session.RedisPrefix,
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
			MaxAttempts:      cfg.Security.MaxLoginAttempts,
			Cooldown:         cfg.Security.LoginCooldownDuration,
		})
	}

	e.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true
	return e, nil
}
