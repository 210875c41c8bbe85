package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/trackwise/edgeauth"
	"github.com/trackwise/edgeauth/gateway"
)

// Keys. Each is bound to the environment variable in envNames.
const (
	GatewayAddrKey     = "gateway.addr"
	AuthorityAddrKey   = "authority.addr"
	AuthURLKey         = "upstream.auth"
	ProjectsURLKey     = "upstream.projects"
	DefectsURLKey      = "upstream.defects"
	ReportsURLKey      = "upstream.reports"
	UpstreamTimeoutKey = "upstream.timeout"
	AllowedOriginsKey  = "cors.allowed_origins"
	SecretKeyKey       = "jwt.secret"
	JWTAlgKey          = "jwt.alg"
	AccessTTLMinKey    = "jwt.access_minutes"
	DatabaseURLKey     = "database.url"
	RedisURLKey        = "redis.url"
	RedisPrefixKey     = "redis.prefix"
	NATSURLKey         = "nats.url"
	PurgeIntervalKey   = "session.purge_interval"
	LoginThrottleKey   = "security.login_throttle"
	LogLevelKey        = "log.level"
	LogFormatKey       = "log.format"
	LogNoColorKey      = "log.no_color"
)

var envNames = map[string]string{
	GatewayAddrKey:     "GATEWAY_ADDR",
	AuthorityAddrKey:   "AUTHORITY_ADDR",
	AuthURLKey:         "AUTH_SERVICE_URL",
	ProjectsURLKey:     "PROJECTS_SERVICE_URL",
	DefectsURLKey:      "DEFECTS_SERVICE_URL",
	ReportsURLKey:      "REPORTS_SERVICE_URL",
	UpstreamTimeoutKey: "UPSTREAM_TIMEOUT",
	AllowedOriginsKey:  "ALLOWED_ORIGINS",
	SecretKeyKey:       "SECRET_KEY",
	JWTAlgKey:          "JWT_ALG",
	AccessTTLMinKey:    "ACCESS_TOKEN_EXPIRE_MINUTES",
	DatabaseURLKey:     "DATABASE_URL",
	RedisURLKey:        "REDIS_URL",
	RedisPrefixKey:     "REDIS_PREFIX",
	NATSURLKey:         "NATS_URL",
	PurgeIntervalKey:   "PURGE_INTERVAL",
	LoginThrottleKey:   "LOGIN_THROTTLE",
	LogLevelKey:        "LOG_LEVEL",
	LogFormatKey:       "LOG_FORMAT",
	LogNoColorKey:      "LOG_NO_COLOR",
}

var defaults = map[string]any{
	GatewayAddrKey:     ":8000",
	AuthorityAddrKey:   ":8001",
	AuthURLKey:         "http://localhost:8001",
	ProjectsURLKey:     "http://localhost:8002",
	DefectsURLKey:      "http://localhost:8003",
	ReportsURLKey:      "http://localhost:8004",
	UpstreamTimeoutKey: gateway.DefaultTimeout,
	AllowedOriginsKey:  "http://localhost:3000",
	JWTAlgKey:          "HS256",
	AccessTTLMinKey:    30,
	DatabaseURLKey:     "sqlite:///./auth.db",
	RedisURLKey:        "redis://localhost:6379/0",
	RedisPrefixKey:     "es",
	NATSURLKey:         "",
	PurgeIntervalKey:   10 * time.Minute,
	LoginThrottleKey:   false,
	LogLevelKey:        "info",
	LogFormatKey:       "console",
	LogNoColorKey:      false,
}

// ErrSecretMissing is returned when a command that signs or verifies tokens
// runs without SECRET_KEY.
var ErrSecretMissing = errors.New("config: SECRET_KEY is required")

// Bind installs defaults and environment bindings on v.
func Bind(v *viper.Viper) {
	for key, def := range defaults {
		v.SetDefault(key, def)
	}
	for key, env := range envNames {
		_ = v.BindEnv(key, env)
	}
}

// Settings is the resolved process configuration.
type Settings struct {
	GatewayAddr     string
	AuthorityAddr   string
	Upstreams       gateway.Upstreams
	UpstreamTimeout time.Duration
	AllowedOrigins  []string

	Secret        string
	JWTAlg        string
	AccessTTL     time.Duration
	DatabaseURL   string
	RedisURL      string
	RedisPrefix   string
	NATSURL       string
	PurgeInterval time.Duration
	LoginThrottle bool

	LogLevel   string
	LogFormat  string
	LogNoColor bool
}

// Load reads Settings from v. Bind must have been called.
func Load(v *viper.Viper) (Settings, error) {
	s := Settings{
		GatewayAddr:   v.GetString(GatewayAddrKey),
		AuthorityAddr: v.GetString(AuthorityAddrKey),
		Upstreams: gateway.Upstreams{
			Auth:     v.GetString(AuthURLKey),
			Projects: v.GetString(ProjectsURLKey),
			Defects:  v.GetString(DefectsURLKey),
			Reports:  v.GetString(ReportsURLKey),
		},
		UpstreamTimeout: v.GetDuration(UpstreamTimeoutKey),
		AllowedOrigins:  splitList(v.GetString(AllowedOriginsKey)),
		Secret:          v.GetString(SecretKeyKey),
		JWTAlg:          strings.ToUpper(strings.TrimSpace(v.GetString(JWTAlgKey))),
		AccessTTL:       time.Duration(v.GetInt(AccessTTLMinKey)) * time.Minute,
		DatabaseURL:     v.GetString(DatabaseURLKey),
		RedisURL:        v.GetString(RedisURLKey),
		RedisPrefix:     v.GetString(RedisPrefixKey),
		NATSURL:         strings.TrimSpace(v.GetString(NATSURLKey)),
		PurgeInterval:   v.GetDuration(PurgeIntervalKey),
		LoginThrottle:   v.GetBool(LoginThrottleKey),
		LogLevel:        v.GetString(LogLevelKey),
		LogFormat:       v.GetString(LogFormatKey),
		LogNoColor:      v.GetBool(LogNoColorKey),
	}
	if s.AccessTTL <= 0 {
		return Settings{}, fmt.Errorf("config: ACCESS_TOKEN_EXPIRE_MINUTES must be > 0")
	}
	if s.UpstreamTimeout <= 0 {
		return Settings{}, fmt.Errorf("config: UPSTREAM_TIMEOUT must be > 0")
	}
	return s, nil
}

// Engine derives the session authority configuration.
func (s Settings) Engine() (edgeauth.Config, error) {
	if s.Secret == "" {
		return edgeauth.Config{}, ErrSecretMissing
	}
	cfg := edgeauth.DefaultConfig()
	cfg.JWT.Secret = []byte(s.Secret)
	cfg.JWT.SigningMethod = s.JWTAlg
	cfg.JWT.AccessTTL = s.AccessTTL
	cfg.Session.RedisPrefix = s.RedisPrefix
	cfg.Session.PurgeInterval = s.PurgeInterval
	cfg.Security.EnableLoginThrottle = s.LoginThrottle
	cfg.Audit.Enabled = true
	if err := cfg.Validate(); err != nil {
		return edgeauth.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Gateway derives the edge gateway configuration.
func (s Settings) Gateway() gateway.Config {
	return gateway.Config{
		Upstreams:      s.Upstreams,
		Timeout:        s.UpstreamTimeout,
		AllowedOrigins: s.AllowedOrigins,
	}
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
