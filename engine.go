package edgeauth

import (
	"time"

	"github.com/trackwise/edgeauth/internal/audit"
	"github.com/trackwise/edgeauth/internal/rate"
	"github.com/trackwise/edgeauth/jwt"
	"github.com/trackwise/edgeauth/password"
	"github.com/trackwise/edgeauth/session"
)

// Engine is the session authority. Build one with [New] and [Builder.Build];
// all methods are safe for concurrent use.
type Engine struct {
	config    Config
	sessions  *session.Store
	limiter   *rate.Limiter
	audit     *audit.Dispatcher
	metrics   *Metrics
	hasher    *password.Argon2
	dummyHash string
	tokens    *jwt.Manager
	users     UserProvider
	clock     func() time.Time
}

var _ AuthorityVerifier = (*Engine)(nil)

// Close flushes buffered audit events and stops the dispatcher. It does not
// close the Redis client or the user provider.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AccessTTL returns the configured token lifetime.
func (e *Engine) AccessTTL() time.Duration {
	return e.config.JWT.AccessTTL
}

func (e *Engine) ready() error {
	if e == nil || e.sessions == nil || e.users == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}
