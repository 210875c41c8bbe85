package janitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/trackwise/edgeauth/internal/logging"
)

// Purger deletes expired sessions. *edgeauth.Engine implements it.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Janitor runs a Purger on a fixed interval. Purging is housekeeping only:
// expired sessions already fail validation, so a failed run is logged and
// retried on the next tick.
type Janitor struct {
	purger   Purger
	interval time.Duration
	logger   zerolog.Logger
}

func New(p Purger, interval time.Duration) *Janitor {
	return &Janitor{
		purger:   p,
		interval: interval,
		logger:   logging.Component("janitor"),
	}
}

// Run blocks until ctx is done. A non-positive interval disables the loop.
func (j *Janitor) Run(ctx context.Context) error {
	if j.interval <= 0 {
		j.logger.Info().Msg("janitor.disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	t := time.NewTicker(j.interval)
	defer t.Stop()
	j.logger.Info().Dur("interval", j.interval).Msg("janitor.started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}

// RunOnce purges once and logs the outcome.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		j.logger.Warn().Err(err).Msg("janitor.purge_failed")
		return 0, err
	}
	ev := j.logger.Debug()
	if n > 0 {
		ev = j.logger.Info()
	}
	ev.Int("purged", n).Dur("elapsed", time.Since(start)).Msg("janitor.purged")
	return n, nil
}
