package service

import (
	"context"
	"fmt"
	"time"

	"authcore/internal/logger"
	"authcore/internal/metrics"
	"authcore/internal/repository"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SessionReaper periodically marks expired token rows inactive. Session
// checks compare the expiration themselves, so the reaper only keeps the
// active set small.
type SessionReaper struct {
	tokens  repository.TokenRepository
	cron    *cron.Cron
	metrics *metrics.Metrics
	log     *logrus.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewSessionReaper schedules a sweep on spec (standard cron syntax or
// descriptors such as "@every 10m").
func NewSessionReaper(tokens repository.TokenRepository, spec string, m *metrics.Metrics, log *logrus.Logger) (*SessionReaper, error) {
	log = logger.OrStandard(log)
	r := &SessionReaper{
		tokens:  tokens,
		metrics: m,
		log:     log,
		now:     time.Now,
		timeout: 30 * time.Second,
	}
	r.cron = cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(log)),
		cron.SkipIfStillRunning(cron.PrintfLogger(log)),
	))
	if _, err := r.cron.AddFunc(spec, r.run); err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", spec, err)
	}
	return r, nil
}

func (r *SessionReaper) Start() { r.cron.Start() }

// Stop halts scheduling and returns a context done once a running sweep finishes.
func (r *SessionReaper) Stop() context.Context { return r.cron.Stop() }

func (r *SessionReaper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.Sweep(ctx); err != nil {
		r.log.WithError(err).Error("session sweep failed")
	}
}

// Sweep marks every active row whose expiration has passed inactive.
func (r *SessionReaper) Sweep(ctx context.Context) (int64, error) {
	n, err := r.tokens.InvalidateExpired(ctx, r.now())
	if err != nil {
		return 0, err
	}
	r.metrics.AddReaped(n)
	if n > 0 {
		r.log.WithField("count", n).Info("expired sessions reaped")
	}
	return n, nil
}
