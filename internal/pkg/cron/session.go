package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/lock"
)

const expireJobName = "expire_stale_sessions"

type SessionJobs struct {
	store      session.Store
	locker     lock.Locker
	interval   time.Duration
	timeout    time.Duration
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// NewSessionJobs expires sessions whose last heartbeat is older than timeout,
// every interval. A nil locker runs on every tick.
func NewSessionJobs(store session.Store, locker lock.Locker, interval, timeout time.Duration) *SessionJobs {
	if locker == nil {
		locker = lock.Local{}
	}
	return &SessionJobs{
		store:      store,
		locker:     locker,
		interval:   interval,
		timeout:    timeout,
		maxRetries: 5,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

func (j *SessionJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob(expireJobName, j.interval, j.ExpireStaleSessions)
}

// ExpireStaleSessions runs one expiry pass. Transient storage errors are
// retried with exponential backoff.
func (j *SessionJobs) ExpireStaleSessions(ctx context.Context) error {
	ttl := j.interval / 2
	if ttl < time.Minute {
		ttl = time.Minute
	}

	release, ok, err := j.locker.TryLock(ctx, expireJobName, ttl)
	switch {
	case err != nil:
		// Expiry is idempotent without the lock.
		slog.Warn("Cron: lock unavailable, running expiry anyway", "error", err)
	case !ok:
		slog.Debug("Cron: expiry already running elsewhere, skipping")
		return nil
	default:
		defer release()
	}

	var expired int
	operation := func() error {
		n, err := j.store.CleanupExpiredSessions(ctx, j.timeout)
		if err != nil {
			if session.Kind(err) == session.KindTransient {
				return err
			}
			return backoff.Permanent(err)
		}
		expired = n
		return nil
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("Cron: expiry failed, retrying", "error", err, "retry_in", wait.String())
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(j.newBackOff(), j.maxRetries), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return fmt.Errorf("expire stale sessions: %w", err)
	}

	slog.Info("Cron: expired stale sessions", "count", expired, "timeout", j.timeout.String())
	return nil
}
