package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"vitrine/internal/config"
	"vitrine/internal/events"
	"vitrine/internal/metrics"
)

const finalizerBatchSize = 500

// SessionFinalizerJob settles the bounce flag of idle sessions. It only
// does work in session_end bounce mode.
type SessionFinalizerJob struct {
	repo     *events.Repository
	logger   *slog.Logger
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewSessionFinalizerJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *SessionFinalizerJob {
	return &SessionFinalizerJob{
		repo:     events.NewRepository(dbManager, logger, cfg.BounceMode),
		logger:   logger,
		timeout:  cfg.SessionTimeout(),
		interval: time.Duration(cfg.JobIntervalSeconds) * time.Second,
		now:      time.Now,
	}
}

// WithClock replaces the clock used to compute the idle cutoff.
func (j *SessionFinalizerJob) WithClock(now func() time.Time) *SessionFinalizerJob {
	j.now = now
	return j
}

func (j *SessionFinalizerJob) Name() string { return "session_finalizer" }

func (j *SessionFinalizerJob) Interval() time.Duration { return j.interval }

// Run finalizes idle sessions batch by batch until none are left.
func (j *SessionFinalizerJob) Run(ctx context.Context) error {
	if j.repo.BounceMode() != config.BounceSessionEnd {
		return nil
	}

	cutoff := j.now().UTC().Add(-j.timeout)
	var total int64
	for {
		n, err := j.repo.FinalizeIdleSessions(ctx, cutoff, finalizerBatchSize)
		if err != nil {
			return err
		}
		total += n
		metrics.SessionsFinalized.Add(float64(n))
		if n < finalizerBatchSize || ctx.Err() != nil {
			break
		}
	}

	if total > 0 {
		j.logger.Info("Finalized idle sessions",
			slog.Int64("count", total),
			slog.Time("cutoff", cutoff))
	}
	return nil
}
