package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrine/internal/config"
	"vitrine/internal/events"
	"vitrine/internal/jobs"
	"vitrine/internal/metrics"
	"vitrine/internal/testsupport"
)

type countingJob struct {
	runs     atomic.Int32
	interval time.Duration
	err      error
	panics   bool
}

func (j *countingJob) Name() string            { return "counting" }
func (j *countingJob) Interval() time.Duration { return j.interval }
func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	if j.panics {
		panic("boom")
	}
	return j.err
}

func TestSchedulerRunsJobsUntilStopped(t *testing.T) {
	job := &countingJob{interval: 10 * time.Millisecond}
	s := jobs.NewScheduler(testsupport.GetLogger(), job)

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start(), "second start is a no-op")

	assert.Eventually(t, func() bool { return job.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())

	stopped := job.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, job.runs.Load(), "no runs after Stop")

	require.NoError(t, s.Start())
	assert.False(t, s.IsRunning(), "a stopped scheduler does not restart")
}

func TestSchedulerSurvivesFailingJobs(t *testing.T) {
	failing := &countingJob{interval: 10 * time.Millisecond, err: errors.New("failed")}
	panicking := &countingJob{interval: 10 * time.Millisecond, panics: true}
	s := jobs.NewScheduler(testsupport.GetLogger(), failing, panicking)

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool {
		return failing.runs.Load() >= 2 && panicking.runs.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestRunOnceStopsAtFirstError(t *testing.T) {
	first := &countingJob{err: errors.New("failed")}
	second := &countingJob{}
	s := jobs.NewScheduler(testsupport.GetLogger(), first, second)

	assert.Error(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), first.runs.Load())
	assert.Zero(t, second.runs.Load())
}

func TestSessionFinalizerJob(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, repo *events.Repository) {
		t.Helper()
		idle := now.Add(-time.Hour)
		require.NoError(t, repo.UpsertSession(ctx, &events.VisitorSession{
			VisitorID: "idle", SessionID: "s", PageViews: 1, SessionDuration: 12,
			FirstVisitAt: idle, LastActivityAt: idle,
		}))
		require.NoError(t, repo.UpsertSession(ctx, &events.VisitorSession{
			VisitorID: "active", SessionID: "s", PageViews: 1, SessionDuration: 12,
			FirstVisitAt: now, LastActivityAt: now,
		}))
	}

	t.Run("session_end mode finalizes idle sessions", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		cfg := *testsupport.TestConfig()
		cfg.BounceMode = config.BounceSessionEnd
		cfg.SessionTimeoutSeconds = 1800

		job := jobs.NewSessionFinalizerJob(dbManager, logger, &cfg).WithClock(func() time.Time { return now })
		seed(t, events.NewRepository(dbManager, logger, cfg.BounceMode))

		before := testutil.ToFloat64(metrics.SessionsFinalized)
		require.NoError(t, job.Run(ctx))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsFinalized)-before)

		var idle, active events.VisitorSession
		require.NoError(t, db.Where("visitor_id = ?", "idle").First(&idle).Error)
		require.NoError(t, db.Where("visitor_id = ?", "active").First(&active).Error)
		assert.NotNil(t, idle.FinalizedAt)
		assert.True(t, idle.IsBounce)
		assert.Nil(t, active.FinalizedAt)
	})

	t.Run("first_view mode is a no-op", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		cfg := *testsupport.TestConfig()
		cfg.BounceMode = config.BounceFirstView

		job := jobs.NewSessionFinalizerJob(dbManager, logger, &cfg).WithClock(func() time.Time { return now })
		seed(t, events.NewRepository(dbManager, logger, cfg.BounceMode))

		require.NoError(t, job.Run(ctx))

		var finalized int64
		require.NoError(t, db.Model(&events.VisitorSession{}).Where("finalized_at IS NOT NULL").Count(&finalized).Error)
		assert.Zero(t, finalized)
	})
}
