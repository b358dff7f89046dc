package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"entitlement-service/internal/domain/subscription"
	"entitlement-service/internal/pkg/clock"
	xerrors "entitlement-service/internal/pkg/errors"
)

type fakeEngine struct {
	sweeps    atomic.Int32
	scans     atomic.Int32
	sweepErr  error
	sweepHook func(ctx context.Context)
}

func (e *fakeEngine) CheckExpiredSubscriptions(ctx context.Context) (*subscription.SweepResult, error) {
	e.sweeps.Add(1)
	if e.sweepHook != nil {
		e.sweepHook(ctx)
	}
	return &subscription.SweepResult{}, e.sweepErr
}

func (e *fakeEngine) SendExpirationReminders(context.Context) (*subscription.ReminderResult, error) {
	e.scans.Add(1)
	return &subscription.ReminderResult{}, nil
}

type denyLocker struct{}

func (denyLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, nil
}

func newScheduler(t *testing.T, engine Engine, cfg Config, locker Locker) *Scheduler {
	t.Helper()
	s, err := New(engine, cfg, locker, clock.New(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func statusOf(s *Scheduler, name string) JobStatus {
	for _, st := range s.Jobs() {
		if st.Name == name {
			return st
		}
	}
	return JobStatus{}
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	_, err := New(&fakeEngine{}, Config{ExpirySweepSpec: "every tuesday"}, nil, clock.New(), zap.NewNop())
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestStartRunsImmediateSweepAndSchedulesJobs(t *testing.T) {
	engine := &fakeEngine{}
	s := newScheduler(t, engine, Config{RunOnStart: true}, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.EqualValues(t, 1, engine.sweeps.Load())
	assert.EqualValues(t, 0, engine.scans.Load())

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, JobExpirySweep, jobs[0].Name)
	assert.Equal(t, DefaultExpirySweepSpec, jobs[0].Spec)
	assert.Equal(t, JobNearExpiryScan, jobs[1].Name)
	for _, st := range jobs {
		assert.True(t, st.Scheduled, st.Name)
		assert.NotNil(t, st.NextRun, st.Name)
	}
	assert.NotNil(t, jobs[0].LastRun)

	require.NoError(t, s.Start(context.Background()))
	assert.EqualValues(t, 1, engine.sweeps.Load(), "second Start is a no-op")
}

func TestJobsStopAndStartIndependently(t *testing.T) {
	s := newScheduler(t, &fakeEngine{}, Config{}, nil)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.StopJob(JobNearExpiryScan))
	assert.False(t, statusOf(s, JobNearExpiryScan).Scheduled)
	assert.Nil(t, statusOf(s, JobNearExpiryScan).NextRun)
	assert.True(t, statusOf(s, JobExpirySweep).Scheduled)

	require.NoError(t, s.StopJob(JobNearExpiryScan))
	require.NoError(t, s.StartJob(JobNearExpiryScan))
	assert.True(t, statusOf(s, JobNearExpiryScan).Scheduled)

	assert.ErrorIs(t, s.StopJob("weekly-report"), xerrors.ErrNotFound)
	assert.ErrorIs(t, s.StartJob("weekly-report"), xerrors.ErrNotFound)
}

func TestScheduledJobFires(t *testing.T) {
	engine := &fakeEngine{}
	s := newScheduler(t, engine, Config{NearExpiryScanSpec: "@every 1s"}, nil)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return engine.scans.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestRestartAfterStop(t *testing.T) {
	engine := &fakeEngine{}
	s := newScheduler(t, engine, Config{RunOnStart: true, NearExpiryScanSpec: "@every 1s"}, nil)
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	scans := engine.scans.Load()

	require.NoError(t, s.Start(context.Background()))
	assert.EqualValues(t, 2, engine.sweeps.Load(), "restart runs the startup sweep again")
	for _, st := range s.Jobs() {
		assert.True(t, st.Scheduled, st.Name)
	}
	assert.Eventually(t, func() bool { return engine.scans.Load() > scans }, 3*time.Second, 50*time.Millisecond)
}

func TestRunNowRecordsErrorsAndPanics(t *testing.T) {
	engine := &fakeEngine{sweepErr: errors.New("store unavailable")}
	s := newScheduler(t, engine, Config{}, nil)

	err := s.RunNow(context.Background(), JobExpirySweep)
	require.Error(t, err)
	assert.Equal(t, "store unavailable", statusOf(s, JobExpirySweep).LastError)

	engine.sweepErr = nil
	engine.sweepHook = func(context.Context) { panic("boom") }
	err = s.RunNow(context.Background(), JobExpirySweep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	engine.sweepHook = nil
	require.NoError(t, s.RunNow(context.Background(), JobExpirySweep))
	assert.Empty(t, statusOf(s, JobExpirySweep).LastError)

	assert.ErrorIs(t, s.RunNow(context.Background(), "nope"), xerrors.ErrNotFound)
}

func TestRunsDoNotOverlap(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	engine := &fakeEngine{}
	engine.sweepHook = func(context.Context) {
		close(entered)
		<-release
	}
	s := newScheduler(t, engine, Config{}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.RunNow(context.Background(), JobExpirySweep))
	}()
	<-entered

	assert.True(t, statusOf(s, JobExpirySweep).Running)
	assert.ErrorIs(t, s.RunNow(context.Background(), JobExpirySweep), ErrJobRunning)
	require.NoError(t, s.RunNow(context.Background(), JobNearExpiryScan), "other jobs are unaffected")

	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, engine.sweeps.Load())
	assert.False(t, statusOf(s, JobExpirySweep).Running)
}

func TestLeaseHeldElsewhereSkipsRun(t *testing.T) {
	engine := &fakeEngine{}
	s := newScheduler(t, engine, Config{}, denyLocker{})

	assert.ErrorIs(t, s.RunNow(context.Background(), JobExpirySweep), ErrLeaseHeld)
	assert.EqualValues(t, 0, engine.sweeps.Load())
}

func TestJobTimeoutBoundsRun(t *testing.T) {
	engine := &fakeEngine{}
	engine.sweepHook = func(ctx context.Context) { <-ctx.Done() }
	s := newScheduler(t, engine, Config{JobTimeout: 20 * time.Millisecond}, nil)

	require.NoError(t, s.RunNow(context.Background(), JobExpirySweep))
	assert.EqualValues(t, 1, engine.sweeps.Load())
}
