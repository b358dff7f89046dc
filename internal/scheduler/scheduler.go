// Package scheduler runs the lifecycle engine's time-driven jobs on a single
// cron with named, individually controllable entries.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"entitlement-service/internal/domain/subscription"
	"entitlement-service/internal/pkg/clock"
	xerrors "entitlement-service/internal/pkg/errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	JobExpirySweep    = "daily-expiry-sweep"
	JobNearExpiryScan = "hourly-near-expiry-scan"

	DefaultExpirySweepSpec    = "0 0 2 * * *"
	DefaultNearExpiryScanSpec = "0 0 * * * *"
)

var (
	ErrJobRunning = errors.New("job is already running")
	ErrLeaseHeld  = errors.New("job lease is held by another instance")
)

// Engine is the subset of the lifecycle engine the jobs drive.
type Engine interface {
	CheckExpiredSubscriptions(ctx context.Context) (*subscription.SweepResult, error)
	SendExpirationReminders(ctx context.Context) (*subscription.ReminderResult, error)
}

// Locker grants a short lease so only one instance runs a job at a time.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

type Config struct {
	ExpirySweepSpec    string
	NearExpiryScanSpec string
	Location           *time.Location
	JobTimeout         time.Duration
	LockTTL            time.Duration
	// RunOnStart triggers an expiry sweep before the cadence begins.
	RunOnStart bool
}

func (c *Config) setDefaults() {
	if c.ExpirySweepSpec == "" {
		c.ExpirySweepSpec = DefaultExpirySweepSpec
	}
	if c.NearExpiryScanSpec == "" {
		c.NearExpiryScanSpec = DefaultNearExpiryScanSpec
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = c.JobTimeout + time.Minute
	}
}

// JobStatus is a point-in-time view of one job.
type JobStatus struct {
	Name         string     `json:"name"`
	Spec         string     `json:"spec"`
	Scheduled    bool       `json:"scheduled"`
	Running      bool       `json:"running"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	LastDuration string     `json:"lastDuration,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	NextRun      *time.Time `json:"nextRun,omitempty"`
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error

	runMu sync.Mutex

	mu           sync.Mutex
	entryID      cron.EntryID
	running      bool
	lastRun      time.Time
	lastDuration time.Duration
	lastErr      error
}

type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]*job
	locker Locker
	clock  clock.Clock
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	started bool
}

var specParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New builds the scheduler with both jobs registered but not yet scheduled.
// locker may be nil for single-instance deployments.
func New(engine Engine, cfg Config, locker Locker, clk clock.Clock, logger *zap.Logger) (*Scheduler, error) {
	cfg.setDefaults()
	for _, spec := range []string{cfg.ExpirySweepSpec, cfg.NearExpiryScanSpec} {
		if _, err := specParser.Parse(spec); err != nil {
			return nil, xerrors.Invalid("invalid cron spec %q: %v", spec, err)
		}
	}

	cl := cronLogger{logger: logger.Named("cron")}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(specParser),
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   make(map[string]*job),
		locker: locker,
		clock:  clk,
		cfg:    cfg,
		logger: logger,
	}

	s.register(JobExpirySweep, cfg.ExpirySweepSpec, func(ctx context.Context) error {
		_, err := engine.CheckExpiredSubscriptions(ctx)
		return err
	})
	s.register(JobNearExpiryScan, cfg.NearExpiryScanSpec, func(ctx context.Context) error {
		_, err := engine.SendExpirationReminders(ctx)
		return err
	})
	return s, nil
}

func (s *Scheduler) register(name, spec string, run func(ctx context.Context) error) {
	s.jobs[name] = &job{name: name, spec: spec, run: run}
}

// Start runs the startup sweep, schedules every job and starts the cron.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if s.cfg.RunOnStart {
		if err := s.RunNow(ctx, JobExpirySweep); err != nil {
			s.logger.Error("startup expiry sweep failed", zap.Error(err))
		}
	}

	for _, name := range s.names() {
		if err := s.StartJob(name); err != nil {
			return err
		}
	}
	s.cron.Start()

	s.logger.Info("scheduler started",
		zap.String("location", s.cfg.Location.String()),
		zap.String(JobExpirySweep, s.cfg.ExpirySweepSpec),
		zap.String(JobNearExpiryScan, s.cfg.NearExpiryScanSpec),
	)
	return nil
}

// Stop halts the cron and waits for running jobs until ctx is done. A
// stopped scheduler can be started again.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs still running")
		return ctx.Err()
	}
}

// StartJob puts a job (back) on its cadence. Scheduling an already scheduled
// job is a no-op.
func (s *Scheduler) StartJob(name string) error {
	j, err := s.job(name)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.entryID != 0 {
		return nil
	}
	id, err := s.cron.AddFunc(j.spec, func() {
		if err := s.execute(context.Background(), j); err != nil && !errors.Is(err, ErrJobRunning) && !errors.Is(err, ErrLeaseHeld) {
			s.logger.Error("scheduled job failed", zap.String("job", j.name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	j.entryID = id
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", j.spec))
	return nil
}

// StopJob removes a job from the cadence without touching the others. A run
// already in progress finishes.
func (s *Scheduler) StopJob(name string) error {
	j, err := s.job(name)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.entryID == 0 {
		return nil
	}
	s.cron.Remove(j.entryID)
	j.entryID = 0
	s.logger.Info("job unscheduled", zap.String("job", name))
	return nil
}

// RunNow executes a job synchronously, outside its cadence.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	j, err := s.job(name)
	if err != nil {
		return err
	}
	return s.execute(ctx, j)
}

// Jobs lists every job sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	out := make([]JobStatus, 0, len(s.jobs))
	for _, name := range s.names() {
		j := s.jobs[name]
		j.mu.Lock()
		st := JobStatus{
			Name:      j.name,
			Spec:      j.spec,
			Scheduled: j.entryID != 0,
			Running:   j.running,
		}
		if !j.lastRun.IsZero() {
			last := j.lastRun
			st.LastRun = &last
			st.LastDuration = j.lastDuration.String()
		}
		if j.lastErr != nil {
			st.LastError = j.lastErr.Error()
		}
		if j.entryID != 0 {
			if next := s.cron.Entry(j.entryID).Next; !next.IsZero() {
				st.NextRun = &next
			}
		}
		j.mu.Unlock()
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) execute(parent context.Context, j *job) error {
	if !j.runMu.TryLock() {
		s.logger.Info("job still running, skipping", zap.String("job", j.name))
		return ErrJobRunning
	}
	defer j.runMu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "scheduler:"+j.name, s.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire lease for %s: %w", j.name, err)
		}
		if !ok {
			s.logger.Info("job lease held elsewhere, skipping", zap.String("job", j.name))
			return ErrLeaseHeld
		}
		defer release()
	}

	j.mu.Lock()
	j.running = true
	j.mu.Unlock()

	startedAt := s.clock.Now()
	began := time.Now()
	s.logger.Info("job started", zap.String("job", j.name))
	err := runSafely(ctx, j.run)
	elapsed := time.Since(began)

	j.mu.Lock()
	j.running = false
	j.lastRun = startedAt
	j.lastDuration = elapsed
	j.lastErr = err
	j.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", zap.String("job", j.name), zap.Duration("duration", elapsed), zap.Error(err))
		return err
	}
	s.logger.Info("job finished", zap.String("job", j.name), zap.Duration("duration", elapsed))
	return nil
}

func runSafely(ctx context.Context, run func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return run(ctx)
}

func (s *Scheduler) job(name string) (*job, error) {
	j, ok := s.jobs[name]
	if !ok {
		return nil, xerrors.NotFound("unknown job %q", name)
	}
	return j, nil
}

func (s *Scheduler) names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
