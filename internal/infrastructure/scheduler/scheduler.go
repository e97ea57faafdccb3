// Package scheduler runs background jobs on fixed intervals or cron
// expressions. A job never overlaps with itself: a tick that finds the
// previous run still in progress is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a unit of background work. Run receives a context that is cancelled
// when the scheduler stops.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Schedule yields the next run time after t.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// JobResult describes one finished run.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Manual      bool // started through RunNow
	Error       error
}

var (
	ErrNilJob                  = errors.New("scheduler: nil job")
	ErrNilSchedule             = errors.New("scheduler: nil schedule")
	ErrJobAlreadyExists        = errors.New("scheduler: job already registered")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrJobRunning              = errors.New("scheduler: job is already running")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler owns the registered jobs and the tick loop that fires them.
type Scheduler struct {
	mu sync.RWMutex

	logger       *zap.Logger
	timezone     *time.Location
	tickInterval time.Duration
	now          func() time.Time

	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	onJobComplete func(result JobResult)
}

type scheduledJob struct {
	job        Job
	schedule   Schedule
	enabled    bool
	inProgress bool
	lastRun    time.Time
	nextRun    time.Time
	runCount   int64
	failCount  int64
	skipCount  int64
	lastResult *JobResult
}

// Config for New. Zero fields fall back to DefaultConfig.
type Config struct {
	Logger       *zap.Logger
	Timezone     *time.Location // cron expressions are evaluated here
	TickInterval time.Duration  // how often due jobs are checked
}

// DefaultConfig evaluates schedules in UTC and checks once a second.
func DefaultConfig() Config {
	return Config{
		Timezone:     time.UTC,
		TickInterval: time.Second,
	}
}

func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}

	return &Scheduler{
		logger:       cfg.Logger.Named("scheduler"),
		timezone:     cfg.Timezone,
		tickInterval: cfg.TickInterval,
		now:          time.Now,
		jobs:         make(map[string]*scheduledJob),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds job under its name. The first run is the schedule's next
// time after now.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		enabled:  true,
		nextRun:  schedule.Next(s.now().In(s.timezone)),
	}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		zap.String("job", name),
		zap.String("schedule", schedule.String()),
		zap.Time("next_run", sj.nextRun))
	return nil
}

// SetEnabled pauses or resumes a job.
func (s *Scheduler) SetEnabled(jobName string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	sj.enabled = enabled
	if enabled {
		sj.nextRun = sj.schedule.Next(s.now().In(s.timezone))
	}
	return nil
}

// OnJobComplete sets a callback invoked after every run, scheduled or manual.
func (s *Scheduler) OnJobComplete(fn func(result JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobComplete = fn
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start launches the tick loop; jobs inherit ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = s.now()
	jobCount := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", zap.Int("jobs_count", jobCount))

	s.wg.Add(1)
	go s.runLoop()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped", zap.Duration("uptime", s.now().Sub(s.startedAt)))
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunJobs()
		}
	}
}

func (s *Scheduler) checkAndRunJobs() {
	now := s.now().In(s.timezone)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	for name, sj := range s.jobs {
		if !sj.enabled || sj.nextRun.IsZero() || now.Before(sj.nextRun) {
			continue
		}
		sj.nextRun = sj.schedule.Next(now)
		if sj.inProgress {
			sj.skipCount++
			s.logger.Warn("job still running, skipping tick", zap.String("job", name))
			continue
		}
		sj.inProgress = true
		s.wg.Add(1)
		go func(sj *scheduledJob) {
			defer s.wg.Done()
			s.execute(s.ctx, sj, false)
		}(sj)
	}
}

// execute runs the job and records the outcome. The caller sets inProgress.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) JobResult {
	name := sj.job.Name()
	startedAt := s.now()

	err := s.safeRun(ctx, sj.job)
	completedAt := s.now()
	result := JobResult{
		JobName:     name,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Success:     err == nil,
		Manual:      manual,
		Error:       err,
	}

	s.mu.Lock()
	sj.inProgress = false
	sj.lastRun = startedAt
	sj.runCount++
	if err != nil {
		sj.failCount++
	}
	sj.lastResult = &result
	hook := s.onJobComplete
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			zap.String("job", name),
			zap.Bool("manual", manual),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
	} else {
		s.logger.Info("job completed",
			zap.String("job", name),
			zap.Bool("manual", manual),
			zap.Duration("duration", result.Duration))
	}
	if hook != nil {
		hook(result)
	}
	return result
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// RunNow runs a job synchronously outside its schedule. It refuses while the
// job is already in progress.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.Lock()
	sj, exists := s.jobs[jobName]
	if !exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if sj.inProgress {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}
	sj.inProgress = true
	s.mu.Unlock()

	result := s.execute(ctx, sj, true)
	return &result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo is a snapshot of one job for status pages and tests.
type JobInfo struct {
	Name        string
	Description string
	Enabled     bool
	Running     bool
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	SkipCount   int64
	LastResult  *JobResult
}

// ListJobs returns every job sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Enabled:     sj.enabled,
			Running:     sj.inProgress,
			Schedule:    sj.schedule.String(),
			LastRun:     sj.lastRun,
			NextRun:     sj.nextRun,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
			SkipCount:   sj.skipCount,
			LastResult:  sj.lastResult,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
