package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"inbox-triage-go/internal/config"
	"inbox-triage-go/internal/triage"
)

const stopTimeout = 30 * time.Second

// Runner performs one ingest-and-triage run
type Runner interface {
	RunTriage(ctx context.Context, limit int) (triage.Result, error)
}

// Scheduler runs triage periodically
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    *config.SchedulerConfig
	runner    Runner
	limit     int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex

	lastMu     sync.Mutex
	lastRun    time.Time
	lastResult *triage.Result
	lastErr    error
}

// NewScheduler creates a scheduler that syncs up to limit messages per run
func NewScheduler(cfg *config.SchedulerConfig, runner Runner, limit int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		config: cfg,
		runner: runner,
		limit:  limit,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if s.config.IntervalMinutes <= 0 {
		return fmt.Errorf("invalid scheduler interval: %d minutes", s.config.IntervalMinutes)
	}

	// A previous Stop cancelled the old context.
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	schedule := fmt.Sprintf("@every %dm", s.config.IntervalMinutes)

	entryID, err := s.cron.AddFunc(schedule, s.runTriage)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.config.IntervalMinutes)
	return nil
}

// Stop stops the scheduler and waits for a running job
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}

	s.cancel()
	s.cron.Remove(s.entryID)
	ctx := s.cron.Stop()
	s.isRunning = false
	s.mu.Unlock()

	// A job that already fired needs the read lock to see it should skip.
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(stopTimeout):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) runTriage() {
	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		logrus.Info("Scheduler not running, skipping triage cycle")
		return
	}
	ctx := s.ctx
	s.mu.RUnlock()

	if _, err := s.run(ctx); err != nil {
		logrus.Errorf("Scheduled triage run failed: %v", err)
	}
}

func (s *Scheduler) run(ctx context.Context) (triage.Result, error) {
	s.wg.Add(1)
	defer s.wg.Done()

	result, err := s.runner.RunTriage(ctx, s.limit)

	s.lastMu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	if err == nil {
		s.lastResult = &result
	}
	s.lastMu.Unlock()

	return result, err
}

// RunOnce runs triage immediately, whether or not the scheduler is running
func (s *Scheduler) RunOnce(ctx context.Context) (triage.Result, error) {
	logrus.Info("Running triage once")
	return s.run(ctx)
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns when the last run finished, scheduled or manual
func (s *Scheduler) GetLastRun() time.Time {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.lastRun
}

// LastResult returns the most recent successful result and the error of the
// most recent run, if any.
func (s *Scheduler) LastResult() (*triage.Result, error) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.lastResult, s.lastErr
}

// Wait waits for in-flight runs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
