package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/procdocs/sopgen/internal/store"
)

// JobFunc is one maintenance task run on a cron schedule.
type JobFunc func(ctx context.Context) error

// maintenanceJob is a registered job with its parsed schedule.
type maintenanceJob struct {
	name     string
	cronExpr string
	schedule cron.Schedule
	run      JobFunc

	nextRun time.Time
}

// Scheduler runs registered maintenance jobs on cron schedules: expired
// session purges, database vacuums. Jobs are checked on a 60s ticker.
type Scheduler struct {
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	jobsMu sync.Mutex
	jobs   []*maintenanceJob

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing (dedup)
}

// NewScheduler creates a new Scheduler with no jobs registered.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// AddJob registers a named job with a standard five-field cron expression.
// The first run is scheduled at the expression's next fire time.
func (s *Scheduler) AddJob(name, cronExpr string, run JobFunc) error {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("parse cron expression %q for job %q: %w", cronExpr, name, err)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	for _, job := range s.jobs {
		if job.name == name {
			return fmt.Errorf("job %q already registered", name)
		}
	}
	s.jobs = append(s.jobs, &maintenanceJob{
		name:     name,
		cronExpr: cronExpr,
		schedule: schedule,
		run:      run,
		nextRun:  schedule.Next(time.Now().UTC()),
	})
	return nil
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every job whose next fire time has passed and reschedules it.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	for _, job := range s.dueJobs(now) {
		if !s.tryAcquire(job.name) {
			continue // already running (dedup)
		}
		if err := job.run(ctx); err != nil {
			s.logger.Error("maintenance job failed",
				slog.String("job", job.name),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Debug("maintenance job completed", slog.String("job", job.name))
		}
		s.release(job.name)
	}
}

// dueJobs collects jobs whose nextRun has passed and advances their schedules.
func (s *Scheduler) dueJobs(now time.Time) []*maintenanceJob {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	var due []*maintenanceJob
	for _, job := range s.jobs {
		if !job.nextRun.After(now) {
			due = append(due, job)
			job.nextRun = job.schedule.Next(now)
		}
	}
	return due
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

// release removes the job from the in-flight set.
func (s *Scheduler) release(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next fire time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// SessionPurgeJob returns a job that deletes sessions past their expiry.
func SessionPurgeJob(st store.Store, logger *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		purged, err := st.DeleteExpiredSessions(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		if purged > 0 {
			logger.Info("purged expired sessions", slog.Int64("count", purged))
		}
		return nil
	}
}

// VacuumJob returns a job that compacts the archive database.
func VacuumJob(st store.Store) JobFunc {
	return func(ctx context.Context) error {
		return st.Vacuum(ctx)
	}
}
