package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job represents a scheduled job. Key identifies the job across reloads;
// jobs with the same key and interval keep running untouched.
type Job struct {
	Key      string
	Name     string
	Interval time.Duration
	Fn       func(ctx context.Context) error
}

type entry struct {
	job    Job
	cancel context.CancelFunc
}

// Scheduler manages keyed jobs on independent tickers. The job set is
// dynamic: Reload diffs the desired set against the running one, so
// device additions, removals and interval changes apply without a
// restart.
type Scheduler struct {
	clock   Clock
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	entries map[string]*entry
	started bool
}

// NewScheduler creates a scheduler driven by the given clock.
func NewScheduler(clock Clock) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:   clock,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
}

// Reload replaces the job set. Running jobs whose key and interval are
// unchanged are left alone; removed jobs are stopped; new or changed
// jobs are (re)started when the scheduler is running.
func (s *Scheduler) Reload(jobs []Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	desired := make(map[string]Job, len(jobs))
	for _, job := range jobs {
		if job.Interval <= 0 {
			continue
		}
		desired[job.Key] = job
	}

	for key, e := range s.entries {
		job, keep := desired[key]
		if keep && job.Interval == e.job.Interval {
			// unchanged, keep ticking but pick up the fresh closure
			e.job = job
			delete(desired, key)
			continue
		}
		if e.cancel != nil {
			e.cancel()
		}
		delete(s.entries, key)
		slog.Info("Cron job removed", "key", key, "name", e.job.Name)
	}

	for key, job := range desired {
		e := &entry{job: job}
		s.entries[key] = e
		slog.Info("Cron job registered", "key", key, "name", job.Name, "interval", job.Interval)
		if s.started {
			s.launch(e)
		}
	}
}

// Start begins running all scheduled jobs
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for _, e := range s.entries {
		s.launch(e)
	}
	slog.Info("Cron scheduler started", "job_count", len(s.entries))
}

// Stop gracefully stops all scheduled jobs
func (s *Scheduler) Stop() {
	slog.Info("Stopping cron scheduler...")
	s.cancel()
	s.wg.Wait()
	slog.Info("Cron scheduler stopped")
}

// launch starts one job loop. Caller holds the lock.
func (s *Scheduler) launch(e *entry) {
	jobCtx, cancel := context.WithCancel(s.ctx)
	e.cancel = cancel
	s.wg.Add(1)
	go s.runJob(jobCtx, e)
}

// runJob runs a single job on its schedule
func (s *Scheduler) runJob(ctx context.Context, e *entry) {
	defer s.wg.Done()

	s.mu.Lock()
	key, name, interval := e.job.Key, e.job.Name, e.job.Interval
	s.mu.Unlock()

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Cron job stopping", "key", key, "name", name)
			return
		case <-ticker.C():
			s.mu.Lock()
			job := e.job
			s.mu.Unlock()
			s.executeJob(ctx, job)
		}
	}
}

// executeJob executes a job and logs results
func (s *Scheduler) executeJob(ctx context.Context, job Job) {
	start := s.clock.Now()
	slog.Debug("Cron job starting", "key", job.Key, "name", job.Name)

	if err := job.Fn(ctx); err != nil {
		slog.Error("Cron job failed", "key", job.Key, "name", job.Name, "error", err, "duration", s.clock.Now().Sub(start))
	} else {
		slog.Debug("Cron job completed", "key", job.Key, "name", job.Name, "duration", s.clock.Now().Sub(start))
	}
}

// RunOnce runs all jobs once (useful for testing)
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	jobs := make([]Job, 0, len(s.entries))
	for _, e := range s.entries {
		jobs = append(jobs, e.job)
	}
	s.mu.Unlock()

	for _, job := range jobs {
		if err := job.Fn(ctx); err != nil {
			slog.Error("Cron job failed", "key", job.Key, "name", job.Name, "error", err)
		}
	}
}

// Keys returns the keys of the currently registered jobs.
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}
