package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-auctions/internal/logger"
)

// Job is a named periodic task. Jobs must be idempotent: the scheduler
// gives no exactly-once guarantee across restarts.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each registered job on its own ticker. Each run gets a
// fresh context with the job's timeout.
type Scheduler struct {
	jobs   []Job
	logger *logger.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		logger: log,
		stop:   make(chan struct{}),
	}
}

func (s *Scheduler) Register(job Job) {
	if job.Timeout <= 0 {
		job.Timeout = time.Minute
	}
	s.jobs = append(s.jobs, job)
}

// Start launches every registered job. Each job runs once immediately
// so due auctions are not left waiting a full interval after a restart.
func (s *Scheduler) Start() {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(job)
	}
	s.logger.Info("SCHEDULER", fmt.Sprintf("Started %d jobs", len(s.jobs)))
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	s.runOnce(job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(job)
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) runOnce(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), job.Timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("SCHEDULER", fmt.Sprintf("Job %s failed: %v", job.Name, err))
		return
	}
	s.logger.Debug("SCHEDULER", fmt.Sprintf("Job %s completed in %s", job.Name, time.Since(start)))
}

// Stop halts all jobs and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.logger.Info("SCHEDULER", "All jobs stopped")
}
