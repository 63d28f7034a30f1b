package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/database"
	"mexc-sniper-bot/internal/executor"
)

// TargetProcessor runs due snipe targets; the execution core implements it.
type TargetProcessor interface {
	ProcessDueTargets(ctx context.Context) (*executor.BatchResult, error)
}

// RecurringJob re-enqueues a job type on a fixed cadence.
type RecurringJob struct {
	Type     JobType       `json:"type"`
	Interval time.Duration `json:"interval"`
}

// SchedulerConfig holds scheduler loop settings.
type SchedulerConfig struct {
	// TickInterval is how often the scheduler polls for due work.
	TickInterval time.Duration `json:"tick_interval"`
	// BatchSize caps how many jobs one tick claims.
	BatchSize int `json:"batch_size"`
	// MaxConcurrentJobs bounds parallel job processing within a tick.
	MaxConcurrentJobs int `json:"max_concurrent_jobs"`
	// Recurring is the set of job types the scheduler keeps seeded.
	Recurring []RecurringJob `json:"recurring,omitempty"`
}

// DefaultSchedulerConfig returns default scheduler settings.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:      time.Second,
		BatchSize:         10,
		MaxConcurrentJobs: 4,
	}
}

// Scheduler drives the engine: every tick it claims due jobs, runs them
// through the queue, and kicks the execution core over due targets.
type Scheduler struct {
	queue   *Queue
	targets TargetProcessor
	config  SchedulerConfig
	logger  zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	// lastSeeded is touched only by the run goroutine.
	lastSeeded map[JobType]time.Time
}

// NewScheduler creates the scheduler loop.
func NewScheduler(queue *Queue, targets TargetProcessor, config SchedulerConfig, logger zerolog.Logger) *Scheduler {
	if config.TickInterval <= 0 {
		config = DefaultSchedulerConfig()
	}
	return &Scheduler{
		queue:      queue,
		targets:    targets,
		config:     config,
		logger:     logger.With().Str("component", "scheduler").Logger(),
		lastSeeded: make(map[JobType]time.Time),
	}
}

// Start launches the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info().Dur("tick_interval", s.config.TickInterval).Msg("Scheduler started")
	return nil
}

// Stop halts the loop and waits for in-flight work to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick processes one scheduling cycle. Panics are contained so a bad
// handler cannot kill the loop.
func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Panic recovered in scheduler tick")
		}
	}()

	s.seedRecurring(ctx)
	s.processJobs(ctx)

	if s.targets != nil {
		if batch, err := s.targets.ProcessDueTargets(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Due-target pass failed")
		} else if batch.Processed > 0 {
			s.logger.Info().
				Int("processed", batch.Processed).
				Int("succeeded", batch.Succeeded).
				Int("failed", batch.Failed).
				Int("skipped", batch.Skipped).
				Msg("Due-target pass finished")
		}
	}
}

// seedRecurring keeps the configured recurring job types enqueued. The first
// tick seeds every type immediately.
func (s *Scheduler) seedRecurring(ctx context.Context) {
	now := time.Now()
	for _, r := range s.config.Recurring {
		if r.Interval <= 0 {
			continue
		}
		if last, ok := s.lastSeeded[r.Type]; ok && now.Sub(last) < r.Interval {
			continue
		}
		if _, err := s.queue.Enqueue(ctx, r.Type, nil, now, 0); err != nil {
			s.logger.Error().Err(err).Str("type", string(r.Type)).Msg("Failed to seed recurring job")
			continue
		}
		s.lastSeeded[r.Type] = now
	}
}

func (s *Scheduler) processJobs(ctx context.Context) {
	jobs, err := s.queue.DequeueDue(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to dequeue due jobs")
		return
	}
	if len(jobs) == 0 {
		return
	}

	semaphore := make(chan struct{}, s.config.MaxConcurrentJobs)
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(j *database.Job) {
			defer wg.Done()
			defer func() { <-semaphore }()
			s.queue.Process(ctx, j)
		}(job)
	}
	wg.Wait()
}
