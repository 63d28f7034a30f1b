package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/database"
)

// memStore is an in-memory job store whose dequeue models the single
// atomic claim statement of the real repository.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*database.Job
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*database.Job)}
}

func (s *memStore) EnqueueJob(_ context.Context, jobType string, payload json.RawMessage, runAt time.Time, maxAttempts int) (*database.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &database.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     payload,
		RunAt:       runAt,
		MaxAttempts: maxAttempts,
		Status:      database.JobStatusPending,
		CreatedAt:   time.Now(),
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *memStore) DequeueDueJobs(_ context.Context, limit int) ([]*database.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var claimed []*database.Job
	for _, job := range s.jobs {
		if len(claimed) >= limit {
			break
		}
		if job.Status == database.JobStatusPending && !job.RunAt.After(now) && job.Attempts < job.MaxAttempts {
			job.Status = database.JobStatusProcessing
			copied := *job
			claimed = append(claimed, &copied)
		}
	}
	return claimed, nil
}

func (s *memStore) CompleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job := s.jobs[jobID]; job != nil && job.Status == database.JobStatusProcessing {
		job.Status = database.JobStatusCompleted
	}
	return nil
}

func (s *memStore) FailJob(_ context.Context, jobID string, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job := s.jobs[jobID]; job != nil {
		job.Status = database.JobStatusFailed
		job.Attempts = attempts
		job.LastError = &lastError
	}
	return nil
}

func (s *memStore) RescheduleJob(_ context.Context, jobID string, attempts int, runAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job := s.jobs[jobID]; job != nil {
		job.Status = database.JobStatusPending
		job.Attempts = attempts
		job.RunAt = runAt
		job.LastError = &lastError
	}
	return nil
}

func (s *memStore) status(jobID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[jobID].Status
}

func (s *memStore) get(jobID string) database.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[jobID]
}

// stubHandler is a configurable handler for queue tests.
type stubHandler struct {
	jobType JobType
	err     error
	calls   int
	mu      sync.Mutex
}

func (h *stubHandler) Type() JobType { return h.jobType }

func (h *stubHandler) Handle(_ context.Context, _ *database.Job) (*Result, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return &Result{Message: "ok"}, nil
}

func (h *stubHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func testRegistry(t *testing.T, overrides ...Handler) *Registry {
	t.Helper()
	byType := map[JobType]Handler{
		JobTypeHousekeeping: &stubHandler{jobType: JobTypeHousekeeping},
		JobTypeRiskCheck:    &stubHandler{jobType: JobTypeRiskCheck},
		JobTypeCalendarSync: &stubHandler{jobType: JobTypeCalendarSync},
	}
	for _, h := range overrides {
		byType[h.Type()] = h
	}
	handlers := make([]Handler, 0, len(byType))
	for _, h := range byType {
		handlers = append(handlers, h)
	}
	registry, err := NewRegistry(handlers...)
	if err != nil {
		t.Fatal(err)
	}
	return registry
}

func TestRegistryRejectsMissingHandler(t *testing.T) {
	_, err := NewRegistry(&stubHandler{jobType: JobTypeHousekeeping})
	if err == nil {
		t.Fatal("expected error for uncovered job types")
	}
}

func TestRegistryRejectsDuplicateHandler(t *testing.T) {
	_, err := NewRegistry(
		&stubHandler{jobType: JobTypeHousekeeping},
		&stubHandler{jobType: JobTypeHousekeeping},
	)
	if err == nil {
		t.Fatal("expected error for duplicate registration")
	}
}

func TestProcessCompletesSuccessfulJob(t *testing.T) {
	store := newMemStore()
	handler := &stubHandler{jobType: JobTypeRiskCheck}
	queue := NewQueue(store, testRegistry(t, handler), nil, zerolog.Nop())

	job, err := queue.Enqueue(context.Background(), JobTypeRiskCheck, nil, time.Now(), 0)
	if err != nil {
		t.Fatal(err)
	}
	claimed, err := queue.DequeueDue(context.Background(), 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("dequeue = %v, %v", claimed, err)
	}

	queue.Process(context.Background(), claimed[0])

	if got := store.status(job.ID); got != database.JobStatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}
	if handler.callCount() != 1 {
		t.Errorf("handler called %d times, want 1", handler.callCount())
	}
}

func TestProcessReschedulesRetryableFailure(t *testing.T) {
	store := newMemStore()
	handler := &stubHandler{jobType: JobTypeRiskCheck, err: errors.New("connection reset")}
	queue := NewQueue(store, testRegistry(t, handler), nil, zerolog.Nop())

	job, _ := queue.Enqueue(context.Background(), JobTypeRiskCheck, nil, time.Now(), 0)
	claimed, _ := queue.DequeueDue(context.Background(), 10)
	queue.Process(context.Background(), claimed[0])

	after := store.get(job.ID)
	if after.Status != database.JobStatusPending {
		t.Fatalf("status = %s, want pending", after.Status)
	}
	if after.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", after.Attempts)
	}
	// First retry backs off by one second.
	if wait := time.Until(after.RunAt); wait < 500*time.Millisecond || wait > 1500*time.Millisecond {
		t.Errorf("next run in %v, want ~1s", wait)
	}
}

func TestProcessFailsNonRetryableError(t *testing.T) {
	store := newMemStore()
	handler := &stubHandler{jobType: JobTypeRiskCheck, err: errors.New("Invalid symbol FOO")}
	queue := NewQueue(store, testRegistry(t, handler), nil, zerolog.Nop())

	job, _ := queue.Enqueue(context.Background(), JobTypeRiskCheck, nil, time.Now(), 0)
	claimed, _ := queue.DequeueDue(context.Background(), 10)
	queue.Process(context.Background(), claimed[0])

	if got := store.status(job.ID); got != database.JobStatusFailed {
		t.Errorf("status = %s, want failed", got)
	}
}

func TestProcessFailsPermanentError(t *testing.T) {
	store := newMemStore()
	handler := &stubHandler{jobType: JobTypeCalendarSync, err: Permanent(errors.New("malformed feed"))}
	queue := NewQueue(store, testRegistry(t, handler), nil, zerolog.Nop())

	job, _ := queue.Enqueue(context.Background(), JobTypeCalendarSync, nil, time.Now(), 0)
	claimed, _ := queue.DequeueDue(context.Background(), 10)
	queue.Process(context.Background(), claimed[0])

	if got := store.status(job.ID); got != database.JobStatusFailed {
		t.Errorf("status = %s, want failed", got)
	}
}

func TestProcessExhaustsAttempts(t *testing.T) {
	store := newMemStore()
	handler := &stubHandler{jobType: JobTypeRiskCheck, err: errors.New("timeout")}
	queue := NewQueue(store, testRegistry(t, handler), nil, zerolog.Nop())

	job, _ := queue.Enqueue(context.Background(), JobTypeRiskCheck, nil, time.Now(), 0)

	for attempt := 0; attempt < defaultMaxAttempts; attempt++ {
		// Make the job due again regardless of backoff.
		store.mu.Lock()
		store.jobs[job.ID].RunAt = time.Now().Add(-time.Second)
		store.mu.Unlock()

		claimed, _ := queue.DequeueDue(context.Background(), 10)
		if len(claimed) != 1 {
			t.Fatalf("attempt %d: claimed %d jobs", attempt, len(claimed))
		}
		queue.Process(context.Background(), claimed[0])
	}

	after := store.get(job.ID)
	if after.Status != database.JobStatusFailed {
		t.Fatalf("status = %s, want failed after exhaustion", after.Status)
	}
	if after.Attempts != defaultMaxAttempts {
		t.Errorf("attempts = %d, want %d", after.Attempts, defaultMaxAttempts)
	}
}

func TestProcessUnknownTypeFailsPermanently(t *testing.T) {
	store := newMemStore()
	queue := NewQueue(store, testRegistry(t), nil, zerolog.Nop())

	job, err := store.EnqueueJob(context.Background(), "no_such_type", nil, time.Now(), 3)
	if err != nil {
		t.Fatal(err)
	}
	claimed, _ := queue.DequeueDue(context.Background(), 10)
	queue.Process(context.Background(), claimed[0])

	if got := store.status(job.ID); got != database.JobStatusFailed {
		t.Errorf("status = %s, want failed", got)
	}
}

func TestConcurrentDequeueNeverDoubleClaims(t *testing.T) {
	store := newMemStore()
	queue := NewQueue(store, testRegistry(t), nil, zerolog.Nop())

	const total = 60
	for i := 0; i < total; i++ {
		if _, err := queue.Enqueue(context.Background(), JobTypeRiskCheck, nil, time.Now().Add(-time.Second), 0); err != nil {
			t.Fatal(err)
		}
	}

	const workers = 8
	claims := make(chan string, total*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				jobs, err := queue.DequeueDue(context.Background(), 5)
				if err != nil {
					t.Error(err)
					return
				}
				if len(jobs) == 0 {
					return
				}
				for _, j := range jobs {
					claims <- j.ID
				}
			}
		}()
	}
	wg.Wait()
	close(claims)

	seen := make(map[string]int)
	for id := range claims {
		seen[id]++
	}
	if len(seen) != total {
		t.Errorf("claimed %d distinct jobs, want %d", len(seen), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s claimed %d times", id, n)
		}
	}
}

func TestSchedulerRunsClaimedJobs(t *testing.T) {
	store := newMemStore()
	handler := &stubHandler{jobType: JobTypeRiskCheck}
	queue := NewQueue(store, testRegistry(t, handler), nil, zerolog.Nop())
	scheduler := NewScheduler(queue, nil, SchedulerConfig{
		TickInterval:      10 * time.Millisecond,
		BatchSize:         10,
		MaxConcurrentJobs: 2,
	}, zerolog.Nop())

	job, _ := queue.Enqueue(context.Background(), JobTypeRiskCheck, nil, time.Now(), 0)

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := scheduler.Start(context.Background()); err == nil {
		t.Error("second Start should fail while running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.status(job.ID) != database.JobStatusCompleted {
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, status = %s", store.status(job.ID))
		}
		time.Sleep(5 * time.Millisecond)
	}

	scheduler.Stop()
	if scheduler.IsRunning() {
		t.Error("scheduler still running after Stop")
	}
	// Stop twice is a no-op.
	scheduler.Stop()
}

func TestSchedulerSeedsRecurringJobs(t *testing.T) {
	store := newMemStore()
	handler := &stubHandler{jobType: JobTypeRiskCheck}
	queue := NewQueue(store, testRegistry(t, handler), nil, zerolog.Nop())
	scheduler := NewScheduler(queue, nil, SchedulerConfig{
		TickInterval:      10 * time.Millisecond,
		BatchSize:         10,
		MaxConcurrentJobs: 2,
		Recurring:         []RecurringJob{{Type: JobTypeRiskCheck, Interval: time.Hour}},
	}, zerolog.Nop())

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer scheduler.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for handler.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("recurring job never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The hour-long interval means exactly one seed within this test.
	time.Sleep(50 * time.Millisecond)
	if got := handler.callCount(); got != 1 {
		t.Errorf("handler ran %d times, want 1", got)
	}
}

func TestEnqueueSetsDefaults(t *testing.T) {
	store := newMemStore()
	queue := NewQueue(store, testRegistry(t), nil, zerolog.Nop())

	job, err := queue.Enqueue(context.Background(), JobTypeHousekeeping, json.RawMessage(`{"k":"v"}`), time.Now().Add(time.Minute), 0)
	if err != nil {
		t.Fatal(err)
	}
	if job.MaxAttempts != defaultMaxAttempts {
		t.Errorf("max attempts = %d, want %d", job.MaxAttempts, defaultMaxAttempts)
	}
	if job.Status != database.JobStatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if string(job.Payload) != `{"k":"v"}` {
		t.Errorf("payload = %s", job.Payload)
	}
}
