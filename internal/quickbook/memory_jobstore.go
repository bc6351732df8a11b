package quickbook

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brightsmile/dental-scheduling/internal/scheduling"
)

// MemoryJobStore keeps job records in process memory. It backs dev mode
// and tests, where no DynamoDB table exists.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

var _ JobRecorder = (*MemoryJobStore)(nil)
var _ JobUpdater = (*MemoryJobStore)(nil)

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*Job)}
}

func (s *MemoryJobStore) PutQueued(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("quickbook: job cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID]; exists {
		return errors.New("quickbook: job already exists")
	}
	now := time.Now().UTC()
	job.Status = JobStatusQueued
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}
	cp := *job
	s.jobs[cp.JobID] = &cp
	return nil
}

func (s *MemoryJobStore) MarkStep(ctx context.Context, jobID, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = JobStatusRunning
	job.Step = step
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	return nil
}

func (s *MemoryJobStore) MarkCompleted(ctx context.Context, jobID string, appt *scheduling.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if appt == nil {
		appt = &scheduling.Appointment{}
	}
	cp := *appt
	job.Status = JobStatusCompleted
	job.Step = StepComplete
	job.Appointment = &cp
	job.ErrorCode = ""
	job.ErrorMessage = ""
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	return nil
}

func (s *MemoryJobStore) MarkFailed(ctx context.Context, jobID, code, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = JobStatusFailed
	job.Appointment = nil
	job.ErrorCode = code
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	return nil
}

func (s *MemoryJobStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	if job.Appointment != nil {
		appt := *job.Appointment
		cp.Appointment = &appt
	}
	return &cp, nil
}
