package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
)

// JobStore provides an in-memory implementation for development/testing.
type JobStore struct {
	mu      sync.RWMutex
	jobs    map[string]crawler.Job
	domains map[string][]crawler.DomainReport
	now     func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    make(map[string]crawler.Job),
		domains: make(map[string][]crawler.DomainReport),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job. A canceled job
// keeps its status: later transitions only refresh the counters.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status crawler.JobStatus,
	errText string,
	counters crawler.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	job.Counters = counters
	if job.Status == crawler.JobStatusCanceled && status != crawler.JobStatusCanceled {
		s.jobs[jobID] = job
		return nil
	}
	job.Status = status
	job.ErrorText = errText
	now := s.now()
	if status == crawler.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.Terminal() && job.Finished == nil {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// RecordDomain appends the outcome of one domain of a job.
func (s *JobStore) RecordDomain(_ context.Context, report crawler.DomainReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[report.JobID]; !ok {
		return fmt.Errorf("job %s: %w", report.JobID, crawler.ErrNotFound)
	}
	s.domains[report.JobID] = append(s.domains[report.JobID], report)
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	return job, nil
}

// ListDomains returns the recorded domain outcomes of a job.
func (s *JobStore) ListDomains(_ context.Context, jobID string) ([]crawler.DomainReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	domains := s.domains[jobID]
	out := make([]crawler.DomainReport, len(domains))
	copy(out, domains)
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
