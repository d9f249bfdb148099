package memory

import (
	"sync"

	"github.com/lumicore/sandrun/pkg/models"
)

// Store provides in-memory storage for jobs.
// ⚠️ WARNING: This is not suitable for production with multiple instances.
// Use Redis storage for production deployments.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]models.Job
	results map[string]models.RunResult
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs:    make(map[string]models.Job),
		results: make(map[string]models.RunResult),
	}
}

// Store saves or updates a job.
func (s *Store) Store(job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// Get retrieves a job by ID.
func (s *Store) Get(jobID string) (models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, exists := s.jobs[jobID]
	return job, exists
}

// StoreResult saves a run result.
func (s *Store) StoreResult(jobID string, result models.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[jobID] = result
	return nil
}

// GetResult retrieves a run result by job ID.
func (s *Store) GetResult(jobID string) (models.RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, exists := s.results[jobID]
	return result, exists
}

// Close releases any resources (no-op for memory store).
func (s *Store) Close() error {
	return nil
}
