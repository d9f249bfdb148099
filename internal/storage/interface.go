package storage

import (
	"github.com/lumicore/sandrun/pkg/models"
)

// JobStore defines the interface for live job bookkeeping, as opposed to
// internal/logstore's durable audit trail. This abstraction allows
// switching between in-memory (development) and Redis (multi-instance
// production) storage without changing business logic.
type JobStore interface {
	// Store saves or updates a job.
	Store(job models.Job) error

	// Get retrieves a job by ID.
	// Returns the job and true if found, zero value and false if not found.
	Get(jobID string) (models.Job, bool)

	// StoreResult saves a job's run result.
	StoreResult(jobID string, result models.RunResult) error

	// GetResult retrieves a run result by job ID.
	// Returns the result and true if found, zero value and false if not found.
	GetResult(jobID string) (models.RunResult, bool)

	// Close releases any resources held by the store.
	Close() error
}
