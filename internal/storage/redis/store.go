package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumicore/sandrun/internal/config"
	"github.com/lumicore/sandrun/pkg/models"
)

// Store provides Redis-backed storage for live job bookkeeping.
// Uses Redis hashes for structured job and result storage.
type Store struct {
	client *redis.Client
	ctx    context.Context
	ttl    time.Duration
}

// NewStore creates a new Redis job store.
func NewStore(cfg config.RedisConfig) (*Store, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Store{
		client: client.GetClient(),
		ctx:    context.Background(),
		ttl:    cfg.JobTTL,
	}, nil
}

// NewStoreWithClient creates a new Redis job store with an existing client.
// Useful for testing with miniredis.
func NewStoreWithClient(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ctx:    context.Background(),
		ttl:    ttl,
	}
}

// Store saves or updates a job.
func (s *Store) Store(job models.Job) error {
	key := s.jobKey(job.ID)

	createdAt := job.CreatedAt.Format(time.RFC3339Nano)
	startedAt := ""
	completedAt := ""
	deadline := ""

	if job.StartedAt != nil {
		startedAt = job.StartedAt.Format(time.RFC3339Nano)
	}
	if job.CompletedAt != nil {
		completedAt = job.CompletedAt.Format(time.RFC3339Nano)
	}
	if job.Deadline != nil {
		deadline = job.Deadline.Format(time.RFC3339Nano)
	}

	err := s.client.HSet(s.ctx, key, map[string]interface{}{
		"id":                  job.ID,
		"user_id":             job.UserID,
		"session_id":          job.SessionID,
		"previous_attempt_id": job.PreviousAttemptID,
		"source_code":         job.SourceCode,
		"input_image_ref":     job.InputImageRef,
		"workspace_path":      job.WorkspacePath,
		"status":              string(job.Status),
		"created_at":          createdAt,
		"started_at":          startedAt,
		"completed_at":        completedAt,
		"deadline":            deadline,
		"diagnostic_injected": job.DiagnosticInjected,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to store job %s: %w", job.ID, err)
	}

	s.client.Expire(s.ctx, key, s.ttl)

	statusKey := s.statusIndexKey(job.Status)
	s.client.SAdd(s.ctx, statusKey, job.ID)
	s.client.Expire(s.ctx, statusKey, s.ttl)

	return nil
}

// Get retrieves a job by ID.
func (s *Store) Get(jobID string) (models.Job, bool) {
	key := s.jobKey(jobID)

	result, err := s.client.HGetAll(s.ctx, key).Result()
	if err != nil || len(result) == 0 {
		return models.Job{}, false
	}

	job := models.Job{
		ID:                result["id"],
		UserID:            result["user_id"],
		SessionID:         result["session_id"],
		PreviousAttemptID: result["previous_attempt_id"],
		SourceCode:        result["source_code"],
		InputImageRef:     result["input_image_ref"],
		WorkspacePath:     result["workspace_path"],
		Status:            models.JobStatus(result["status"]),
	}

	if createdAt, err := time.Parse(time.RFC3339Nano, result["created_at"]); err == nil {
		job.CreatedAt = createdAt
	}
	if result["started_at"] != "" {
		if t, err := time.Parse(time.RFC3339Nano, result["started_at"]); err == nil {
			job.StartedAt = &t
		}
	}
	if result["completed_at"] != "" {
		if t, err := time.Parse(time.RFC3339Nano, result["completed_at"]); err == nil {
			job.CompletedAt = &t
		}
	}
	if result["deadline"] != "" {
		if t, err := time.Parse(time.RFC3339Nano, result["deadline"]); err == nil {
			job.Deadline = &t
		}
	}
	if injected, err := strconv.ParseBool(result["diagnostic_injected"]); err == nil {
		job.DiagnosticInjected = injected
	}

	return job, true
}

// StoreResult saves a run result.
func (s *Store) StoreResult(jobID string, result models.RunResult) error {
	key := s.resultKey(jobID)

	outputFiles, err := json.Marshal(result.OutputFiles)
	if err != nil {
		return fmt.Errorf("failed to serialize output files for job %s: %w", jobID, err)
	}

	err = s.client.HSet(s.ctx, key, map[string]interface{}{
		"return_code":   result.ReturnCode,
		"stdout":        result.Stdout,
		"stderr":        result.Stderr,
		"output_files":  string(outputFiles),
		"duration":      result.Duration.Nanoseconds(),
		"status":        string(result.Status),
		"category":      string(result.Category),
		"error_message": result.ErrorMessage,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to store result for job %s: %w", jobID, err)
	}

	s.client.Expire(s.ctx, key, s.ttl)

	return nil
}

// GetResult retrieves a run result by job ID.
func (s *Store) GetResult(jobID string) (models.RunResult, bool) {
	key := s.resultKey(jobID)

	result, err := s.client.HGetAll(s.ctx, key).Result()
	if err != nil || len(result) == 0 {
		return models.RunResult{}, false
	}

	runResult := models.RunResult{
		JobID:        jobID,
		Stdout:       result["stdout"],
		Stderr:       result["stderr"],
		Status:       models.JobStatus(result["status"]),
		Category:     models.LogCategory(result["category"]),
		ErrorMessage: result["error_message"],
	}

	if exitCode, err := strconv.Atoi(result["return_code"]); err == nil {
		runResult.ReturnCode = exitCode
	}
	if durationNs, err := strconv.ParseInt(result["duration"], 10, 64); err == nil {
		runResult.Duration = time.Duration(durationNs)
	}
	if result["output_files"] != "" {
		_ = json.Unmarshal([]byte(result["output_files"]), &runResult.OutputFiles) //nolint:errcheck // best effort
	}

	return runResult, true
}

// Close releases Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func (s *Store) resultKey(jobID string) string {
	return fmt.Sprintf("result:%s", jobID)
}

func (s *Store) statusIndexKey(status models.JobStatus) string {
	return fmt.Sprintf("job:index:status:%s", status)
}
