package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumicore/sandrun/pkg/models"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewStoreWithClient(client, 24*time.Hour)

	return store, mr
}

func TestRedisStore_StoreAndGet(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close() //nolint:errcheck // test cleanup

	job := models.Job{
		ID:         "test-job-1",
		SessionID:  "session-1",
		SourceCode: "print('hello')",
		Status:     models.StatusPending,
		CreatedAt:  time.Now(),
	}

	err := store.Store(job)
	assert.NoError(t, err)

	retrieved, found := store.Get("test-job-1")
	assert.True(t, found)
	assert.Equal(t, job.ID, retrieved.ID)
	assert.Equal(t, job.SourceCode, retrieved.SourceCode)
	assert.Equal(t, job.Status, retrieved.Status)
}

func TestRedisStore_GetNonExistent(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close() //nolint:errcheck // test cleanup

	_, found := store.Get("non-existent")
	assert.False(t, found)
}

func TestRedisStore_StoreResult(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close() //nolint:errcheck // test cleanup

	result := models.RunResult{
		JobID:      "test-job-1",
		ReturnCode: 0,
		Stdout:     "done",
		Stderr:     "",
		Duration:   1234 * time.Millisecond,
		Status:     models.StatusSucceeded,
	}

	err := store.StoreResult("test-job-1", result)
	assert.NoError(t, err)

	retrieved, found := store.GetResult("test-job-1")
	assert.True(t, found)
	assert.Equal(t, result.ReturnCode, retrieved.ReturnCode)
	assert.Equal(t, result.Stdout, retrieved.Stdout)
	assert.Equal(t, result.Duration, retrieved.Duration)
	assert.Equal(t, result.Status, retrieved.Status)
}

func TestRedisStore_UpdateJobStatus(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close() //nolint:errcheck // test cleanup

	job := models.Job{
		ID:         "test-job-1",
		SourceCode: "print('hello')",
		Status:     models.StatusPending,
		CreatedAt:  time.Now(),
	}

	err := store.Store(job)
	require.NoError(t, err)

	job.Status = models.StatusRunning
	startedAt := time.Now()
	job.StartedAt = &startedAt

	err = store.Store(job)
	require.NoError(t, err)

	retrieved, found := store.Get("test-job-1")
	assert.True(t, found)
	assert.Equal(t, models.StatusRunning, retrieved.Status)
	assert.NotNil(t, retrieved.StartedAt)

	job.Status = models.StatusSucceeded
	completedAt := time.Now()
	job.CompletedAt = &completedAt

	err = store.Store(job)
	require.NoError(t, err)

	retrieved, found = store.Get("test-job-1")
	assert.True(t, found)
	assert.Equal(t, models.StatusSucceeded, retrieved.Status)
	assert.NotNil(t, retrieved.CompletedAt)
}

func TestRedisStore_TTL(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close() //nolint:errcheck // test cleanup

	job := models.Job{
		ID:         "test-job-ttl",
		SourceCode: "print('hello')",
		Status:     models.StatusPending,
		CreatedAt:  time.Now(),
	}

	err := store.Store(job)
	require.NoError(t, err)

	ttl := mr.TTL("job:test-job-ttl")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 24*time.Hour)
}

func TestRedisStore_FailedRun(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close() //nolint:errcheck // test cleanup

	job := models.Job{
		ID:         "test-job-failed",
		SourceCode: "raise ValueError('bad')",
		Status:     models.StatusFailed,
		CreatedAt:  time.Now(),
	}

	err := store.Store(job)
	require.NoError(t, err)

	result := models.RunResult{
		ReturnCode:   1,
		Stdout:       "",
		Stderr:       "ValueError: bad",
		Duration:     500 * time.Millisecond,
		Status:       models.StatusFailed,
		Category:     models.CategoryValueError,
		ErrorMessage: "ValueError: bad",
	}

	err = store.StoreResult("test-job-failed", result)
	require.NoError(t, err)

	retrievedJob, found := store.Get("test-job-failed")
	assert.True(t, found)
	assert.Equal(t, models.StatusFailed, retrievedJob.Status)

	retrievedResult, found := store.GetResult("test-job-failed")
	assert.True(t, found)
	assert.Equal(t, 1, retrievedResult.ReturnCode)
	assert.Contains(t, retrievedResult.Stderr, "ValueError")
	assert.Equal(t, models.CategoryValueError, retrievedResult.Category)
}
