package job

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumicore/sandrun/internal/logstore/fsstore"
	"github.com/lumicore/sandrun/internal/storage/memory"
	"github.com/lumicore/sandrun/pkg/models"
	"github.com/lumicore/sandrun/pkg/runtime"
	"github.com/lumicore/sandrun/pkg/sandboxerr"
)

func newTestManager(t *testing.T, rt runtime.SandboxRuntime, maxConcurrent int) *Manager {
	t.Helper()

	logs, err := fsstore.New(t.TempDir())
	require.NoError(t, err)

	return New(Options{
		Runtime:          rt,
		JobStore:         memory.NewStore(),
		LogStore:         logs,
		WorkspaceRoot:    t.TempDir(),
		ImageTag:         "sandrun-guest:test",
		MaxConcurrent:    maxConcurrent,
		DefaultTimeout:   time.Second,
		FailureThreshold: 2,
		OutputURLPrefix:  "/outputs",
	})
}

func TestManager_Submit_StoresPendingJob(t *testing.T) {
	mgr := newTestManager(t, &runtime.MockRuntime{}, 1)

	jobID, err := mgr.Submit(models.SubmitRequest{Code: "print('hi')", UserID: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	j, ok := mgr.jobs.Get(jobID)
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, j.Status)
	assert.NotEmpty(t, j.SessionID)
}

func TestManager_Submit_RejectsEmptyCode(t *testing.T) {
	mgr := newTestManager(t, &runtime.MockRuntime{}, 1)

	_, err := mgr.Submit(models.SubmitRequest{})
	require.Error(t, err)
}

func TestManager_Execute_Success(t *testing.T) {
	rt := &runtime.MockRuntime{
		RunFunc: func(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
			return &runtime.RunOutput{Stdout: "ok", ExitCode: 0, Duration: 10 * time.Millisecond}, nil
		},
	}
	mgr := newTestManager(t, rt, 1)

	req := models.SubmitRequest{Code: "print('hi')"}
	jobID, err := mgr.Submit(req)
	require.NoError(t, err)

	result, err := mgr.Execute(context.Background(), jobID, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, result.Status)

	j, ok := mgr.jobs.Get(jobID)
	require.True(t, ok)
	assert.Equal(t, models.StatusSucceeded, j.Status)
	assert.NotNil(t, j.CompletedAt)
}

func TestManager_Execute_GuestFailureCategorized(t *testing.T) {
	rt := &runtime.MockRuntime{
		RunFunc: func(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
			return &runtime.RunOutput{Stderr: "ValueError: bad input", ExitCode: 1},
				&sandboxerr.GuestExitError{ExitCode: 1}
		},
	}
	mgr := newTestManager(t, rt, 1)

	req := models.SubmitRequest{Code: "raise ValueError('bad input')"}
	jobID, err := mgr.Submit(req)
	require.NoError(t, err)

	result, err := mgr.Execute(context.Background(), jobID, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Equal(t, models.CategoryValueError, result.Category)
	assert.Contains(t, result.ErrorMessage, "ValueError")
}

func TestManager_Execute_Timeout(t *testing.T) {
	rt := &runtime.MockRuntime{
		RunFunc: func(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
			return nil, fmt.Errorf("local: job %s: %w", spec.JobID, sandboxerr.ErrTimeout)
		},
	}
	mgr := newTestManager(t, rt, 1)

	req := models.SubmitRequest{Code: "while True: pass"}
	jobID, err := mgr.Submit(req)
	require.NoError(t, err)

	result, err := mgr.Execute(context.Background(), jobID, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTimedOut, result.Status)
	assert.Equal(t, models.CategoryTimeout, result.Category)
}

func TestManager_Cancel_MarksCancelled(t *testing.T) {
	started := make(chan struct{})
	rt := &runtime.MockRuntime{
		RunFunc: func(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
			close(started)
			<-ctx.Done()
			return nil, fmt.Errorf("local: job %s: %w", spec.JobID, sandboxerr.ErrCancelled)
		},
	}
	mgr := newTestManager(t, rt, 1)

	req := models.SubmitRequest{Code: "print('hi')"}
	jobID, err := mgr.Submit(req)
	require.NoError(t, err)

	var result *models.RunResult
	var execErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, execErr = mgr.Execute(context.Background(), jobID, req)
	}()

	<-started
	assert.True(t, mgr.Cancel(jobID))
	wg.Wait()

	require.NoError(t, execErr)
	assert.Equal(t, models.StatusCancelled, result.Status)
}

func TestManager_Execute_TooBusy(t *testing.T) {
	release := make(chan struct{})
	rt := &runtime.MockRuntime{
		RunFunc: func(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
			<-release
			return &runtime.RunOutput{ExitCode: 0}, nil
		},
	}
	mgr := newTestManager(t, rt, 1)

	req := models.SubmitRequest{Code: "print('hi')"}
	jobID1, err := mgr.Submit(req)
	require.NoError(t, err)
	jobID2, err := mgr.Submit(req)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = mgr.Execute(context.Background(), jobID1, req)
	}()

	// Give the first execution a chance to claim the single concurrency slot.
	for mgr.ActiveCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	_, err = mgr.Execute(context.Background(), jobID2, req)
	assert.ErrorIs(t, err, ErrTooBusy)

	close(release)
	wg.Wait()
}

func TestManager_Execute_UnknownJob(t *testing.T) {
	mgr := newTestManager(t, &runtime.MockRuntime{}, 1)

	_, err := mgr.Execute(context.Background(), "does-not-exist", models.SubmitRequest{Code: "x"})
	assert.ErrorIs(t, err, sandboxerr.ErrAdmission)
}
