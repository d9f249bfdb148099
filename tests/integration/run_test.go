package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumicore/sandrun/internal/analysis"
	"github.com/lumicore/sandrun/internal/api"
	"github.com/lumicore/sandrun/internal/instrument"
	"github.com/lumicore/sandrun/internal/job"
	"github.com/lumicore/sandrun/internal/logstore/fsstore"
	"github.com/lumicore/sandrun/internal/storage/memory"
	"github.com/lumicore/sandrun/pkg/models"
	"github.com/lumicore/sandrun/pkg/runtime"
	"github.com/lumicore/sandrun/pkg/sandboxerr"
)

func multipartBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func newServer(t *testing.T, rt runtime.SandboxRuntime, maxConcurrent int) *api.Server {
	t.Helper()

	logs, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = logs.Close() })

	mgr := job.New(job.Options{
		Runtime:          rt,
		JobStore:         memory.NewStore(),
		LogStore:         logs,
		WorkspaceRoot:    t.TempDir(),
		ImageTag:         "sandrun-guest:test",
		MaxConcurrent:    maxConcurrent,
		DefaultTimeout:   2 * time.Second,
		FailureThreshold: 2,
		OutputURLPrefix:  "/outputs",
	})

	return api.New(mgr, logs, api.Config{OutputsRoot: t.TempDir(), Version: "test"})
}

func doRun(t *testing.T, e http.Handler, fields map[string]string) (*http.Response, models.RunResult) {
	t.Helper()

	body, contentType := multipartBody(t, fields)
	req := httptest.NewRequest(http.MethodPost, "/run", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	var result models.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return rec.Result(), result
}

// TestHappyPath submits a guest program that exits cleanly and expects a
// 200 with a succeeded RunResult.
func TestHappyPath(t *testing.T) {
	rt := &runtime.MockRuntime{
		RunFunc: func(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
			return &runtime.RunOutput{Stdout: "done\n", ExitCode: 0, Duration: 10 * time.Millisecond}, nil
		},
	}
	server := newServer(t, rt, 4)
	e := api.NewEchoServer(server, false)

	resp, result := doRun(t, e, map[string]string{"code": "print('done')"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusSucceeded, result.Status)
	assert.Equal(t, "done\n", result.Stdout)
}

// TestImportErrorThenFix exercises the two-attempt fix-rate scenario: a
// first submission fails with an unavailable import, a second submission
// in the same session with previous_attempt_id set succeeds, and the
// analysis report reflects a resolved import_error pair.
func TestImportErrorThenFix(t *testing.T) {
	call := 0
	rt := &runtime.MockRuntime{
		RunFunc: func(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
			call++
			if call == 1 {
				return &runtime.RunOutput{Stderr: "ModuleNotFoundError: no module named 'scipy'", ExitCode: 1},
					&sandboxerr.GuestExitError{ExitCode: 1}
			}
			return &runtime.RunOutput{Stdout: "ok\n", ExitCode: 0}, nil
		},
	}
	server := newServer(t, rt, 4)
	e := api.NewEchoServer(server, false)

	sessionID := "session-fix-1"

	resp1, result1 := doRun(t, e, map[string]string{
		"code":       "import scipy",
		"session_id": sessionID,
	})
	require.Equal(t, http.StatusBadRequest, resp1.StatusCode)
	require.Equal(t, models.StatusFailed, result1.Status)
	require.Equal(t, models.CategoryImportError, result1.Category)

	resp2, result2 := doRun(t, e, map[string]string{
		"code":                "print('ok')",
		"session_id":          sessionID,
		"previous_attempt_id": result1.JobID,
	})
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	require.Equal(t, models.StatusSucceeded, result2.Status)

	sessReq := httptest.NewRequest(http.MethodGet, "/logs/session/"+sessionID, nil)
	sessRec := httptest.NewRecorder()
	e.ServeHTTP(sessRec, sessReq)
	require.Equal(t, http.StatusOK, sessRec.Code)

	var session models.Session
	require.NoError(t, json.Unmarshal(sessRec.Body.Bytes(), &session))
	assert.True(t, session.Resolved())
	assert.Len(t, session.AttemptIDs, 2)

	analysisReq := httptest.NewRequest(http.MethodGet, "/logs/analysis", nil)
	analysisRec := httptest.NewRecorder()
	e.ServeHTTP(analysisRec, analysisReq)
	require.Equal(t, http.StatusOK, analysisRec.Code)

	var report analysis.Report
	require.NoError(t, json.Unmarshal(analysisRec.Body.Bytes(), &report))

	found := false
	for _, cat := range report.Categories {
		if cat.Category == models.CategoryImportError {
			found = true
			assert.Equal(t, 1.0, cat.FixRate)
		}
	}
	assert.True(t, found, "expected an import_error category in the analysis report")
}

// TestTimeout asserts a timed-out run returns 504, is categorized, and
// does not surface any harvested output files (partial output from a
// killed container is discarded, not served).
func TestTimeout(t *testing.T) {
	rt := &runtime.MockRuntime{
		RunFunc: func(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
			return nil, fmt.Errorf("local: job %s: %w", spec.JobID, sandboxerr.ErrTimeout)
		},
	}
	server := newServer(t, rt, 4)
	e := api.NewEchoServer(server, false)

	resp, result := doRun(t, e, map[string]string{"code": "import time\ntime.sleep(999)"})

	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, models.StatusTimedOut, result.Status)
	assert.Equal(t, models.CategoryTimeout, result.Category)
	assert.Empty(t, result.OutputFiles)
}

// TestCancellation submits a job, cancels it mid-flight, and expects a
// 499 cancelled result.
func TestCancellation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	rt := &runtime.MockRuntime{
		RunFunc: func(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
			close(started)
			<-release
			return nil, fmt.Errorf("local: job %s: %w", spec.JobID, sandboxerr.ErrCancelled)
		},
	}
	server := newServer(t, rt, 4)
	e := api.NewEchoServer(server, false)

	var resp *http.Response
	var result models.RunResult
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, result = doRun(t, e, map[string]string{"code": "while True: pass"})
	}()

	<-started
	close(release)
	<-done

	assert.Equal(t, 499, resp.StatusCode)
	assert.Equal(t, models.StatusCancelled, result.Status)
	assert.Empty(t, result.OutputFiles)
}

// TestDiagnosticCycle asserts that after the configured number of
// consecutive failures in a session with inject_debug set, the next
// attempt's guest source carries the diagnostic sentinel, and that a
// single failure alone does not trigger it.
func TestDiagnosticCycle(t *testing.T) {
	var sawSentinelOnAttempt []bool
	rt := &runtime.MockRuntime{
		RunFunc: func(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
			source, err := os.ReadFile(filepath.Join(spec.CodePath, "main.py"))
			require.NoError(t, err)
			sawSentinelOnAttempt = append(sawSentinelOnAttempt, strings.Contains(string(source), instrument.Sentinel))
			return &runtime.RunOutput{Stderr: "ValueError: bad", ExitCode: 1}, &sandboxerr.GuestExitError{ExitCode: 1}
		},
	}
	server := newServer(t, rt, 4)
	e := api.NewEchoServer(server, false)

	sessionID := "session-diagnostic-1"
	fields := map[string]string{
		"code":         "raise ValueError('bad')",
		"session_id":   sessionID,
		"inject_debug": "true",
	}

	_, result1 := doRun(t, e, fields)
	fields["previous_attempt_id"] = result1.JobID
	doRun(t, e, fields)

	require.Len(t, sawSentinelOnAttempt, 2)
	assert.False(t, sawSentinelOnAttempt[0], "the first attempt has no failure history yet and should not be instrumented")
	assert.True(t, sawSentinelOnAttempt[1], "a second consecutive failure at the configured threshold should be instrumented")
}

// TestCapacityLimit asserts the admission front-end returns 503 once the
// concurrency cap is saturated.
func TestCapacityLimit(t *testing.T) {
	release := make(chan struct{})
	rt := &runtime.MockRuntime{
		RunFunc: func(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
			<-release
			return &runtime.RunOutput{ExitCode: 0}, nil
		},
	}
	server := newServer(t, rt, 1)
	e := api.NewEchoServer(server, false)

	done := make(chan struct{})
	go func() {
		defer close(done)
		doRun(t, e, map[string]string{"code": "print(1)"}) //nolint:errcheck
	}()

	time.Sleep(50 * time.Millisecond) // let the first request occupy the only slot

	body, contentType := multipartBody(t, map[string]string{"code": "print(2)"})
	req := httptest.NewRequest(http.MethodPost, "/run", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	close(release)
	<-done
}

// TestHealthAndVersion checks the two operational endpoints independent of
// any job submission.
func TestHealthAndVersion(t *testing.T) {
	server := newServer(t, &runtime.MockRuntime{}, 2)
	e := api.NewEchoServer(server, false)

	healthReq := httptest.NewRequest(http.MethodGet, "/health", nil)
	healthRec := httptest.NewRecorder()
	e.ServeHTTP(healthRec, healthReq)
	assert.Equal(t, http.StatusOK, healthRec.Code)

	versionReq := httptest.NewRequest(http.MethodGet, "/version", nil)
	versionRec := httptest.NewRecorder()
	e.ServeHTTP(versionRec, versionReq)
	assert.Equal(t, http.StatusOK, versionRec.Code)
}
