// Package job implements the Job Manager: the pipeline that turns an
// accepted SubmitRequest into a materialized workspace, a Sandbox Protocol
// RunRequest, a Runtime Backend invocation, and a durable LogEntry.
package job

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lumicore/sandrun/internal/instrument"
	"github.com/lumicore/sandrun/internal/logstore"
	"github.com/lumicore/sandrun/internal/storage"
	"github.com/lumicore/sandrun/internal/workspace"
	"github.com/lumicore/sandrun/pkg/models"
	"github.com/lumicore/sandrun/pkg/protocol"
	"github.com/lumicore/sandrun/pkg/runtime"
	"github.com/lumicore/sandrun/pkg/sandboxerr"
)

// ErrTooBusy is returned by Execute when the concurrency cap is saturated.
var ErrTooBusy = errors.New("job: at capacity")

// Options configures a Manager.
type Options struct {
	Runtime          runtime.SandboxRuntime
	JobStore         storage.JobStore
	LogStore         logstore.LogStore
	WorkspaceRoot    string
	ImageTag         string
	MaxConcurrent    int
	DefaultTimeout   time.Duration
	FailureThreshold int
	OutputURLPrefix  string // e.g. "/outputs"
	MaxSourceBytes   int64  // 0 disables the cap
}

// guestReport is the mutable state a RunSpec.OnMarker handler accumulates
// while a guest is running: whether it ever emitted report_failure, and
// with what message.
type guestReport struct {
	mu      sync.Mutex
	failed  bool
	message string
}

func (g *guestReport) reportFailure(message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.failed {
		g.failed = true
		g.message = message
	}
}

func (g *guestReport) result() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failed, g.message
}

// Manager drives jobs from submission to a terminal state.
type Manager struct {
	rt       runtime.SandboxRuntime
	jobs     storage.JobStore
	logs     logstore.LogStore
	wsRoot   string
	imageTag string

	defaultTimeout   time.Duration
	failureThreshold int
	outputURLPrefix  string
	maxSourceBytes   int64

	sem         chan struct{}
	activeCount atomic.Int32
	cancelMu    sync.Mutex
	cancelFuncs map[string]context.CancelFunc
}

// New constructs a Manager.
func New(opts Options) *Manager {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	defaultTimeout := opts.DefaultTimeout
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Minute
	}
	threshold := opts.FailureThreshold
	if threshold <= 0 {
		threshold = 2
	}

	return &Manager{
		rt:               opts.Runtime,
		jobs:             opts.JobStore,
		logs:             opts.LogStore,
		wsRoot:           opts.WorkspaceRoot,
		imageTag:         opts.ImageTag,
		defaultTimeout:   defaultTimeout,
		failureThreshold: threshold,
		outputURLPrefix:  opts.OutputURLPrefix,
		maxSourceBytes:   opts.MaxSourceBytes,
		sem:              make(chan struct{}, maxConcurrent),
		cancelFuncs:      make(map[string]context.CancelFunc),
	}
}

// Submit allocates a job ID, reuses or creates the session ID, and stores a
// pending Job. It does not run the job; call Execute for that. The attempt
// is appended to its session only when Execute records its log entry.
func (m *Manager) Submit(req models.SubmitRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("job: %w: %w", sandboxerr.ErrAdmission, err)
	}
	if m.maxSourceBytes > 0 && int64(len(req.Code)) > m.maxSourceBytes {
		return "", fmt.Errorf("job: source exceeds %d bytes: %w", m.maxSourceBytes, sandboxerr.ErrAdmission)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	j := models.Job{
		ID:                uuid.New().String(),
		UserID:            req.UserID,
		SessionID:         sessionID,
		PreviousAttemptID: req.PreviousAttemptID,
		SourceCode:        req.Code,
		InputImageRef:     req.ImageRef,
		Status:            models.StatusPending,
		CreatedAt:         time.Now().UTC(),
	}

	if err := m.jobs.Store(j); err != nil {
		return "", fmt.Errorf("job: store pending job: %w: %w", sandboxerr.ErrBackend, err)
	}

	return j.ID, nil
}

// Execute runs a previously submitted job to completion, respecting the
// concurrency cap (ErrTooBusy if saturated) and ctx's deadline/cancellation.
func (m *Manager) Execute(ctx context.Context, jobID string, req models.SubmitRequest) (*models.RunResult, error) {
	select {
	case m.sem <- struct{}{}:
	default:
		return nil, fmt.Errorf("job: %w", ErrTooBusy)
	}
	defer func() { <-m.sem }()

	m.activeCount.Add(1)
	defer m.activeCount.Add(-1)

	j, ok := m.jobs.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("job: %s: %w", jobID, sandboxerr.ErrAdmission)
	}

	runCtx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	m.registerCancel(jobID, cancel)
	defer m.unregisterCancel(jobID)
	defer cancel()

	now := time.Now().UTC()
	j.Status = models.StatusRunning
	j.StartedAt = &now
	if err := m.jobs.Store(j); err != nil {
		return nil, fmt.Errorf("job: %s: update running status: %w: %w", jobID, sandboxerr.ErrBackend, err)
	}

	result := m.execute(runCtx, &j, req)

	completed := time.Now().UTC()
	j.Status = result.Status
	j.CompletedAt = &completed
	if err := m.jobs.Store(j); err != nil {
		return result, fmt.Errorf("job: %s: update final status: %w: %w", jobID, sandboxerr.ErrBackend, err)
	}
	if err := m.jobs.StoreResult(jobID, *result); err != nil {
		return result, fmt.Errorf("job: %s: store result: %w: %w", jobID, sandboxerr.ErrBackend, err)
	}

	m.recordLog(&j, req, result)

	return result, nil
}

// Cancel tears down a running job's context, leading the Runtime Backend to
// kill its container and Execute to return a cancelled RunResult.
func (m *Manager) Cancel(jobID string) bool {
	m.cancelMu.Lock()
	cancel, ok := m.cancelFuncs[jobID]
	m.cancelMu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// ActiveCount reports how many jobs are currently executing.
func (m *Manager) ActiveCount() int {
	return int(m.activeCount.Load())
}

func (m *Manager) registerCancel(jobID string, cancel context.CancelFunc) {
	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()
	m.cancelFuncs[jobID] = cancel
}

func (m *Manager) unregisterCancel(jobID string) {
	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()
	delete(m.cancelFuncs, jobID)
}

func (m *Manager) execute(ctx context.Context, j *models.Job, req models.SubmitRequest) *models.RunResult {
	result := &models.RunResult{JobID: j.ID, LogID: j.ID, SessionID: j.SessionID}

	sourceCode := j.SourceCode
	if m.shouldInject(j, req) {
		injected, err := instrument.Inject(sourceCode)
		if err == nil {
			sourceCode = injected
			j.DiagnosticInjected = true
		}
	}

	root := filepath.Join(m.wsRoot, j.ID)
	ws, err := workspace.Materialize(root, sourceCode, req.Image, "input.bin")
	if err != nil {
		return failureResult(result, err, models.StatusFailed)
	}
	j.WorkspacePath = root

	runReq := protocol.BuildRequest(protocol.BuildOptions{
		RequestGUID:      j.ID,
		ScriptName:       "main.py",
		ScriptParameters: req.ScriptParameters,
		PreparedImages:   preparedImages(req),
	})
	if err := runReq.Validate(); err != nil {
		_ = ws.Cleanup() //nolint:errcheck
		return failureResult(result, err, models.StatusFailed)
	}
	requestJSON, err := runReq.Marshal()
	if err != nil {
		_ = ws.Cleanup() //nolint:errcheck
		return failureResult(result, err, models.StatusFailed)
	}

	report := &guestReport{}

	spec := runtime.RunSpec{
		JobID:       j.ID,
		ImageTag:    m.imageTag,
		CodePath:    ws.Code,
		InputPath:   ws.Input,
		OutputPath:  ws.Output,
		RequestJSON: requestJSON,
		OnMarker:    m.onMarker(report),
		Env:         []string{"PYTHONUNBUFFERED=1"},
		Timeout:     m.defaultTimeout,
	}

	out, runErr := m.rt.Run(ctx, spec)
	if out != nil {
		result.Stdout = out.Stdout
		result.Stderr = out.Stderr
		result.ReturnCode = out.ExitCode
		result.Duration = out.Duration
	}

	failed, failureMessage := report.result()

	switch {
	case runErr == nil && failed:
		result.Status = models.StatusFailed
		result.ErrorMessage = failureMessage
		result.Category = logstore.DeriveCategory(failureMessage, false, false)
	case runErr == nil:
		result.Status = models.StatusSucceeded
	case errors.Is(runErr, sandboxerr.ErrTimeout):
		result.Status = models.StatusTimedOut
		result.Category = models.CategoryTimeout
		result.ErrorMessage = runErr.Error()
	case errors.Is(runErr, sandboxerr.ErrCancelled):
		result.Status = models.StatusCancelled
		result.Category = models.CategoryCancelled
		result.ErrorMessage = runErr.Error()
	default:
		result.Status = models.StatusFailed
		result.ErrorMessage = errorMessage(result.Stderr, runErr)
		result.Category = logstore.DeriveCategory(result.ErrorMessage, false, false)
	}

	if j.DiagnosticInjected {
		result.DiagnosticMode = m.diagnosticModeEvent(sourceCode, result.Status == models.StatusSucceeded)
		result.DiagnosticModeEvents = append(result.DiagnosticModeEvents, diagnosticEventName(result.DiagnosticMode))
	}

	// Partial output from a cancelled or timed-out job is discarded rather
	// than harvested: the container was killed mid-write and its output/
	// tree is not trustworthy.
	if result.Status == models.StatusCancelled || result.Status == models.StatusTimedOut {
		_ = ws.Cleanup() //nolint:errcheck
		return result
	}

	files, harvestErr := ws.Harvest(fmt.Sprintf("%s/%s", m.outputURLPrefix, j.ID))
	if harvestErr == nil {
		result.OutputFiles = files
	}
	_ = ws.CleanupCode() //nolint:errcheck

	return result
}

// onMarker builds the RunSpec.OnMarker handler for one run: it records
// report_failure so the success/failure classification downstream can
// downgrade a zero-exit run, and acknowledges every confirmation-capable
// operation marker so the guest's synchronous stdin read never blocks.
func (m *Manager) onMarker(report *guestReport) func(protocol.Marker) *protocol.ConfirmationResult {
	return func(marker protocol.Marker) *protocol.ConfirmationResult {
		if marker.Kind == protocol.MarkerReportFailure {
			report.reportFailure(marker.Text)
			return nil
		}
		if !marker.WantsConfirm {
			return nil
		}
		return &protocol.ConfirmationResult{RequestID: marker.RequestID, IsSuccess: true}
	}
}

// diagnosticModeEvent reports the Diagnostic Instrumentation transition for
// an attempt that ran instrumented code: deactivated (with the cleaned
// source) once it finally succeeds, activated on every attempt before that.
func (m *Manager) diagnosticModeEvent(instrumentedSource string, succeeded bool) *models.DiagnosticMode {
	if succeeded {
		return &models.DiagnosticMode{
			Deactivated: true,
			Message:     "diagnostic instrumentation removed after a successful run",
			CleanedCode: instrument.Strip(instrumentedSource),
		}
	}
	return &models.DiagnosticMode{
		Activated: true,
		Message:   "diagnostic instrumentation active for this attempt",
	}
}

func diagnosticEventName(mode *models.DiagnosticMode) string {
	if mode.Deactivated {
		return "deactivated"
	}
	return "activated"
}

func (m *Manager) shouldInject(j *models.Job, req models.SubmitRequest) bool {
	if !req.InjectDebug || j.SessionID == "" {
		return false
	}
	session, ok := m.logs.GetSession(j.SessionID)
	if !ok {
		return false
	}

	outcomes := make([]models.LogOutcome, 0, len(session.AttemptIDs))
	for _, id := range session.AttemptIDs {
		if entry, found := m.logs.GetLog(id); found {
			outcomes = append(outcomes, entry.Outcome)
		}
	}

	return instrument.ShouldInject(&session, outcomes, m.failureThreshold, req.InjectDebug)
}

func (m *Manager) recordLog(j *models.Job, req models.SubmitRequest, result *models.RunResult) {
	entry := models.LogEntry{
		LogID:             j.ID,
		Timestamp:         time.Now().UTC(),
		CodeHash:          hashSource(j.SourceCode),
		UserPrompt:        req.UserPrompt,
		ModelTag:          req.AIModel,
		SessionID:         j.SessionID,
		PreviousAttemptID: j.PreviousAttemptID,
	}

	var writeErr error
	if result.Status == models.StatusSucceeded {
		entry.Outcome = models.OutcomeSuccess
		writeErr = m.logs.WriteSuccess(entry)
	} else {
		entry.Outcome = models.OutcomeFailure
		entry.Category = result.Category
		entry.ErrorMessage = result.ErrorMessage
		entry.Stderr = result.Stderr
		writeErr = m.logs.WriteFailure(entry)
	}
	if writeErr != nil {
		fmt.Fprintf(os.Stderr, "job: %s: write log entry: %v\n", j.ID, writeErr)
	}

	if err := m.logs.AppendSession(j.SessionID, j.ID, result.Status == models.StatusSucceeded); err != nil {
		fmt.Fprintf(os.Stderr, "job: %s: append session: %v\n", j.ID, err)
	}
}

func preparedImages(req models.SubmitRequest) map[string]string {
	if req.ImageRef == "" {
		return nil
	}
	return map[string]string{"default": req.ImageRef}
}

func failureResult(result *models.RunResult, err error, status models.JobStatus) *models.RunResult {
	result.Status = status
	result.ErrorMessage = err.Error()
	result.Category = logstore.DeriveCategory(err.Error(), false, false)
	return result
}

func errorMessage(stderr string, err error) string {
	var guestExit *sandboxerr.GuestExitError
	if errors.As(err, &guestExit) && stderr != "" {
		return stderr
	}
	return err.Error()
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
