package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lumicore/sandrun/internal/analysis"
	"github.com/lumicore/sandrun/internal/job"
	"github.com/lumicore/sandrun/internal/runtime"
	"github.com/lumicore/sandrun/pkg/models"
	"github.com/lumicore/sandrun/pkg/sandboxerr"
)

// =============================================================================
// HTTP Handlers
// =============================================================================

// HandleRun submits and synchronously executes a guest program.
//
// @HTTP   POST /run
// @Accept multipart/form-data
// @Param  code               formData string true  "guest program source"
// @Param  image              formData file   false "optional input image"
// @Param  image_ref          formData string false "reference to a prepared library image"
// @Param  user_id            formData string false
// @Param  session_id         formData string false
// @Param  previous_attempt_id formData string false
// @Param  user_prompt        formData string false
// @Param  ai_model           formData string false
// @Param  inject_debug       formData bool   false
// @Param  script_parameters  formData string false
// @Return 200 {object} models.RunResult "Guest succeeded"
// @Return 400 {object} models.ErrorResponse "Guest failed or request malformed"
// @Return 503 {object} models.ErrorResponse "At capacity"
// @Return 504 {object} models.ErrorResponse "Timed out".
func (s *Server) HandleRun(c echo.Context) error {
	req, err := parseSubmitRequest(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	jobID, err := s.jobs.Submit(req)
	if err != nil {
		if errors.Is(err, sandboxerr.ErrAdmission) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	result, err := s.jobs.Execute(c.Request().Context(), jobID, req)
	if err != nil {
		if errors.Is(err, job.ErrTooBusy) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "at capacity, try again later")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(statusForResult(result.Status), result)
}

func statusForResult(status models.JobStatus) int {
	switch status {
	case models.StatusSucceeded:
		return http.StatusOK
	case models.StatusTimedOut:
		return http.StatusGatewayTimeout
	case models.StatusCancelled:
		return 499
	case models.StatusFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseSubmitRequest(c echo.Context) (models.SubmitRequest, error) {
	req := models.SubmitRequest{
		Code:              c.FormValue("code"),
		ImageRef:          c.FormValue("image_ref"),
		UserID:            c.FormValue("user_id"),
		SessionID:         c.FormValue("session_id"),
		PreviousAttemptID: c.FormValue("previous_attempt_id"),
		UserPrompt:        c.FormValue("user_prompt"),
		AIModel:           c.FormValue("ai_model"),
		ScriptParameters:  c.FormValue("script_parameters"),
	}

	if injectDebug := c.FormValue("inject_debug"); injectDebug != "" {
		v, err := strconv.ParseBool(injectDebug)
		if err != nil {
			return req, fmt.Errorf("invalid inject_debug: %w", err)
		}
		req.InjectDebug = v
	}

	if fileHeader, err := c.FormFile("image"); err == nil {
		f, err := fileHeader.Open()
		if err != nil {
			return req, fmt.Errorf("open uploaded image: %w", err)
		}
		defer f.Close() //nolint:errcheck

		data, err := io.ReadAll(f)
		if err != nil {
			return req, fmt.Errorf("read uploaded image: %w", err)
		}
		req.Image = data
	}

	if err := req.Validate(); err != nil {
		return req, err
	}

	return req, nil
}

// HandleCancel cancels a job currently executing.
//
// @HTTP   POST /run/:job_id/cancel
// @Return 200 {object} map[string]bool "Whether a running job was found and cancelled".
func (s *Server) HandleCancel(c echo.Context) error {
	jobID := c.Param("job_id")
	if jobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "job_id required")
	}

	cancelled := s.jobs.Cancel(jobID)
	return c.JSON(http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// HandleOutput serves one harvested artifact, 404ing once it has aged past
// the retention window.
//
// @HTTP   GET /outputs/:job_id/*
// @Return 200 file "Harvested artifact"
// @Return 404 {object} models.ErrorResponse "Not found or past retention".
func (s *Server) HandleOutput(c echo.Context) error {
	jobID := c.Param("job_id")
	relPath := c.Param("*")
	if jobID == "" || relPath == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "job_id and path required")
	}

	path := filepath.Join(s.outputsRoot, jobID, "output", filepath.Clean("/"+relPath))

	info, err := os.Stat(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "output not found")
	}
	if s.outputRetention > 0 && time.Since(info.ModTime()) > s.outputRetention {
		return echo.NewHTTPError(http.StatusNotFound, "output past retention window")
	}

	return c.File(path)
}

// HandleLogsSummary returns recent failures and successes together.
//
// @HTTP GET /logs/summary
func (s *Server) HandleLogsSummary(c echo.Context) error {
	limit := limitParam(c, 20)

	failures, err := s.logs.RecentFailures(limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	successes, err := s.logs.RecentSuccesses(limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"failures":  failures,
		"successes": successes,
	})
}

// HandleLogsFailures returns recent failure log entries.
//
// @HTTP GET /logs/failures
func (s *Server) HandleLogsFailures(c echo.Context) error {
	entries, err := s.logs.RecentFailures(limitParam(c, 20))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

// HandleLogsSuccesses returns recent success log entries.
//
// @HTTP GET /logs/successes
func (s *Server) HandleLogsSuccesses(c echo.Context) error {
	entries, err := s.logs.RecentSuccesses(limitParam(c, 20))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

// HandleLogsSession returns one session's bookkeeping record.
//
// @HTTP GET /logs/session/:id
func (s *Server) HandleLogsSession(c echo.Context) error {
	session, ok := s.logs.GetSession(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, session)
}

// HandleLogsLog returns one log entry.
//
// @HTTP GET /logs/log/:id
func (s *Server) HandleLogsLog(c echo.Context) error {
	entry, ok := s.logs.GetLog(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "log not found")
	}
	return c.JSON(http.StatusOK, entry)
}

// HandleLogsAnalysis computes and returns the fix-rate/pattern analysis
// report over the recent log corpus.
//
// @HTTP GET /logs/analysis
func (s *Server) HandleLogsAnalysis(c echo.Context) error {
	limit := limitParam(c, 500)

	failures, err := s.logs.RecentFailures(limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	successes, err := s.logs.RecentSuccesses(limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	report := analysis.Analyze(failures, successes)
	return c.JSON(http.StatusOK, report)
}

// HandleLogsClear wipes the execution log corpus.
//
// @HTTP POST /logs/clear
func (s *Server) HandleLogsClear(c echo.Context) error {
	if err := s.logs.Clear(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleVersion reports build and active-backend information.
//
// @HTTP GET /version
func (s *Server) HandleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"version": s.version,
		"backend": string(runtime.DetectBackendType()),
	})
}

// HandleHealth returns the health status of the service.
//
// @HTTP GET /health
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
		"active": s.jobs.ActiveCount(),
	})
}

func limitParam(c echo.Context, def int) int {
	raw := strings.TrimSpace(c.QueryParam("limit"))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
