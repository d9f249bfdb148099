package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/lumicore/sandrun/pkg/models"
)

// Sentinel errors for the TUI client.
var (
	ErrAPIError          = errors.New("API error")
	ErrHealthCheckFailed = errors.New("health check failed")
)

// Client is an HTTP client for the sandrun admission front-end.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// RunParams holds everything the editor view can attach to a submission.
type RunParams struct {
	Code              string
	Image             []byte
	ImageName         string
	UserID            string
	SessionID         string
	PreviousAttemptID string
	UserPrompt        string
	AIModel           string
	InjectDebug       bool
	ScriptParameters  string
}

// SubmitRun posts a guest program and blocks until the sandbox returns a
// terminal result, mirroring the synchronous /run contract.
func (c *Client) SubmitRun(ctx context.Context, params RunParams) (*models.RunResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("code", params.Code); err != nil {
		return nil, fmt.Errorf("write code field: %w", err)
	}
	writeField(writer, "user_id", params.UserID)
	writeField(writer, "session_id", params.SessionID)
	writeField(writer, "previous_attempt_id", params.PreviousAttemptID)
	writeField(writer, "user_prompt", params.UserPrompt)
	writeField(writer, "ai_model", params.AIModel)
	writeField(writer, "script_parameters", params.ScriptParameters)
	if params.InjectDebug {
		writeField(writer, "inject_debug", "true")
	}

	if len(params.Image) > 0 {
		name := params.ImageName
		if name == "" {
			name = "input"
		}
		part, err := writer.CreateFormFile("image", name)
		if err != nil {
			return nil, fmt.Errorf("create image form field: %w", err)
		}
		if _, err := part.Write(params.Image); err != nil {
			return nil, fmt.Errorf("write image bytes: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // standard practice for HTTP client

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result models.RunResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w (status %d): %s", ErrAPIError, resp.StatusCode, string(respBody))
	}

	return &result, nil
}

func writeField(writer *multipart.Writer, field, value string) {
	if value == "" {
		return
	}
	_ = writer.WriteField(field, value) //nolint:errcheck
}

// GetLogSummary retrieves recent failures and successes from
// GET /logs/summary.
func (c *Client) GetLogSummary(ctx context.Context) (failures, successes []models.LogEntry, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/logs/summary", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // standard practice for HTTP client

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best effort error message
		return nil, nil, fmt.Errorf("%w (status %d): %s", ErrAPIError, resp.StatusCode, string(body))
	}

	var summary struct {
		Failures  []models.LogEntry `json:"failures"`
		Successes []models.LogEntry `json:"successes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return summary.Failures, summary.Successes, nil
}

// HealthCheck performs a health check on the API.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // standard practice for HTTP client

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w (status %d)", ErrHealthCheckFailed, resp.StatusCode)
	}

	return nil
}
