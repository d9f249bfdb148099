package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lumicore/sandrun/pkg/models"
)

// ErrRunFailed is returned when the guest program did not succeed.
var ErrRunFailed = errors.New("run failed")

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Submit a guest program and wait for its result",
	Long: `Run a guest program against the configured sandrun server.

The server materializes a fresh sandbox, executes the program, and
returns its stdout, stderr, and any harvested output files.`,
	Example: `  # Run a script
  sandrunctl run myscript.py

  # Attach an input image
  sandrunctl run myscript.py --image sample.tiff

  # Retry within the same session, linking the attempt for fix-rate tracking
  sandrunctl run myscript_fixed.py --session-id abc123 --previous-attempt-id xyz789`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runImagePath         string
	runUserID            string
	runSessionID         string
	runPreviousAttemptID string
	runUserPrompt        string
	runAIModel           string
	runInjectDebug       bool
	runScriptParameters  string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runImagePath, "image", "", "path to an input image file")
	runCmd.Flags().StringVar(&runUserID, "user-id", "", "user identifier")
	runCmd.Flags().StringVar(&runSessionID, "session-id", "", "session identifier, links retries together")
	runCmd.Flags().StringVar(&runPreviousAttemptID, "previous-attempt-id", "", "log ID of the attempt this one corrects")
	runCmd.Flags().StringVar(&runUserPrompt, "user-prompt", "", "the prompt that produced this guest program")
	runCmd.Flags().StringVar(&runAIModel, "ai-model", "", "model tag that produced this guest program")
	runCmd.Flags().BoolVar(&runInjectDebug, "inject-debug", false, "allow diagnostic instrumentation after repeated failures")
	runCmd.Flags().StringVar(&runScriptParameters, "params", "", "script_parameters string passed to the guest")
}

func runRun(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		printError("file not found: %s", filePath)
		return err
	}

	printVerbose(cmd, "Reading guest program: %s", filePath)
	sourceCode, err := os.ReadFile(filePath)
	if err != nil {
		printError("failed to read file: %v", err)
		return err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("code", string(sourceCode)); err != nil {
		return fmt.Errorf("write code field: %w", err)
	}
	writeOptionalField(writer, "user_id", runUserID)
	writeOptionalField(writer, "session_id", runSessionID)
	writeOptionalField(writer, "previous_attempt_id", runPreviousAttemptID)
	writeOptionalField(writer, "user_prompt", runUserPrompt)
	writeOptionalField(writer, "ai_model", runAIModel)
	writeOptionalField(writer, "script_parameters", runScriptParameters)
	if runInjectDebug {
		writeOptionalField(writer, "inject_debug", strconv.FormatBool(true))
	}

	if runImagePath != "" {
		imageData, err := os.ReadFile(runImagePath)
		if err != nil {
			printError("failed to read image: %v", err)
			return err
		}
		part, err := writer.CreateFormFile("image", filepath.Base(runImagePath))
		if err != nil {
			return fmt.Errorf("create image form field: %w", err)
		}
		if _, err := part.Write(imageData); err != nil {
			return fmt.Errorf("write image bytes: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	printInfo(cmd, "Submitting %s...", filepath.Base(filePath))

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(serverAddr, "/")+"/run", body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := httpClient.Do(req)
	if err != nil {
		printError("request failed: %v", err)
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var result models.RunResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		printError("unexpected response (status %d): %s", resp.StatusCode, string(respBody))
		return err
	}

	printRunResult(cmd, result)

	if result.Status != models.StatusSucceeded {
		return ErrRunFailed
	}
	return nil
}

func writeOptionalField(writer *multipart.Writer, field, value string) {
	if value == "" {
		return
	}
	_ = writer.WriteField(field, value) //nolint:errcheck
}

func printRunResult(cmd *cobra.Command, result models.RunResult) {
	switch result.Status {
	case models.StatusSucceeded:
		printInfo(cmd, "✓ job %s succeeded (duration: %v)", result.JobID, result.Duration)
	default:
		printInfo(cmd, "✗ job %s %s (category: %s)", result.JobID, result.Status, result.Category)
		if result.ErrorMessage != "" {
			printInfo(cmd, "  %s", result.ErrorMessage)
		}
	}

	if !isQuiet(cmd) && result.Stdout != "" {
		fmt.Println("\n--- Stdout ---")
		fmt.Println(result.Stdout)
	}
	if !isQuiet(cmd) && result.Stderr != "" {
		fmt.Println("\n--- Stderr ---")
		fmt.Println(result.Stderr)
	}
	if len(result.OutputFiles) > 0 {
		printInfo(cmd, "\nOutput files:")
		for _, f := range result.OutputFiles {
			printInfo(cmd, "  %s (%s, %d bytes)", f.Name, f.Type, f.Size)
		}
	}
}
