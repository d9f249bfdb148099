package models

import "time"

// RunResult is the harvested outcome of one job execution, assembled by the
// Job Manager after the Runtime Backend returns.
type RunResult struct {
	JobID                string          `json:"job_id"`
	LogID                string          `json:"log_id"`
	SessionID            string          `json:"session_id"`
	ReturnCode           int             `json:"return_code"`
	Stdout               string          `json:"stdout"`
	Stderr               string          `json:"stderr"`
	OutputFiles          []HarvestedFile `json:"output_files"`
	Duration             time.Duration   `json:"duration"`
	Status               JobStatus       `json:"status"`
	Category             LogCategory     `json:"category,omitempty"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	DiagnosticModeEvents []string        `json:"diagnostic_mode_events,omitempty"`
	DiagnosticMode       *DiagnosticMode `json:"diagnostic_mode,omitempty"`
}

// DiagnosticMode reports a transition of Diagnostic Instrumentation on this
// attempt: either it was just turned on (Activated) or just stripped back
// out after a successful run (Deactivated, with CleanedCode set).
type DiagnosticMode struct {
	Activated   bool   `json:"activated,omitempty"`
	Deactivated bool   `json:"deactivated,omitempty"`
	Message     string `json:"message,omitempty"`
	CleanedCode string `json:"cleaned_code,omitempty"`
}
