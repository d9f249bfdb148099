package models

import "time"

// Job is one execution attempt: the accepted run-request plus the
// bookkeeping the Job Manager mutates as it drives the attempt to a
// terminal state.
type Job struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id,omitempty"`
	SessionID          string     `json:"session_id"`
	PreviousAttemptID  string     `json:"previous_attempt_id,omitempty"`
	SourceCode         string     `json:"source_code"`
	InputImageRef      string     `json:"input_image_ref,omitempty"`
	WorkspacePath      string     `json:"workspace_path,omitempty"`
	Status             JobStatus  `json:"status"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	DiagnosticInjected bool       `json:"diagnostic_injected"`
}

// JobResponse is returned while a job is still in flight.
type JobResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}
