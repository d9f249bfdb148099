package models

import "time"

// LogEntry is a durable, append-only audit record of one terminal job
// outcome. Only FixedBy may be set after the entry is first written.
type LogEntry struct {
	LogID             string      `json:"log_id"`
	Timestamp         time.Time   `json:"timestamp"`
	Outcome           LogOutcome  `json:"outcome"`
	CodeHash          string      `json:"code_hash"`
	UserPrompt        string      `json:"user_prompt,omitempty"`
	ModelTag          string      `json:"model_tag,omitempty"`
	Category          LogCategory `json:"category,omitempty"`
	ErrorMessage      string      `json:"error_message,omitempty"`
	Stderr            string      `json:"stderr,omitempty"`
	SessionID         string      `json:"session_id"`
	PreviousAttemptID string      `json:"previous_attempt_id,omitempty"`
	FixedBy           string      `json:"fixed_by,omitempty"`
	Tags              []string    `json:"tags,omitempty"`
}
