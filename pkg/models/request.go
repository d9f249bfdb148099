package models

import "fmt"

// MaxScriptParametersSize is the upper bound on a RunRequest's
// script_parameters string.
const MaxScriptParametersSize = 64 * 1024

// SubmitRequest is the parsed form of the Admission Front-End's /run
// multipart submission, prior to workspace materialization.
type SubmitRequest struct {
	Code              string // guest program text
	Image             []byte // optional raw image bytes
	ImageRef          string // optional reference to a pre-existing library image
	UserID            string
	SessionID         string
	PreviousAttemptID string
	UserPrompt        string
	AIModel           string
	InjectDebug       bool
	ScriptParameters  string
}

// Validate checks the submission for the required fields and size caps.
func (r *SubmitRequest) Validate() error {
	if r.Code == "" {
		return fmt.Errorf("code is required")
	}
	if len(r.ScriptParameters) > MaxScriptParametersSize {
		return fmt.Errorf("script_parameters exceeds %d bytes", MaxScriptParametersSize)
	}
	return nil
}
