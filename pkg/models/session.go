package models

import "time"

// Session groups the attempts that share a session_id, capturing the
// failure-to-success trajectory of a user's iterations on one script.
type Session struct {
	SessionID  string     `json:"session_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	AttemptIDs []string   `json:"attempt_ids"`
}

// Resolved reports whether the session contains at least one success.
func (s *Session) Resolved() bool {
	return s.ResolvedAt != nil
}
