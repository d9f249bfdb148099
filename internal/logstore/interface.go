package logstore

import (
	"github.com/lumicore/sandrun/pkg/models"
)

// LogStore defines append-only persistence for execution outcomes, mirroring
// the shape of internal/storage.JobStore but never overwriting a terminal
// record once written (only FixedBy back-pointers are added later, by
// WriteSuccess).
type LogStore interface {
	// WriteFailure persists a failure LogEntry under its date partition.
	WriteFailure(entry models.LogEntry) error

	// WriteSuccess persists a success LogEntry under its date partition, and
	// back-fills the FixedBy pointer of the failure entry.PreviousAttemptID
	// names and of every other unfixed failure in entry's session.
	WriteSuccess(entry models.LogEntry) error

	// GetLog retrieves one entry by ID, searching both failures and
	// successes.
	GetLog(logID string) (models.LogEntry, bool)

	// RecentFailures returns up to limit of the most recent failure entries.
	RecentFailures(limit int) ([]models.LogEntry, error)

	// RecentSuccesses returns up to limit of the most recent success entries.
	RecentSuccesses(limit int) ([]models.LogEntry, error)

	// GetSession retrieves session bookkeeping by ID.
	GetSession(sessionID string) (models.Session, bool)

	// AppendSession records a new attempt ID against a session, creating the
	// session record if it doesn't exist, and marks it resolved when
	// resolved is true.
	AppendSession(sessionID, attemptID string, resolved bool) error

	// Close releases any resources held by the store.
	Close() error

	// Clear removes every failure, success, and session record. Exposed for
	// POST /logs/clear; operators use it to reset the AI-learning corpus
	// between experiments.
	Clear() error
}
