package fsstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumicore/sandrun/pkg/models"
)

func TestStore_WriteAndGetLog(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	entry := models.LogEntry{LogID: "log-1", Timestamp: time.Now().UTC(), Category: models.CategoryImportError}
	require.NoError(t, store.WriteFailure(entry))

	got, ok := store.GetLog("log-1")
	require.True(t, ok)
	assert.Equal(t, entry.Category, got.Category)
}

func TestStore_GetLog_NotFound(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, ok := store.GetLog("missing")
	assert.False(t, ok)
}

func TestStore_RecentFailuresMostRecentFirst(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.WriteFailure(models.LogEntry{LogID: "log-1", Timestamp: now}))
	require.NoError(t, store.WriteFailure(models.LogEntry{LogID: "log-2", Timestamp: now.Add(time.Second)}))

	recent, err := store.RecentFailures(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "log-2", recent[0].LogID)
	assert.Equal(t, "log-1", recent[1].LogID)
}

func TestStore_WriteSuccess_BackfillsFixedBy(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.WriteFailure(models.LogEntry{LogID: "attempt-1", Timestamp: now, Category: models.CategoryImportError}))
	require.NoError(t, store.WriteSuccess(models.LogEntry{LogID: "attempt-2", Timestamp: now, PreviousAttemptID: "attempt-1"}))

	fixed, ok := store.GetLog("attempt-1")
	require.True(t, ok)
	assert.Equal(t, "attempt-2", fixed.FixedBy)
}

func TestStore_AppendSession_TracksAttemptsAndResolution(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.AppendSession("session-1", "attempt-1", false))
	require.NoError(t, store.AppendSession("session-1", "attempt-2", true))

	session, ok := store.GetSession("session-1")
	require.True(t, ok)
	assert.Equal(t, []string{"attempt-1", "attempt-2"}, session.AttemptIDs)
	assert.True(t, session.Resolved())
}

func TestStore_GetSession_NotFound(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, ok := store.GetSession("missing")
	assert.False(t, ok)
}

func TestStore_Clear_RemovesEntriesAndSessionsButStoreStaysUsable(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.WriteFailure(models.LogEntry{LogID: "log-1", Timestamp: now}))
	require.NoError(t, store.AppendSession("session-1", "log-1", false))

	require.NoError(t, store.Clear())

	_, ok := store.GetLog("log-1")
	assert.False(t, ok)
	_, ok = store.GetSession("session-1")
	assert.False(t, ok)

	// the store must remain writable after Clear recreates its directory tree.
	require.NoError(t, store.WriteFailure(models.LogEntry{LogID: "log-2", Timestamp: now}))
	_, ok = store.GetLog("log-2")
	assert.True(t, ok)
}
