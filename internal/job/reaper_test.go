package job

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumicore/sandrun/pkg/runtime"
)

func TestReapOnce_RemovesOnlyAgedWorkspaces(t *testing.T) {
	mgr := newTestManager(t, &runtime.MockRuntime{}, 1)

	oldDir := filepath.Join(mgr.wsRoot, "old-job")
	freshDir := filepath.Join(mgr.wsRoot, "fresh-job")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	require.NoError(t, os.MkdirAll(freshDir, 0o755))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldDir, old, old))

	mgr.reapOnce(time.Hour)

	_, err := os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err), "expected the aged workspace to be removed")

	_, err = os.Stat(freshDir)
	assert.NoError(t, err, "expected the fresh workspace to survive the sweep")
}

func TestReapOnce_IgnoresNonDirectoryEntries(t *testing.T) {
	mgr := newTestManager(t, &runtime.MockRuntime{}, 1)

	stray := filepath.Join(mgr.wsRoot, "stray.txt")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stray, old, old))

	assert.NotPanics(t, func() { mgr.reapOnce(time.Hour) })

	_, err := os.Stat(stray)
	assert.NoError(t, err, "reapOnce only removes directories")
}

func TestReapOnce_EmptyWorkspaceRootIsNoop(t *testing.T) {
	mgr := newTestManager(t, &runtime.MockRuntime{}, 1)
	assert.NotPanics(t, func() { mgr.reapOnce(time.Hour) })
}
