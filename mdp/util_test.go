package mdp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupIPCEndpointRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.ipc")
	require.NoError(t, os.WriteFile(path, []byte{}, 0o600))

	cleanupIPCEndpoint("ipc://" + path)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected the ipc file to be removed")
}

func TestCleanupIPCEndpointToleratesMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "never-existed.ipc")

	assert.NotPanics(t, func() {
		cleanupIPCEndpoint("ipc://" + path)
	})
}

func TestCleanupIPCEndpointIgnoresOtherTransports(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-touched")
	require.NoError(t, os.WriteFile(path, []byte{}, 0o600))

	cleanupIPCEndpoint("tcp://" + path)
	cleanupIPCEndpoint("inproc://" + path)

	_, err := os.Stat(path)
	assert.NoError(t, err, "non-ipc endpoints must not touch the filesystem")
}
