package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reloadedDefinition = `
name: docs-reloaded
triggers:
  dispatch: true
jobs:
  - name: build
    steps:
      - run: make docs
`

func TestPerformReloadAppliesNewDefinition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docspipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(reloadedDefinition), 0o600))

	d := testDaemon(t, testConfig())
	w, err := NewPipelineWatcher(path, d)
	require.NoError(t, err)
	defer w.watcher.Close()

	require.NoError(t, w.performReload())
	assert.Equal(t, "docs-reloaded", d.currentConfig().Name)
}

func TestPerformReloadKeepsOldDefinitionOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docspipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs: [\n"), 0o600))

	d := testDaemon(t, testConfig())
	w, err := NewPipelineWatcher(path, d)
	require.NoError(t, err)
	defer w.watcher.Close()

	require.Error(t, w.performReload())
	assert.Equal(t, "docs", d.currentConfig().Name)
}
