package app

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/manifest-sync/internal/config"
)

const testManifest = `spec:
  repositories:
    - id: "1"
      workspace: acme
      repoSlug: widgets
      version: "1.0.0"
    - id: "2"
      workspace: acme
      repoSlug: gadgets
      version: "2.1.0"
`

// newTestConfig writes a manifest to a temp dir and returns a config reading it
// with a file store next to it
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(testManifest), 0o600))

	cfg, err := config.Parse(fmt.Appendf(nil, `
manifest:
  url: file://%s
  type: file
sync:
  interval: 1h
  timeout: 1m
  statusFile: %s
storage:
  type: file
  file:
    path: %s
sink:
  type: log
`, manifestPath, filepath.Join(dir, "status.json"), filepath.Join(dir, "versions.json")))
	require.NoError(t, err)
	return cfg
}
