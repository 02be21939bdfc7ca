package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379", cfg.BusAddr)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, "taxonomies", cfg.TaxonomyDir)
	assert.Equal(t, 1, cfg.MaxDepth)
	assert.Equal(t, "cypher_dag", cfg.AirflowDAG)
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"service: graph-discovery\nmaxWorkers: 4\nenvironment: staging\n"), 0o644))

	t.Setenv("CHECKMATE_CONFIG_FILE", path)
	t.Setenv("CHECKMATE_ENV", "prod")
	t.Setenv("CHECKMATE_INBOUND_EVENTS", "search, expand")

	cfg, err := Load()
	require.NoError(t, err)

	// File fills unset knobs; env wins where both are set.
	assert.Equal(t, "graph-discovery", cfg.Service)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, []string{"search", "expand"}, cfg.InboundEvents)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))
	t.Setenv("CHECKMATE_CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARSE_ERROR")
}

func TestLoadRejectsNegativeWorkers(t *testing.T) {
	t.Setenv("CHECKMATE_MAX_WORKERS", "-2")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIG_ERROR")
}
