package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadParsesMeshAndMemoryMap(t *testing.T) {
	p := writeTemp(t, `
mesh:
  dim_x: 4
  dim_y: 4
  queue_size: 8
memory_map:
  - base: 0
    size: 65536
    x: 0
    y: 0
  - base: 65536
    size: 65536
    x: 1
    y: 1
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Mesh.DimX)
	assert.Equal(t, 8, cfg.Mesh.QueueSize)
	require.Len(t, cfg.MemoryMap, 2)
	assert.Equal(t, uint64(65536), cfg.MemoryMap[1].Base)
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	p := writeTemp(t, `
mesh:
  dim_x: 2
  dim_y: 2
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Mesh.QueueSize)
	assert.Equal(t, uint64(32), cfg.Mesh.NocWidth)
	assert.Equal(t, uint64(2_000_000), cfg.MaxCycles)
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/scenario.yaml")
	assert.Error(t, err)
}
