package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigAppliesDefaultsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endTime: 3600
sampleSize: 0.1
partitions: 4
networkFile: net.bin
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(3600), cfg.EndTime)
	assert.Equal(t, 0.1, cfg.SampleSize)
	assert.Equal(t, 4, cfg.Partitions)
	assert.Equal(t, "net.bin", cfg.NetworkFile)
	// untouched defaults
	assert.Equal(t, int64(4711), cfg.Seed)
	assert.Equal(t, "output", cfg.OutputDir)
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EndTime = 5
	cfg.StartTime = 10
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SampleSize = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SampleSize = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Partitions = 0
	assert.Error(t, cfg.Validate())

	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigRejectsMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
