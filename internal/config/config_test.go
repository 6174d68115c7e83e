package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbroker/kbroker/internal/config"
)

func TestNewConfigReturnsDefaults(t *testing.T) {
	c := config.NewConfig()
	assert.Equal(t, config.DefaultBindAddr, c.BindAddr)
	assert.Equal(t, config.DefaultMetadataLogPath, c.MetadataLogPath)
	assert.Equal(t, config.DefaultLogDir, c.LogDir)
	assert.Equal(t, config.DefaultLogLevel, c.LogLevel)
}

func TestFromFileEmptyPathReturnsDefaults(t *testing.T) {
	c, err := config.FromFile("")
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig(), c)
}

func TestFromFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kbroker.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
bind_addr = "0.0.0.0:9093"
log_level = "debug"
`), 0o644))

	c, err := config.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9093", c.BindAddr)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, config.DefaultMetadataLogPath, c.MetadataLogPath)
	assert.Equal(t, config.DefaultLogDir, c.LogDir)
}

func TestFromFileMissingFileFails(t *testing.T) {
	_, err := config.FromFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
