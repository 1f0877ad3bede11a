package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/internal/config"
	"github.com/lxr-go-scm/gitfetch/protocol"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 9418, cfg.Transport.DefaultPort)
	assert.Equal(t, int64(1<<20), cfg.Pack.LazyReadThresholdBytes)
	require.NoError(t, cfg.Validate())
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gitfetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport:
  default_port: 9999
pack:
  lazy_read_threshold_bytes: 2048
  load_workers: 4
fetch:
  capabilities:
    - ofs-delta
    - thin-pack
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Transport.DefaultPort)
	assert.Equal(t, int64(2048), cfg.Pack.LazyReadThresholdBytes)
	assert.Equal(t, 4, cfg.Pack.LoadWorkers)

	caps := cfg.FetchCapabilities()
	assert.True(t, caps["ofs-delta"])
	assert.True(t, caps["thin-pack"])
}

func TestFetchCapabilitiesFallsBackToDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, protocol.DefaultFetchCapabilities, cfg.FetchCapabilities())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := config.Default()
	cfg.Transport.DefaultPort = 0
	assert.Error(t, cfg.Validate())

	cfg.Transport.DefaultPort = 70000
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
