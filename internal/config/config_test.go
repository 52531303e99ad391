package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ataraid-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint64(1024), cfg.RAID.Proximity)
	assert.Equal(t, uint64(256), cfg.RAID.RebuildWindow)
	assert.Equal(t, "promise", cfg.RAID.DefaultFormat)
	assert.True(t, cfg.Device.SyncWrites)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
raid:
  rebuild_window: 1024
  default_format: highpoint
registry:
  salt: lab
device:
  sync_writes: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), cfg.RAID.RebuildWindow)
	assert.Equal(t, "highpoint", cfg.RAID.DefaultFormat)
	assert.Equal(t, "lab", cfg.Registry.Salt)
	assert.False(t, cfg.Device.SyncWrites)
	// untouched keys keep their defaults
	assert.Equal(t, 16, cfg.RAID.CheckpointWindows)
	assert.Equal(t, uint32(128), cfg.RAID.DefaultInterleave)
	assert.Equal(t, "prod", cfg.Log.Mode)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("ATARAID_RAID_PROXIMITY", "64")
	t.Setenv("ATARAID_LOG_MODE", "dev")
	path := writeConfig(t, "raid:\n  proximity: 2048\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), cfg.RAID.Proximity)
	assert.Equal(t, "dev", cfg.Log.Mode)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "zero rebuild window", body: "raid:\n  rebuild_window: 0\n"},
		{name: "zero checkpoint", body: "raid:\n  checkpoint_windows: 0\n"},
		{name: "interleave not a power of two", body: "raid:\n  default_interleave: 100\n"},
		{name: "malformed yaml", body: "raid: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
