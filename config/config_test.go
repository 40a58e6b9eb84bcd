package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesOverFileDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netio.yaml")
	body := `
listen:
  - network: tcp
    address: "127.0.0.1:9000"
  - network: unix
    address: /tmp/netio.sock
idle-timeout: 30s
no-delay: true
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, cfg.Listen, 2)
	assert.Equal(t, "tcp", cfg.Listen[0].Network)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen[0].Address)
	assert.Equal(t, "unix", cfg.Listen[1].Network)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout)
	assert.True(t, cfg.NoDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, DefaultBacklog, cfg.Backlog) // untouched by the file, keeps the default
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
