package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaultsForMissingLeaves(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9100
auth:
  algorithm: hs256
  secret: test-secret
mediamtx:
  base_url: http://127.0.0.1:9997
`)

	m := NewManager()
	require.NoError(t, m.Load(path))

	cfg := m.Config()
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, 256, cfg.Events.QueueSize)
	assert.Equal(t, 80, cfg.Storage.WarnPercent)
}

func TestLoadRejectsInvalidAlgorithm(t *testing.T) {
	path := writeConfigFile(t, `
auth:
  algorithm: md5
mediamtx:
  base_url: http://127.0.0.1:9997
`)

	m := NewManager()
	err := m.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingSecretForHS256(t *testing.T) {
	path := writeConfigFile(t, `
auth:
  algorithm: hs256
mediamtx:
  base_url: http://127.0.0.1:9997
`)

	m := NewManager()
	err := m.Load(path)
	assert.Error(t, err)
}

func TestOnUpdateNotifiedAfterSecondLoad(t *testing.T) {
	path := writeConfigFile(t, `
auth:
  algorithm: hs256
  secret: s1
mediamtx:
  base_url: http://127.0.0.1:9997
storage:
  warn_percent: 70
  block_percent: 85
`)

	m := NewManager()
	require.NoError(t, m.Load(path))

	called := false
	m.OnUpdate(func(c *Config) { called = true })

	require.NoError(t, m.Load(path))
	assert.True(t, called)
}
