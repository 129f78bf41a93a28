package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Provider.Backend)
	assert.Equal(t, "gpt-oss:20b", cfg.Provider.Model)
	assert.Equal(t, 24, cfg.Agent.MaxSteps)
	assert.Equal(t, 8, cfg.Agent.MaxStepsPerTask)
	assert.Equal(t, 3, cfg.Agent.MaxConsecutiveErrors)
	assert.Equal(t, 1, cfg.Agent.DiscoveryLimit)
	assert.Equal(t, 5*time.Minute, cfg.Agent.TaskTimeout)
	assert.Equal(t, 24000, cfg.Context.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, "", cfg.Storage.Path)
}

func TestLoadFromFile(t *testing.T) {
	Reset()
	defer Reset()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
provider:
  backend: openai
  model: gpt-4o
agent:
  max_steps: 10
records:
  dir: /data/records
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Backend)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Equal(t, "/data/records", cfg.Records.Dir)
	// Unset keys keep their defaults.
	assert.Equal(t, 8, cfg.Agent.MaxStepsPerTask)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider.Backend)
}

func TestLoadMalformedFileFails(t *testing.T) {
	Reset()
	defer Reset()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unclosed"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("MEDRUN_PROVIDER_MODEL", "qwen3-vl:8b")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "qwen3-vl:8b", cfg.Provider.Model)
}

func TestSaveTo(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	require.NoError(t, SaveTo(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/.medrun/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".medrun", "config.yaml"), got)

	got, err = ExpandPath("/absolute/path")
	require.NoError(t, err)
	assert.Equal(t, "/absolute/path", got)
}
