package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2, cfg.RedTeam.Workers)
	assert.NotEmpty(t, cfg.AuditPath)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
database_url: "postgres://localhost/aegis"
judge:
  base_url: "https://api.example.com/v1"
  model: "gpt-4o-mini"
  timeout_seconds: 3
redteam:
  workers: 4
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "postgres://localhost/aegis", cfg.DatabaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.Judge.Model)
	assert.Equal(t, 3, cfg.Judge.TimeoutSeconds)
	assert.Equal(t, 4, cfg.RedTeam.Workers)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9090\"\n"), 0600))

	t.Setenv("AEGIS_LISTEN", ":7070")
	t.Setenv("AEGIS_JUDGE_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "sk-test", cfg.Judge.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
