package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, body string) *Manager {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	if body != "" {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	m, err := Load(path)
	require.NoError(t, err)
	return m
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	m := load(t, "")

	info, err := os.Stat(m.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := m.Config()
	require.NoError(t, err)
	assert.Equal(t, "waterworks", cfg.Defaults.FolderName)
	assert.Equal(t, "full", cfg.Defaults.JobBoard)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Generation.RetryDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Generation.CallSpacing)
	assert.Equal(t, 60*time.Second, cfg.Session.ApprovalTimeout)
	assert.Equal(t, 50, cfg.Discovery.MaxPages)
	assert.False(t, cfg.Browser.Headless)
	assert.True(t, filepath.IsAbs(cfg.Paths.DataDir), "~ is expanded")
}

func TestValidationListsEveryProblem(t *testing.T) {
	m := load(t, `
defaults:
  job_board: sideways
llm:
  provider: bard
generation:
  max_attempts: 0
`)

	_, err := m.Config()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "JobBoard")
	assert.Contains(t, err.Error(), "Provider")
	assert.Contains(t, err.Error(), "MaxAttempts")
}

func TestEnvironmentOverrides(t *testing.T) {
	m := load(t, "")
	t.Setenv("WATERWORKS_DEFAULTS_FOLDER_NAME", "from-env")

	cfg, err := m.Config()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Defaults.FolderName)
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	c := LLMConfig{Provider: "anthropic"}
	assert.Equal(t, "env-key", c.ResolveAPIKey())

	c.APIKeys = map[string]string{"anthropic": "map-key"}
	assert.Equal(t, "map-key", c.ResolveAPIKey())

	c.APIKey = "direct"
	assert.Equal(t, "direct", c.ResolveAPIKey())

	assert.Empty(t, LLMConfig{Provider: "ollama"}.ResolveAPIKey())
}

func TestRequireLLM(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := &Config{LLM: LLMConfig{Provider: "openai"}}
	assert.ErrorIs(t, cfg.RequireLLM(), ErrInvalid)

	cfg.LLM.Provider = "ollama"
	assert.NoError(t, cfg.RequireLLM())
}

func TestEffectiveLoginAttemptsIsCapped(t *testing.T) {
	assert.Equal(t, MaxLoginAttempts, SessionConfig{LoginAttempts: 10}.EffectiveLoginAttempts())
	assert.Equal(t, 2, SessionConfig{LoginAttempts: 2}.EffectiveLoginAttempts())
	assert.Equal(t, 1, SessionConfig{}.EffectiveLoginAttempts())
}

func TestSetPersistsAndValidates(t *testing.T) {
	m := load(t, "")

	require.NoError(t, m.Set("defaults.job_board", "direct"))
	reloaded, err := Load(m.Path())
	require.NoError(t, err)
	assert.Equal(t, "direct", reloaded.Get("defaults.job_board"))

	err = m.Set("defaults.job_board", "nowhere")
	require.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, "direct", m.Get("defaults.job_board"))

	assert.Error(t, m.Set("session.login_attempts", "9"), "not settable")
}

func TestSetNeverWritesEnvironmentSecrets(t *testing.T) {
	t.Setenv("WATERWORKS_PORTAL_PASSWORD", "hunter2-env-only")
	t.Setenv("WATERWORKS_LLM_API_KEY", "sk-env-only")
	m := load(t, "")
	assert.Equal(t, "hunter2-env-only", m.Get("portal.password"))

	require.NoError(t, m.Set("log_level", "debug"))

	raw, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2-env-only")
	assert.NotContains(t, string(raw), "sk-env-only")
	assert.Contains(t, string(raw), "debug")

	info, err := os.Stat(m.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestIsSecret(t *testing.T) {
	assert.True(t, IsSecret("portal.password"))
	assert.True(t, IsSecret("llm.api_key"))
	assert.False(t, IsSecret("portal.username"))
}
