package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8081, cfg.Server.HealthPort)
	assert.Equal(t, 5, cfg.Limits.RequestLimit)
	assert.Equal(t, "minute", cfg.Limits.Window)
	assert.Equal(t, 4000, cfg.Limits.MaxTextLength)
	assert.True(t, cfg.Limits.RequireEmailVerification)
	assert.Equal(t, "reject", cfg.Queue.Policy)
	assert.Equal(t, 30*time.Second, cfg.Queue.HoldTimeout)
	assert.Equal(t, 2*time.Second, cfg.Queue.DrainInterval)
	assert.Equal(t, "openai", cfg.Synth.Backend)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Synth.OpenAI.BaseURL)
	assert.Equal(t, "tts-1", cfg.Synth.OpenAI.Model)
	assert.Equal(t, 5*time.Second, cfg.Usage.DedupWindow)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
limits:
  request_limit: 20
  window: day
queue:
  policy: hold
  hold_timeout: 10s
synth:
  backend: mock
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Limits.RequestLimit)
	assert.Equal(t, "day", cfg.Limits.Window)
	assert.Equal(t, "hold", cfg.Queue.Policy)
	assert.Equal(t, 10*time.Second, cfg.Queue.HoldTimeout)
	assert.Equal(t, "mock", cfg.Synth.Backend)

	// Unset keys keep their defaults.
	assert.Equal(t, 8081, cfg.Server.HealthPort)
	assert.Equal(t, 4000, cfg.Limits.MaxTextLength)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VOXGATE_SERVER_PORT", "7070")
	t.Setenv("VOXGATE_LIMITS_REQUEST_LIMIT", "42")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 42, cfg.Limits.RequestLimit)
}

func TestLoadResolvesEnvRefs(t *testing.T) {
	t.Setenv("TEST_SPEECH_KEY", "sk-secret")

	path := writeConfig(t, `
synth:
  backend: openai
  openai:
    api_key: ${TEST_SPEECH_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.Synth.OpenAI.APIKey)
}

func TestLoadUnresolvedEnvRefKept(t *testing.T) {
	path := writeConfig(t, `
synth:
  openai:
    api_key: ${DOES_NOT_EXIST_XYZ}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${DOES_NOT_EXIST_XYZ}", cfg.Synth.OpenAI.APIKey)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad window", "limits:\n  window: hourly\n", "limits.window"},
		{"bad policy", "queue:\n  policy: drop\n", "queue.policy"},
		{"bad backend", "synth:\n  backend: espeak\n", "synth.backend"},
		{"negative limit", "limits:\n  request_limit: -1\n", "limits.request_limit"},
		{"zero text length", "limits:\n  max_text_length: 0\n", "limits.max_text_length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
