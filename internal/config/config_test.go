package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:8081/chat", cfg.GatewayURL)
	assert.Equal(t, time.Duration(0), cfg.GatewayTimeout)
	assert.Equal(t, "concurrent", cfg.SubmitMode)
	assert.Equal(t, "chatgpt", cfg.DefaultModel)
	assert.Equal(t, 1.0, cfg.DefaultTemperature)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, 24*time.Hour, cfg.SessionMaxIdle)
	assert.Equal(t, "@every 10m", cfg.SessionPruneSchedule)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GATEWAY_URL", "http://backend/chat")
	t.Setenv("GATEWAY_TIMEOUT", "30s")
	t.Setenv("SUBMIT_MODE", "serial")
	t.Setenv("DEFAULT_TEMPERATURE", "0.3")
	t.Setenv("LLM_PROVIDER", "yandex")
	t.Setenv("ALLOWED_USERS", "10:20")
	t.Setenv("ADMIN_USER", "1")
	t.Setenv("SESSION_MAX_IDLE", "90m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://backend/chat", cfg.GatewayURL)
	assert.Equal(t, 30*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, "serial", cfg.SubmitMode)
	assert.Equal(t, 0.3, cfg.DefaultTemperature)
	assert.Equal(t, ProviderYandex, cfg.LLMProvider)
	assert.Equal(t, []int64{10, 20}, cfg.AllowedUsers)
	assert.Equal(t, int64(1), cfg.AdminUserID)
	assert.Equal(t, 90*time.Minute, cfg.SessionMaxIdle)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("provider", func(t *testing.T) {
		t.Setenv("LLM_PROVIDER", "anthropic")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("timeout", func(t *testing.T) {
		t.Setenv("GATEWAY_TIMEOUT", "soon")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("negative idle", func(t *testing.T) {
		t.Setenv("SESSION_MAX_IDLE", "-1h")
		_, err := Load()
		assert.Error(t, err)
	})
}
