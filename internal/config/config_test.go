package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "CORS_ALLOWED_ORIGINS", "LOG_LEVEL", "LOG_FORMAT",
		"NILM_API_BASE_URL", "NILM_MOCK_MODE", "NILM_CHAT_TIMEOUT", "NILM_MOCK_LATENCY",
		"NILM_POLL_INTERVAL", "NILM_REFRESH_INTERVAL", "NILM_DASHBOARD_FALLBACK", "NILM_HISTORY_LIMIT",
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model", "ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "http://localhost:8000", cfg.Client.BaseURL)
	assert.True(t, cfg.Client.MockMode)
	assert.Equal(t, 10*time.Second, cfg.Client.Timeout)
	assert.Equal(t, 800*time.Millisecond, cfg.Client.MockLatency)
	assert.Equal(t, 30*time.Second, cfg.Dashboard.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Dashboard.RefreshInterval)
	assert.True(t, cfg.Dashboard.Fallback)
	assert.Equal(t, 5, cfg.AI.HistoryLimit)
	assert.False(t, cfg.AI.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("NILM_API_BASE_URL", "http://nilm.internal:8000/")
	t.Setenv("NILM_MOCK_MODE", "false")
	t.Setenv("NILM_CHAT_TIMEOUT", "2500")
	t.Setenv("NILM_POLL_INTERVAL", "1m")
	t.Setenv("NILM_HISTORY_LIMIT", "-3")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "ep-123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "http://nilm.internal:8000", cfg.Client.BaseURL)
	assert.False(t, cfg.Client.MockMode)
	assert.Equal(t, 2500*time.Millisecond, cfg.Client.Timeout)
	assert.Equal(t, time.Minute, cfg.Dashboard.PollInterval)
	assert.Equal(t, 0, cfg.AI.HistoryLimit)
	assert.True(t, cfg.AI.Enabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad bool":      {"NILM_MOCK_MODE", "maybe"},
		"bad duration":  {"NILM_POLL_INTERVAL", "soon"},
		"zero timeout":  {"NILM_CHAT_TIMEOUT", "0"},
		"bad base url":  {"NILM_API_BASE_URL", "not a url"},
		"bad log level": {"LOG_LEVEL", "verbose"},
		"bad port":      {"PORT", "80 80"},
		"bad top p":     {"ARK_TOP_P", "1.5"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
