package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "")

	_, err := Load()
	require.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Contains(t, err.Error(), ".env")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", " sk-test ")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.DashScopeAPIKey)
	assert.Equal(t, "wanx2.1-t2i-turbo", cfg.Model)
	assert.Equal(t, "1440*960", cfg.ImageSize)
	assert.Equal(t, ":8080", cfg.WebAddr)
	assert.Equal(t, 180*time.Second, cfg.GenerateTimeout)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 6, cfg.HistoryDisplay)
	assert.True(t, cfg.PreferIPv4)
	assert.Equal(t, 1500*time.Millisecond, cfg.StanzaDebounce)
	assert.ErrorIs(t, cfg.RequireTelegram(), ErrMissingTelegramToken)
}

func TestLoadOverridesAndClamps(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("GENERATE_TIMEOUT_SECONDS", "30")
	t.Setenv("FETCH_TIMEOUT_SECONDS", "-1")
	t.Setenv("REQUESTS_PER_MINUTE", "not-a-number")
	t.Setenv("MAX_CONCURRENT", "0")
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("STANZA_DEBOUNCE_MS", "-5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.GenerateTimeout)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, float64(20), cfg.RequestsPerMinute)
	assert.Equal(t, 1, cfg.MaxConcurrent)
	assert.Zero(t, cfg.StanzaDebounce)
	assert.True(t, cfg.IsProduction())
	assert.NoError(t, cfg.RequireTelegram())
}
