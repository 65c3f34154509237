package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values_test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sentinel", cfg.BotName)
	assert.Equal(t, 5*time.Minute, cfg.Economic.Interval)
	assert.Equal(t, 5*time.Second, cfg.Economic.Backoff)
	assert.Equal(t, 24*time.Hour, cfg.Economic.Retention)
	assert.Equal(t, "EURUSD", cfg.Economic.ReferenceSymbol)
	assert.Equal(t, SourceFile, cfg.Economic.Source.Kind)
	assert.Equal(t, "2006.01.02 15:04", cfg.Economic.Source.TimeLayout)
	assert.Equal(t, 3, cfg.Sentinel.Importance)
	assert.Equal(t, ":8080", cfg.AdminAddr())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
bot_name: adrastea
telegram:
  token: from-file
  chat_ids: [100, 200]
economic:
  interval: 1m
  source:
    kind: http
    url: http://calendar.local/events
sentinel:
  symbols: [EURUSD, USDJPY]
  importance: 2
  close_positions_on_event: true
`)
	t.Setenv("TELEGRAM_TOKEN", "from-env")
	t.Setenv("BOT_ECONOMIC_MAX_CONCURRENCY", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "adrastea", cfg.BotName)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, []int64{100, 200}, cfg.Telegram.ChatIDs)
	assert.Equal(t, time.Minute, cfg.Economic.Interval)
	assert.Equal(t, 4, cfg.Economic.MaxConcurrency)
	assert.Equal(t, SourceHTTP, cfg.Economic.Source.Kind)
	assert.Equal(t, []string{"EURUSD", "USDJPY"}, cfg.Sentinel.Symbols)
	assert.Equal(t, 2, cfg.Sentinel.Importance)
	assert.True(t, cfg.Sentinel.ClosePositionsOnEvent)
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "zero interval", body: "economic:\n  interval: 0s\n"},
		{name: "http without url", body: "economic:\n  source:\n    kind: http\n"},
		{name: "unknown source", body: "economic:\n  source:\n    kind: kafka\n"},
		{name: "importance out of range", body: "sentinel:\n  importance: 4\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}
