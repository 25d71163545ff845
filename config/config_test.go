package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/callbot/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("CALLBOT_DSN", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := config.Load(writeYAML(t, "bot:\n  token: abc\n"))
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Bot.Token)
	assert.Equal(t, "!", cfg.Bot.CommandPrefix)
	assert.Equal(t, 8, cfg.Bot.Workers)
	assert.Equal(t, "https://api.coinmarketcap.com/v1", cfg.API.TickerBase)
	assert.Equal(t, 10*time.Second, cfg.TickerTTL())
	assert.Equal(t, 5*time.Second, cfg.APITimeout())
	assert.Equal(t, 15*time.Second, cfg.RefreshTimeout())
	assert.Equal(t, "callbot.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.NoError(t, cfg.Validate(true))
}

func TestLoad_FullFile(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("CALLBOT_DSN", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := config.Load(writeYAML(t, `
bot:
  command_prefix: "$"
  allowed_chats: [-100123, 42]
  workers: 2
ticker:
  ttl_seconds: 30
log:
  level: debug
  format: json
  file: /tmp/callbot.log
  compress: true
`))
	require.NoError(t, err)

	assert.Equal(t, "$", cfg.Bot.CommandPrefix)
	assert.Equal(t, []int64{-100123, 42}, cfg.Bot.AllowedChats)
	assert.Equal(t, 2, cfg.Bot.Workers)
	assert.Equal(t, 30*time.Second, cfg.TickerTTL())
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/tmp/callbot.log", cfg.Log.File)
	assert.True(t, cfg.Log.Compress)
	assert.Equal(t, 50, cfg.Log.MaxSizeMB)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("CALLBOT_DSN", ":memory:")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := config.Load(writeYAML(t, "bot:\n  token: from-file\nlog:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Bot.Token)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_LogSettingsNormalised(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("CALLBOT_DSN", "")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", " JSON ")

	cfg, err := config.Load(writeYAML(t, "log:\n  level: info\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate(false))
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeYAML(t, "bot: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := config.Load(writeYAML(t, "ticker:\n  ttl_seconds: -1\nlog:\n  level: loud\n"))
	require.NoError(t, err)

	err = cfg.Validate(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot.token")
	assert.Contains(t, err.Error(), "ttl_seconds")
	assert.Contains(t, err.Error(), "log.level")

	// sin bot (p.ej. -load-coins) el token no hace falta
	cfg.Ticker.TTLSeconds = 10
	cfg.Log.Level = "info"
	assert.NoError(t, cfg.Validate(false))
}
