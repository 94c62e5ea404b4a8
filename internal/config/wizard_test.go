package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizardRun(t *testing.T) {
	t.Run("polling with retries", func(t *testing.T) {
		in := strings.NewReader(strings.Join([]string{
			"",          // token required
			"bad-token", // invalid format
			"123:abc",   // accepted
			"",          // keep polling
			"debug",     // log level
		}, "\n") + "\n")
		var out bytes.Buffer

		cfg, err := NewWizardWithIO(in, &out).Run(nil)
		require.NoError(t, err)
		assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
		assert.Equal(t, ModePolling, cfg.Telegram.Mode)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Contains(t, out.String(), "Bot token is required")
		assert.Contains(t, out.String(), "invalid Telegram bot token format")
	})

	t.Run("webhook asks for public url", func(t *testing.T) {
		in := strings.NewReader(strings.Join([]string{
			"123:abc",
			"webhook",
			"http://insecure.example.com",
			"https://bot.example.com",
			"",
		}, "\n") + "\n")
		var out bytes.Buffer

		cfg, err := NewWizardWithIO(in, &out).Run(nil)
		require.NoError(t, err)
		assert.Equal(t, ModeWebhook, cfg.Telegram.Mode)
		assert.Equal(t, "https://bot.example.com", cfg.Webhook.PublicURL)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("keeps existing values", func(t *testing.T) {
		base := DefaultConfig()
		base.Telegram.BotToken = "9:existing"

		in := strings.NewReader("\n\nloud\n")
		var out bytes.Buffer

		cfg, err := NewWizardWithIO(in, &out).Run(base)
		require.NoError(t, err)
		assert.Equal(t, "9:existing", cfg.Telegram.BotToken)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Contains(t, out.String(), "keeping info")
	})

	t.Run("input ends early", func(t *testing.T) {
		_, err := NewWizardWithIO(strings.NewReader(""), &bytes.Buffer{}).Run(nil)
		assert.Error(t, err)
	})
}
