package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/tagrelay/internal/config"
	"github.com/harun/tagrelay/internal/logger"
)

type collectingSink struct {
	mu      sync.Mutex
	updates []string
}

func (s *collectingSink) HandleUpdate(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, string(data))
	return nil
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func TestNew(t *testing.T) {
	log, err := logger.New(logger.Config{
		Level:   "info",
		Console: true,
	})
	require.NoError(t, err)

	t.Run("nil config", func(t *testing.T) {
		bot, err := New(nil, log)
		assert.Error(t, err)
		assert.Nil(t, bot)
		assert.Contains(t, err.Error(), "config is required")
	})

	t.Run("empty bot token", func(t *testing.T) {
		bot, err := New(&config.TelegramConfig{}, log)
		assert.Error(t, err)
		assert.Nil(t, bot)
		assert.Contains(t, err.Error(), "bot token is required")
	})
}

func TestNewWithAPI(t *testing.T) {
	bot, _ := newTestBot(t, &config.TelegramConfig{MaxRequestsPerSecond: 0.5})

	assert.NotNil(t, bot.limiter)
	assert.Equal(t, 1, bot.limiter.Burst())

	info := bot.GetBotInfo()
	assert.Equal(t, "tagrelay_bot", info["username"])
	assert.Equal(t, int64(42), info["id"])
	assert.Equal(t, false, info["running"])

	unlimited, _ := newTestBot(t, nil)
	assert.Nil(t, unlimited.limiter)
}

func TestBotStartStop(t *testing.T) {
	bot, fake := newTestBot(t, nil)
	fake.queueUpdates(audioUpdate, threadedAudioUpdate)
	sink := &collectingSink{}

	require.NoError(t, bot.Start(context.Background(), sink))
	assert.True(t, bot.IsRunning())

	err := bot.Start(context.Background(), sink)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	assert.Eventually(t, func() bool { return sink.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	// The next poll acknowledges both updates
	assert.Eventually(t, func() bool {
		calls := fake.callsTo("getUpdates")
		return len(calls) >= 2 && calls[len(calls)-1].Form.Get("offset") == "1003"
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bot.Stop(ctx))
	assert.False(t, bot.IsRunning())

	err = bot.Stop(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not running")

	methods := fake.methods()
	require.GreaterOrEqual(t, len(methods), 3)
	assert.Equal(t, []string{"getMe", "deleteWebhook", "getUpdates"}, methods[:3])

	first := fake.callsTo("getUpdates")[0].Form
	assert.Equal(t, `["message","callback_query"]`, first.Get("allowed_updates"))
	assert.Empty(t, first.Get("offset"))
}

func TestSetWebhook(t *testing.T) {
	bot, fake := newTestBot(t, nil)

	require.NoError(t, bot.SetWebhook(context.Background(), "https://bot.example.com/webhook", "s3cret"))
	require.NoError(t, bot.DeleteWebhook(context.Background()))

	calls := fake.callsTo("setWebhook")
	require.Len(t, calls, 1)
	assert.Equal(t, "https://bot.example.com/webhook", calls[0].Form.Get("url"))
	assert.Equal(t, "s3cret", calls[0].Form.Get("secret_token"))
	assert.Equal(t, `["message","callback_query"]`, calls[0].Form.Get("allowed_updates"))
	assert.Len(t, fake.callsTo("deleteWebhook"), 1)
}
