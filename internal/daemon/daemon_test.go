package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/tagrelay/internal/config"
	"github.com/harun/tagrelay/internal/logger"
	"github.com/harun/tagrelay/internal/telegram"
	"github.com/harun/tagrelay/pkg/registry"
	"github.com/harun/tagrelay/pkg/webhook"
)

const testToken = "123456:test-token"

const audioUpdate = `{
	"update_id": 501,
	"message": {
		"message_id": 7,
		"date": 1700000000,
		"from": {"id": 555, "is_bot": false, "first_name": "Ann", "username": "ann"},
		"chat": {"id": -100123, "type": "supergroup", "is_forum": true},
		"audio": {"file_id": "CQAC-file", "file_unique_id": "u1", "duration": 215, "title": "Blue in Green", "performer": "Miles Davis"}
	}
}`

func callbackUpdate(id int, data string) string {
	return `{
		"update_id": ` + strconv.Itoa(id) + `,
		"callback_query": {
			"id": "cb-` + strconv.Itoa(id) + `",
			"from": {"id": 555, "is_bot": false, "first_name": "Ann", "username": "ann"},
			"chat_instance": "ci",
			"data": "` + data + `",
			"message": {
				"message_id": 100,
				"date": 1700000000,
				"chat": {"id": -100123, "type": "supergroup", "is_forum": true}
			}
		}
	}`
}

type apiCall struct {
	Method string
	Form   url.Values
}

// fakeAPI serves the Bot API methods the daemon uses
type fakeAPI struct {
	server *httptest.Server

	mu      sync.Mutex
	calls   []apiCall
	batches [][]string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := path.Base(r.URL.Path)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Form: r.PostForm})
	var batch []string
	if method == "getUpdates" && len(f.batches) > 0 {
		batch = f.batches[0]
		f.batches = f.batches[1:]
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"TagRelay","username":"tagrelay_bot"}}`)
	case "sendMessage", "sendAudio":
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":100,"date":0,"chat":{"id":%s,"type":"supergroup"}}}`, r.PostForm.Get("chat_id"))
	case "getUpdates":
		if batch == nil {
			time.Sleep(10 * time.Millisecond)
			fmt.Fprint(w, `{"ok":true,"result":[]}`)
			return
		}
		raw := make([]json.RawMessage, len(batch))
		for i, item := range batch {
			raw[i] = json.RawMessage(item)
		}
		data, _ := json.Marshal(raw)
		fmt.Fprintf(w, `{"ok":true,"result":%s}`, data)
	default:
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeAPI) queueUpdates(updates ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, updates)
}

func (f *fakeAPI) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Telegram.BotToken = testToken
	cfg.Telegram.PollTimeout = 1
	cfg.Topics = []registry.Topic{
		{Name: "Rock", ThreadID: 8},
		{Name: "Jazz", ThreadID: 10},
	}
	cfg.DefaultTopic = registry.Topic{Name: "All", ThreadID: 2}
	cfg.Maintenance.Schedule = "@every 1h"
	cfg.Logging.Console = false
	cfg.DataDir = t.TempDir()
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config) (*Daemon, *fakeAPI) {
	t.Helper()
	fake := newFakeAPI(t)

	api, err := tgbotapi.NewBotAPIWithClient(testToken, fake.server.URL+"/bot%s/%s", fake.server.Client())
	require.NoError(t, err)

	log, err := logger.New(logger.Config{Level: "error", Console: false})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	bot := telegram.NewWithAPI(api, &cfg.Telegram, zerolog.Nop())
	d, err := NewWithBot(cfg, log, bot)
	require.NoError(t, err)
	return d, fake
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestNewWithBot(t *testing.T) {
	cfg := testConfig(t)
	d, _ := newTestDaemon(t, cfg)

	assert.Equal(t, cfg, d.GetConfig())
	assert.Equal(t, []string{"Rock", "Jazz"}, d.GetRegistry().Tags())
	assert.NotNil(t, d.GetSessionStore())
	assert.NotNil(t, d.GetQueue())
	assert.NotNil(t, d.GetDispatcher())
	assert.NotNil(t, d.GetMetrics())
	assert.Nil(t, d.GetWebhookServer())
	assert.Equal(t, PIDFilePath(cfg.DataDir), d.GetLifecycle().PIDFile())
	assert.False(t, d.Status().Running)
}

func TestNewWithBotValidation(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Console: false})
	require.NoError(t, err)
	defer log.Close()

	_, err = NewWithBot(nil, log, nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	_, err = NewWithBot(cfg, log, nil)
	assert.ErrorContains(t, err, "telegram bot is required")

	fake := newFakeAPI(t)
	api, err := tgbotapi.NewBotAPIWithClient(testToken, fake.server.URL+"/bot%s/%s", fake.server.Client())
	require.NoError(t, err)
	bot := telegram.NewWithAPI(api, &cfg.Telegram, zerolog.Nop())

	bad := testConfig(t)
	bad.Topics = nil
	_, err = NewWithBot(bad, log, bot)
	assert.ErrorContains(t, err, "invalid config")

	badSchedule := testConfig(t)
	badSchedule.Maintenance.Schedule = "sometimes"
	_, err = NewWithBot(badSchedule, log, bot)
	assert.ErrorContains(t, err, "invalid maintenance schedule")
}

func TestDaemonPollingFlow(t *testing.T) {
	cfg := testConfig(t)
	d, fake := newTestDaemon(t, cfg)

	fake.queueUpdates(
		audioUpdate,
		callbackUpdate(502, "toggle:Jazz"),
		callbackUpdate(503, "done"),
	)

	require.NoError(t, d.Start())

	_, err := os.Stat(PIDFilePath(cfg.DataDir))
	assert.NoError(t, err)
	assert.True(t, d.Status().Running)
	assert.Equal(t, config.ModePolling, d.Status().Mode)

	require.Eventually(t, func() bool {
		return len(fake.callsTo("editMessageText")) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, d.Stop())

	prompts := fake.callsTo("sendMessage")
	require.Len(t, prompts, 1)
	assert.Equal(t, "7", prompts[0].Form.Get("reply_to_message_id"))
	assert.Contains(t, prompts[0].Form.Get("reply_markup"), "toggle:Rock")

	redraws := fake.callsTo("editMessageReplyMarkup")
	require.Len(t, redraws, 1)
	assert.Contains(t, redraws[0].Form.Get("reply_markup"), "✅ Jazz")

	var threads []string
	for _, c := range fake.callsTo("sendAudio") {
		assert.Equal(t, "CQAC-file", c.Form.Get("audio"))
		assert.Equal(t, "-100123", c.Form.Get("chat_id"))
		assert.Equal(t, "Forwarded from ann", c.Form.Get("caption"))
		threads = append(threads, c.Form.Get("message_thread_id"))
	}
	assert.ElementsMatch(t, []string{"10", "2"}, threads)

	assert.Equal(t, 0, d.GetSessionStore().Len())
	assert.NotEmpty(t, fake.callsTo("deleteWebhook"))
	assert.Len(t, fake.callsTo("setMyCommands"), 1)

	_, err = os.Stat(PIDFilePath(cfg.DataDir))
	assert.True(t, os.IsNotExist(err))
	assert.False(t, d.Status().Running)
}

func TestDaemonStartStopErrors(t *testing.T) {
	d, _ := newTestDaemon(t, testConfig(t))

	assert.ErrorContains(t, d.Stop(), "not running")

	require.NoError(t, d.Start())
	assert.ErrorContains(t, d.Start(), "already running")
	require.NoError(t, d.Stop())
}

func TestDaemonWebhookMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telegram.Mode = config.ModeWebhook
	cfg.Webhook.Host = "127.0.0.1"
	cfg.Webhook.Port = freePort(t)
	cfg.Webhook.PublicURL = "https://relay.example.com/"
	cfg.Webhook.SecretToken = "s3cret"
	cfg.Webhook.ShutdownTimeout = 2

	d, fake := newTestDaemon(t, cfg)
	require.NotNil(t, d.GetWebhookServer())

	require.NoError(t, d.Start())
	defer func() {
		if d.Status().Running {
			_ = d.Stop()
		}
	}()

	registered := fake.callsTo("setWebhook")
	require.Len(t, registered, 1)
	assert.Equal(t, "https://relay.example.com/webhook", registered[0].Form.Get("url"))
	assert.Equal(t, "s3cret", registered[0].Form.Get("secret_token"))
	assert.Empty(t, fake.callsTo("getUpdates"))

	endpoint := "http://" + d.WebhookAddr() + cfg.Webhook.Path

	post := func(secret string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(audioUpdate))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(webhook.SecretTokenHeader, secret)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, post("wrong").StatusCode)
	assert.Equal(t, http.StatusOK, post("s3cret").StatusCode)

	require.Eventually(t, func() bool {
		return len(fake.callsTo("sendMessage")) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, d.GetSessionStore().Len())

	health, err := http.Get("http://" + d.WebhookAddr() + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	metrics, err := http.Get("http://" + d.WebhookAddr() + "/metrics")
	require.NoError(t, err)
	metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)

	require.NoError(t, d.Stop())
	assert.Len(t, fake.callsTo("deleteWebhook"), 1)

	_, err = http.Get("http://" + d.WebhookAddr() + "/health")
	assert.Error(t, err)
}

func TestDaemonRunStopsOnContext(t *testing.T) {
	d, _ := newTestDaemon(t, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.Status().Running }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, d.Status().Running)
}
