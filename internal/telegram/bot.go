package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/harun/tagrelay/internal/config"
	"github.com/harun/tagrelay/internal/logger"
)

const (
	// requestTimeout bounds every Bot API call on top of the long-poll timeout
	requestTimeout = 15 * time.Second

	// pollRetryDelay is the pause after a failed getUpdates
	pollRetryDelay = 3 * time.Second
)

// UpdateSink receives raw updates
type UpdateSink interface {
	HandleUpdate(ctx context.Context, data []byte) error
}

// Recorder receives Telegram metrics
type Recorder interface {
	UpdateReceived(kind string)
	RequestSent(method string, err error)
}

type nopRecorder struct{}

func (nopRecorder) UpdateReceived(string) {}
func (nopRecorder) RequestSent(string, error) {}

// Bot represents a Telegram bot instance
type Bot struct {
	api     *tgbotapi.BotAPI
	config  *config.TelegramConfig
	logger  zerolog.Logger
	limiter *rate.Limiter
	metrics Recorder

	// State
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a new Telegram bot instance and authenticates it with getMe
func New(cfg *config.TelegramConfig, log *logger.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram config is required")
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	client := &http.Client{
		Timeout: time.Duration(cfg.PollTimeout)*time.Second + requestTimeout,
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	api.Debug = cfg.Debug

	bot := NewWithAPI(api, cfg, log.Component("telegram"))

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

// NewWithAPI wraps an authenticated API client
func NewWithAPI(api *tgbotapi.BotAPI, cfg *config.TelegramConfig, log zerolog.Logger) *Bot {
	b := &Bot{
		api:     api,
		config:  cfg,
		logger:  log,
		metrics: nopRecorder{},
	}

	if cfg.MaxRequestsPerSecond > 0 {
		burst := int(cfg.MaxRequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), burst)
	}

	return b
}

// SetRecorder sets the metrics recorder
func (b *Bot) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	b.metrics = r
}

// Start begins long polling and feeds every update to sink
func (b *Bot) Start(ctx context.Context, sink UpdateSink) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	// getUpdates is refused while a webhook is registered
	if err := b.DeleteWebhook(ctx); err != nil {
		return fmt.Errorf("failed to clear webhook before polling: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true

	go func() {
		defer close(b.done)
		b.poll(pollCtx, sink)
	}()

	b.logger.Info().Int("timeout", b.config.PollTimeout).Msg("Telegram bot polling")

	return nil
}

// Stop stops polling and waits for the current long poll to return or ctx
// to end
func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot is not running")
	}
	b.running = false
	b.cancel()
	done := b.done
	b.mu.Unlock()

	b.logger.Info().Msg("Stopping Telegram bot")

	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn().Msg("Gave up waiting for long poll to return")
		return ctx.Err()
	}

	b.logger.Info().Msg("Telegram bot stopped")

	return nil
}

// poll runs getUpdates until ctx is cancelled. The raw result is used so
// fields unknown to the library survive decoding.
func (b *Bot) poll(ctx context.Context, sink UpdateSink) {
	offset := 0
	for ctx.Err() == nil {
		params := tgbotapi.Params{}
		params.AddNonZero("offset", offset)
		params.AddNonZero("timeout", b.config.PollTimeout)
		if err := params.AddInterface("allowed_updates", AllowedUpdates); err != nil {
			b.logger.Error().Err(err).Msg("Failed to encode allowed updates")
			return
		}

		resp, err := b.api.MakeRequest("getUpdates", params)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.metrics.RequestSent("getUpdates", err)
			b.logger.Error().Err(err).Msg("Failed to get updates, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		var raws []json.RawMessage
		if err := json.Unmarshal(resp.Result, &raws); err != nil {
			b.logger.Error().Err(err).Msg("Failed to decode updates")
			continue
		}

		for _, raw := range raws {
			var head struct {
				UpdateID int `json:"update_id"`
			}
			if err := json.Unmarshal(raw, &head); err != nil {
				b.logger.Error().Err(err).Msg("Failed to decode update id")
				continue
			}
			if head.UpdateID >= offset {
				offset = head.UpdateID + 1
			}

			if err := sink.HandleUpdate(ctx, raw); err != nil {
				b.logger.Error().
					Err(err).
					Int("update_id", head.UpdateID).
					Msg("Failed to handle update")
			}
		}
	}
}

// SetWebhook registers url with Telegram. Telegram echoes secret in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (b *Bot) SetWebhook(ctx context.Context, url, secret string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", url)
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", AllowedUpdates); err != nil {
		return fmt.Errorf("failed to encode allowed updates: %w", err)
	}

	if _, err := b.call(ctx, "setWebhook", params); err != nil {
		return err
	}

	b.logger.Info().Str("url", url).Msg("Webhook registered")
	return nil
}

// DeleteWebhook removes any registered webhook
func (b *Bot) DeleteWebhook(ctx context.Context) error {
	_, err := b.call(ctx, "deleteWebhook", tgbotapi.Params{})
	return err
}

// request sends a library config through the limiter
func (b *Bot) request(ctx context.Context, method string, c tgbotapi.Chattable) error {
	if err := b.wait(ctx); err != nil {
		return err
	}

	_, err := b.api.Request(c)
	b.metrics.RequestSent(method, err)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return nil
}

// call sends a raw method through the limiter
func (b *Bot) call(ctx context.Context, method string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := b.api.MakeRequest(method, params)
	b.metrics.RequestSent(method, err)
	if err != nil {
		return resp, fmt.Errorf("%s failed: %w", method, err)
	}
	return resp, nil
}

func (b *Bot) wait(ctx context.Context) error {
	if b.limiter == nil {
		return ctx.Err()
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// GetBotInfo returns bot information
func (b *Bot) GetBotInfo() map[string]interface{} {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()

	return map[string]interface{}{
		"username":  b.api.Self.UserName,
		"id":        b.api.Self.ID,
		"firstName": b.api.Self.FirstName,
		"running":   running,
	}
}

// GetAPI returns the underlying bot API
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}

// IsRunning returns whether the bot is polling
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// ValidateToken validates a bot token by attempting to authenticate
func ValidateToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("bot token is empty")
	}

	client := &http.Client{Timeout: requestTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return "", fmt.Errorf("invalid bot token: %w", err)
	}

	if api.Self.UserName == "" {
		return "", fmt.Errorf("failed to get bot info")
	}

	return api.Self.UserName, nil
}
