package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harun/tagrelay/internal/logger"
	"github.com/harun/tagrelay/pkg/fanout"
	"github.com/harun/tagrelay/pkg/registry"
	"github.com/harun/tagrelay/pkg/tagging"
)

// Receive modes
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Config represents the main tagrelay configuration
type Config struct {
	// Telegram
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// Webhook server, used when Telegram.Mode is webhook
	Webhook WebhookConfig `json:"webhook" mapstructure:"webhook"`

	// Topics offered in the selection prompt, in display order
	Topics []registry.Topic `json:"topics" mapstructure:"topics"`

	// DefaultTopic receives every dispatched file
	DefaultTopic registry.Topic `json:"default_topic" mapstructure:"default_topic"`

	// Dispatch tuning
	Dispatch DispatchConfig `json:"dispatch" mapstructure:"dispatch"`

	// User-facing texts
	Messages tagging.Messages `json:"messages" mapstructure:"messages"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Maintenance schedule
	Maintenance MaintenanceConfig `json:"maintenance" mapstructure:"maintenance"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken             string  `json:"bot_token" mapstructure:"bot_token"`
	Mode                 string  `json:"mode" mapstructure:"mode"`                 // polling, webhook
	PollTimeout          int     `json:"poll_timeout" mapstructure:"poll_timeout"` // seconds
	MaxRequestsPerSecond float64 `json:"max_requests_per_second" mapstructure:"max_requests_per_second"`
	DedupeTTLSeconds     int     `json:"dedupe_ttl_seconds" mapstructure:"dedupe_ttl_seconds"`
	Debug                bool    `json:"debug" mapstructure:"debug"`
}

// WebhookConfig holds webhook server configuration
type WebhookConfig struct {
	Host            string `json:"host" mapstructure:"host"`
	Port            int    `json:"port" mapstructure:"port"`
	PublicURL       string `json:"public_url" mapstructure:"public_url"`
	Path            string `json:"path" mapstructure:"path"`
	SecretToken     string `json:"secret_token" mapstructure:"secret_token"`
	MaxBodyBytes    int64  `json:"max_body_bytes" mapstructure:"max_body_bytes"`
	ShutdownTimeout int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
}

// DispatchConfig tunes the fan-out
type DispatchConfig struct {
	TaskTimeoutSeconds int `json:"task_timeout_seconds" mapstructure:"task_timeout_seconds"`
	MaxConcurrency     int `json:"max_concurrency" mapstructure:"max_concurrency"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MaintenanceConfig holds the periodic housekeeping settings
type MaintenanceConfig struct {
	Schedule        string `json:"schedule" mapstructure:"schedule"` // cron spec
	LaneIdleMinutes int    `json:"lane_idle_minutes" mapstructure:"lane_idle_minutes"`
}

// DefaultTopics returns the playlist topics of the original deployment
func DefaultTopics() []registry.Topic {
	return []registry.Topic{
		{Name: "Любимое", ThreadID: 23},
		{Name: "Сон", ThreadID: 22},
		{Name: "Погрустить", ThreadID: 21},
		{Name: "В дороге", ThreadID: 20},
		{Name: "Иностранные", ThreadID: 19},
		{Name: "Русские", ThreadID: 18},
		{Name: "Космо музыка", ThreadID: 14},
		{Name: "Поп", ThreadID: 12},
		{Name: "Джаз", ThreadID: 10},
		{Name: "Рок", ThreadID: 8},
	}
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Mode:                 ModePolling,
			PollTimeout:          60,
			MaxRequestsPerSecond: 20,
			DedupeTTLSeconds:     300,
		},
		Webhook: WebhookConfig{
			Host:            "0.0.0.0",
			Port:            10000,
			Path:            "/webhook",
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 30,
		},
		Topics:       DefaultTopics(),
		DefaultTopic: registry.Topic{Name: "Вся музыка", ThreadID: 2},
		Dispatch: DispatchConfig{
			TaskTimeoutSeconds: 30,
		},
		Messages: tagging.DefaultMessages(),
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Maintenance: MaintenanceConfig{
			Schedule:        "@every 1m",
			LaneIdleMinutes: 10,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.Telegram.BotToken = mask(c.Telegram.BotToken)
	masked.Webhook.SecretToken = mask(c.Webhook.SecretToken)
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// Registry builds the destination registry from Topics and DefaultTopic
func (c *Config) Registry() (*registry.Registry, error) {
	return registry.New(c.Topics, c.DefaultTopic)
}

// FanoutOptions converts dispatch settings for the fan-out
func (c *Config) FanoutOptions() fanout.Options {
	return fanout.Options{
		TaskTimeout:    time.Duration(c.Dispatch.TaskTimeoutSeconds) * time.Second,
		MaxConcurrency: c.Dispatch.MaxConcurrency,
	}
}

// LoggerConfig converts logging settings for the logger, registering the
// configured secrets for redaction
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:     c.Logging.Level,
		File:      c.Logging.File,
		Console:   c.Logging.Console,
		Pretty:    c.Logging.Pretty,
		Redaction: c.Logging.Redaction,
		MaxSize:   c.Logging.MaxSize,
		MaxAge:    c.Logging.MaxAge,
		Compress:  c.Logging.Compress,
		Secrets:   []string{c.Telegram.BotToken, c.Webhook.SecretToken},
	}
}

// WebhookURL returns the public URL Telegram posts updates to
func (c *Config) WebhookURL() string {
	return strings.TrimRight(c.Webhook.PublicURL, "/") + c.Webhook.Path
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}

	switch c.Telegram.Mode {
	case ModePolling, ModeWebhook:
	default:
		return fmt.Errorf("invalid telegram mode %q (must be: polling, webhook)", c.Telegram.Mode)
	}

	if c.Telegram.Mode == ModeWebhook {
		if c.Webhook.PublicURL == "" {
			return fmt.Errorf("webhook public_url is required in webhook mode")
		}
		if !strings.HasPrefix(c.Webhook.PublicURL, "https://") {
			return fmt.Errorf("webhook public_url must use https")
		}
		if !strings.HasPrefix(c.Webhook.Path, "/") {
			return fmt.Errorf("webhook path must start with /")
		}
		if c.Webhook.Port <= 0 || c.Webhook.Port > 65535 {
			return fmt.Errorf("webhook port must be between 1 and 65535, got %d", c.Webhook.Port)
		}
	}

	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("invalid topics: %w", err)
	}

	if c.Dispatch.TaskTimeoutSeconds <= 0 {
		return fmt.Errorf("dispatch task_timeout_seconds must be positive")
	}

	return nil
}
