package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/harun/tagrelay/pkg/registry"
)

var (
	// Telegram bot tokens have format: <bot_id>:<token>
	telegramTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

	// Telegram accepts 1-256 characters for X-Telegram-Bot-Api-Secret-Token
	secretTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

	scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTelegramToken validates a Telegram bot token
func (v *Validator) ValidateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram bot token cannot be empty")
	}

	// Example: 123456789:ABCdefGHIjklMNOpqrsTUVwxyz
	if !telegramTokenPattern.MatchString(token) {
		return fmt.Errorf("invalid Telegram bot token format")
	}

	return nil
}

// ValidateMode validates the update receive mode
func (v *Validator) ValidateMode(mode string) error {
	switch mode {
	case ModePolling, ModeWebhook:
		return nil
	}
	return fmt.Errorf("invalid telegram mode: %s (must be one of: %s, %s)", mode, ModePolling, ModeWebhook)
}

// ValidatePublicURL validates the externally reachable base URL
func (v *Validator) ValidatePublicURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("webhook public_url cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook public_url: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("webhook public_url must use https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook public_url has no host")
	}

	return nil
}

// ValidateWebhookPath validates the local path updates are posted to
func (v *Validator) ValidateWebhookPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("webhook path must start with /, got %q", path)
	}
	if path == "/health" || path == "/metrics" {
		return fmt.Errorf("webhook path %s is reserved", path)
	}
	return nil
}

// ValidateSecretToken validates the webhook secret token
func (v *Validator) ValidateSecretToken(token string) error {
	if token == "" {
		return nil // Optional
	}
	if !secretTokenPattern.MatchString(token) {
		return fmt.Errorf("webhook secret_token may only contain A-Z, a-z, 0-9, _ and - (max 256)")
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSchedule validates a maintenance cron spec
func (v *Validator) ValidateSchedule(spec string) error {
	if _, err := scheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateTopics validates the topic list together with the default topic
func (v *Validator) ValidateTopics(topics []registry.Topic, def registry.Topic) error {
	if _, err := registry.New(topics, def); err != nil {
		return fmt.Errorf("invalid topics: %w", err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate Telegram
	if err := v.ValidateTelegramToken(cfg.Telegram.BotToken); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateMode(cfg.Telegram.Mode); err != nil {
		errors = append(errors, err)
	}
	if cfg.Telegram.DedupeTTLSeconds < 0 {
		errors = append(errors, fmt.Errorf("telegram dedupe_ttl_seconds must be >= 0"))
	}
	if cfg.Telegram.MaxRequestsPerSecond < 0 {
		errors = append(errors, fmt.Errorf("telegram max_requests_per_second must be >= 0"))
	}

	// Validate webhook
	if cfg.Telegram.Mode == ModeWebhook {
		if err := v.ValidatePublicURL(cfg.Webhook.PublicURL); err != nil {
			errors = append(errors, err)
		}
		if err := v.ValidateWebhookPath(cfg.Webhook.Path); err != nil {
			errors = append(errors, err)
		}
		if cfg.Webhook.Port <= 0 || cfg.Webhook.Port > 65535 {
			errors = append(errors, fmt.Errorf("webhook port must be between 1 and 65535, got %d", cfg.Webhook.Port))
		}
	}
	if err := v.ValidateSecretToken(cfg.Webhook.SecretToken); err != nil {
		errors = append(errors, err)
	}

	// Validate routing
	if err := v.ValidateTopics(cfg.Topics, cfg.DefaultTopic); err != nil {
		errors = append(errors, err)
	}
	if cfg.Dispatch.TaskTimeoutSeconds <= 0 {
		errors = append(errors, fmt.Errorf("dispatch task_timeout_seconds must be positive"))
	}
	if cfg.Dispatch.MaxConcurrency < 0 {
		errors = append(errors, fmt.Errorf("dispatch max_concurrency must be >= 0"))
	}

	// Validate maintenance
	if err := v.ValidateSchedule(cfg.Maintenance.Schedule); err != nil {
		errors = append(errors, err)
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
