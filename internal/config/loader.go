package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment variables of the original deployment, honoured as fallbacks
const (
	EnvAPIToken    = "API_TOKEN"
	EnvExternalURL = "RENDER_EXTERNAL_URL"
	EnvPort        = "PORT"
)

// EnvPrefix prefixes overrides such as TAGRELAY_TELEGRAM_BOT_TOKEN
const EnvPrefix = "TAGRELAY"

// envKeys are the config keys that can be overridden from the environment
// even when the config file does not mention them
var envKeys = []string{
	"telegram.bot_token",
	"telegram.mode",
	"telegram.max_requests_per_second",
	"webhook.host",
	"webhook.port",
	"webhook.public_url",
	"webhook.path",
	"webhook.secret_token",
	"logging.level",
	"logging.file",
	"data_dir",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFiles   []string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envFiles:   []string{".env"},
	}
}

// WithEnvFiles sets the dotenv files read before the environment is consulted
func (l *Loader) WithEnvFiles(files ...string) *Loader {
	l.envFiles = files
	return l
}

// Load reads dotenv files, the config file and the environment, in that order
// of increasing precedence. A missing config file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to get home directory")
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Defaults plus environment
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := ValidateSchema(data); err != nil {
			return nil, err
		}
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyLegacyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}

	if cfg.Logging.File == "" && !cfg.Logging.Console {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "tagrelay.log")
	}

	return cfg, nil
}

// loadEnvFiles loads dotenv files without overriding variables already set
func (l *Loader) loadEnvFiles() error {
	for _, file := range l.envFiles {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}
	return nil
}

// applyLegacyEnv fills unset values from API_TOKEN, RENDER_EXTERNAL_URL and
// PORT. PORT always wins because hosting platforms assign it.
func applyLegacyEnv(cfg *Config) error {
	if token := os.Getenv(EnvAPIToken); token != "" && cfg.Telegram.BotToken == "" {
		cfg.Telegram.BotToken = token
	}

	if url := os.Getenv(EnvExternalURL); url != "" && cfg.Webhook.PublicURL == "" {
		cfg.Webhook.PublicURL = url
		if os.Getenv(EnvPrefix+"_TELEGRAM_MODE") == "" {
			cfg.Telegram.Mode = ModeWebhook
		}
	}

	if port := os.Getenv(EnvPort); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvPort, port, err)
		}
		cfg.Webhook.Port = p
	}

	return nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to get home directory")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("telegram", cfg.Telegram)
	v.Set("webhook", cfg.Webhook)
	v.Set("topics", cfg.Topics)
	v.Set("default_topic", cfg.DefaultTopic)
	v.Set("dispatch", cfg.Dispatch)
	v.Set("messages", cfg.Messages)
	v.Set("logging", cfg.Logging)
	v.Set("maintenance", cfg.Maintenance)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tagrelay", "tagrelay.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
