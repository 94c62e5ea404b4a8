package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new configuration wizard on stdin and stdout
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

// NewWizardWithIO creates a wizard reading answers from in
func NewWizardWithIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard starting from base, or from
// the defaults when base is nil
func (w *Wizard) Run(base *Config) (*Config, error) {
	fmt.Fprintln(w.out, "=== TagRelay Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	if base != nil {
		copied := *base
		cfg = &copied
	}
	validator := NewValidator()

	// Bot Token
	fmt.Fprintln(w.out, "Telegram Configuration:")
	for {
		prompt := "Telegram Bot Token: "
		if cfg.Telegram.BotToken != "" {
			prompt = "Telegram Bot Token (press Enter to keep current): "
		}
		fmt.Fprint(w.out, prompt)
		token, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if token == "" {
			if cfg.Telegram.BotToken != "" {
				break
			}
			fmt.Fprintln(w.out, "Error: Bot token is required")
			continue
		}

		if err := validator.ValidateTelegramToken(token); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}

		cfg.Telegram.BotToken = token
		break
	}

	// Mode
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Receive mode options:")
	fmt.Fprintln(w.out, "  polling - Long-poll getUpdates (default)")
	fmt.Fprintln(w.out, "  webhook - Telegram posts updates to a public HTTPS URL")
	fmt.Fprintf(w.out, "Mode [%s]: ", cfg.Telegram.Mode)
	mode, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if mode != "" {
		if err := validator.ValidateMode(mode); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Telegram.Mode)
		} else {
			cfg.Telegram.Mode = mode
		}
	}

	if cfg.Telegram.Mode == ModeWebhook {
		for {
			fmt.Fprint(w.out, "Public HTTPS URL: ")
			publicURL, err := w.readLine()
			if err != nil {
				return nil, err
			}

			if publicURL == "" && cfg.Webhook.PublicURL != "" {
				break
			}

			if err := validator.ValidatePublicURL(publicURL); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}

			cfg.Webhook.PublicURL = publicURL
			break
		}
	}

	fmt.Fprintln(w.out)

	// Log Level
	fmt.Fprintln(w.out, "Logging:")
	fmt.Fprintf(w.out, "Log level (debug/info/warn/error) [%s]: ", cfg.Logging.Level)
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Logging.Level)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
