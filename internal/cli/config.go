package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/tagrelay/internal/config"
	"github.com/harun/tagrelay/internal/telegram"
)

var checkToken bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration, check it against the schema and report every
semantic problem found. With --check-token the bot token is also verified
against the Telegram API.`,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE:  runConfigShow,
}

// tokenChecker resolves a bot token to the bot username
var tokenChecker = telegram.ValidateToken

func init() {
	configValidateCmd.Flags().BoolVar(&checkToken, "check-token", false, "verify the bot token with Telegram")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	problems := config.NewValidator().ValidateConfig(cfg)
	for _, p := range problems {
		fmt.Fprintf(out, "  - %v\n", p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("configuration has %d problem(s): %w", len(problems), errors.Join(problems...))
	}

	if checkToken {
		username, err := tokenChecker(cfg.Telegram.BotToken)
		if err != nil {
			return fmt.Errorf("token check failed: %w", err)
		}
		fmt.Fprintf(out, "Bot: @%s\n", username)
	}

	fmt.Fprintln(out, "Configuration is valid")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
	return nil
}
