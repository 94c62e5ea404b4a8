package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harun/tagrelay/internal/config"
	"github.com/harun/tagrelay/internal/daemon"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tagrelay",
	Short: "tagrelay - audio tagging bot for Telegram forum groups",
	Long: `tagrelay is a Telegram bot that lets group members tag uploaded audio files
with playlists and forwards each file into the forum topic of every chosen
playlist plus a shared default topic.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tagrelay/tagrelay.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig reads the configuration named by --config and applies the
// --log-level flag when it was set explicitly
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		cfg.Logging.Level = logLevel
	}

	return cfg, nil
}

// getPIDFilePath returns the PID file of the configured data directory
func getPIDFilePath() string {
	loader := config.NewLoader(cfgFile)
	if cfg, err := loader.Load(); err == nil && cfg.DataDir != "" {
		return daemon.PIDFilePath(cfg.DataDir)
	}
	return daemon.PIDFilePath(filepath.Dir(loader.GetConfigPath()))
}
