package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets variables the config loader reads
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"API_TOKEN", "RENDER_EXTERNAL_URL", "PORT",
		"TAGRELAY_TELEGRAM_BOT_TOKEN", "TAGRELAY_TELEGRAM_MODE", "TAGRELAY_LOGGING_LEVEL", "TAGRELAY_DATA_DIR",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

// writeConfig writes a config file whose data_dir is the same temp dir
func writeConfig(t *testing.T, token string) (path, dataDir string) {
	t.Helper()
	dataDir = t.TempDir()
	path = filepath.Join(dataDir, "tagrelay.json")
	body := fmt.Sprintf(`{
	"telegram": {"bot_token": %q},
	"topics": [{"name": "Rock", "thread_id": 8}, {"name": "Jazz", "thread_id": 10}],
	"default_topic": {"name": "All", "thread_id": 2},
	"data_dir": %q
}`, token, dataDir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path, dataDir
}

// execute runs the root command with args and returns combined output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := GetRootCmd()
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)
	cmd.SetArgs(args)
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetErr(nil)
		cmd.SetIn(nil)
		resetFlags(cmd)
	})

	err := cmd.Execute()
	return output.String(), err
}

// resetFlags restores every flag of the command tree, since cobra keeps
// parsed values between Execute calls
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		output, err := execute(t, "--version")
		require.NoError(t, err)

		assert.Contains(t, output, "tagrelay version")
		assert.Contains(t, output, GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		output, err := execute(t, "--help")
		require.NoError(t, err)

		assert.Contains(t, output, "tagrelay")
		assert.Contains(t, output, "forum topic")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "info", logLevelFlag.DefValue)
	})

	t.Run("subcommands", func(t *testing.T) {
		var names []string
		for _, c := range GetRootCmd().Commands() {
			names = append(names, c.Name())
		}
		for _, want := range []string{"start", "stop", "status", "topics", "config", "configure"} {
			assert.Contains(t, names, want)
		}
	})
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}

func TestGetPIDFilePath(t *testing.T) {
	clearEnv(t)
	path, dataDir := writeConfig(t, "123:abc")

	cfgFile = path
	defer func() { cfgFile = "" }()

	assert.Equal(t, filepath.Join(dataDir, "tagrelay.pid"), getPIDFilePath())
}
