package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := execute(t, "stop", "--help")
		require.NoError(t, err)

		assert.Contains(t, output, "Stop the tagrelay daemon")
		assert.Contains(t, output, "timeout")
	})

	t.Run("not running", func(t *testing.T) {
		clearEnv(t)
		path, _ := writeConfig(t, "123:abc")

		_, err := execute(t, "stop", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not running")
	})

	t.Run("stale pid file", func(t *testing.T) {
		clearEnv(t)
		path, dataDir := writeConfig(t, "123:abc")
		pidFile := filepath.Join(dataDir, "tagrelay.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("999999999"), 0644))

		_, err := execute(t, "stop", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stale PID file")

		_, statErr := os.Stat(pidFile)
		assert.True(t, os.IsNotExist(statErr))
	})
}
