package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Run("writes json log lines to file", func(t *testing.T) {
		// Prepare
		logFile := filepath.Join(t.TempDir(), "test.log")

		// Execute
		logger, err := New(Config{Level: "debug", Format: "json", OutputFile: logFile}, "heap")
		require.NoError(t, err, "creates logger")
		logger.Debug("block allocated", zap.Int64("block", 3))
		_ = logger.Sync()

		// Check
		data, err := os.ReadFile(logFile)
		require.NoError(t, err, "reads log file")
		assert.Contains(t, string(data), `"msg":"block allocated"`, "message logged")
		assert.Contains(t, string(data), `"component":"heap"`, "component field added")
		assert.Contains(t, string(data), `"block":3`, "structured field logged")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		// Execute
		logger, err := New(Config{Level: "chatty", OutputFile: "stderr"}, "heap")

		// Check
		assert.NoError(t, err, "creates logger")
		assert.False(t, logger.Core().Enabled(zap.DebugLevel), "debug disabled")
		assert.True(t, logger.Core().Enabled(zap.InfoLevel), "info enabled")
	})

	t.Run("unwritable output fails", func(t *testing.T) {
		// Execute
		_, err := New(Config{OutputFile: filepath.Join(t.TempDir(), "missing", "test.log")}, "heap")

		// Check
		assert.Error(t, err, "log file can not be created")
	})
}

func TestOrNop(t *testing.T) {
	t.Run("nil gives no-op logger", func(t *testing.T) {
		assert.NotNil(t, OrNop(nil), "no-op logger returned")
	})

	t.Run("non nil is returned as is", func(t *testing.T) {
		logger := zap.NewExample()
		assert.Same(t, logger, OrNop(logger), "same logger returned")
	})
}
