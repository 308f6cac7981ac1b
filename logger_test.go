package emitter

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-logger/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFmtLoggerFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewFmtLogger(buf)

	withLoggerFields(logger.WithContext(context.Background()), map[string]any{
		"type":        "TodosState.addTodo",
		"dispatch_id": "abc",
	}).Info("dispatch %s", "started")

	line := buf.String()
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "dispatch started")
	assert.Contains(t, line, "dispatch_id=abc type=TodosState.addTodo")
}

func TestNormalizeLogger(t *testing.T) {
	_, ok := normalizeLogger(nil).(*FmtLogger)
	assert.True(t, ok)
}

func TestGLoggerAdapter(t *testing.T) {
	buf := &bytes.Buffer{}
	base := glog.NewLogger(
		glog.WithWriter(buf),
		glog.WithLoggerTypeJSON(),
		glog.WithLevel("trace"),
	)
	logger := NewGLogger(base)

	withLoggerFields(logger.WithContext(context.Background()), map[string]any{
		"dispatch_id": "xyz",
	}).Debug("dispatch completed")

	out := buf.String()
	require.NotEmpty(t, strings.TrimSpace(out))
	assert.Contains(t, out, "dispatch completed")

	buf.Reset()
	logger.Info("canceled uncompleted dispatch %s", "abc-123")
	out = buf.String()
	assert.Contains(t, out, "canceled uncompleted dispatch abc-123")
	assert.NotContains(t, out, "%s")
	assert.NotContains(t, out, "BADKEY")

	buf.Reset()
	logger.Error("dispatch failed: %v", stderrors.New("boom"))
	out = buf.String()
	assert.Contains(t, out, "dispatch failed: boom")
	assert.NotContains(t, out, "BADKEY")
}

func TestGLogMessage(t *testing.T) {
	msg, attrs := glogMessage("plain", nil)
	assert.Equal(t, "plain", msg)
	assert.Nil(t, attrs)

	msg, attrs = glogMessage("run %d of %s", []any{2, "job"})
	assert.Equal(t, "run 2 of job", msg)
	assert.Nil(t, attrs)

	boom := stderrors.New("boom")
	msg, attrs = glogMessage("failed %s: %v", []any{"job", boom})
	assert.Equal(t, "failed job: boom", msg)
	assert.Equal(t, []any{"error", boom}, attrs)
}

func TestNewLoggerFromConfig(t *testing.T) {
	t.Run("invalid", func(t *testing.T) {
		_, _, err := NewLoggerFromConfig(LoggingConfig{Level: "chatty"})
		assert.True(t, IsKind(err, ErrCodeInvalidConfig))
	})

	t.Run("stderr", func(t *testing.T) {
		logger, closer, err := NewLoggerFromConfig(LoggingConfig{})
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.NoError(t, closer.Close())
	})

	t.Run("rotating file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "emitter.log")
		logger, closer, err := NewLoggerFromConfig(LoggingConfig{
			Level:     "info",
			Format:    "json",
			File:      path,
			MaxSizeMB: 1,
		})
		require.NoError(t, err)
		logger.Info("hello from %s", "emitter")
		logger.Debug("below the configured level")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		out := string(data)
		assert.Contains(t, out, "hello from emitter")
		assert.NotContains(t, out, "BADKEY")
		assert.NotContains(t, out, "below the configured level")
	})
}
