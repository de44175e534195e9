package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetLogLevel(logger.DebugLevel)
	t.Cleanup(func() { logger.SetOutput(&bytes.Buffer{}) })
	return &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
	}{
		{"debug", logger.DebugLevel},
		{"INFO", logger.InfoLevel},
		{"", logger.InfoLevel},
		{"warning", logger.WarnLevel},
		{"warn", logger.WarnLevel},
		{" error ", logger.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := logger.ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := logger.ParseLevel("verbose")
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestComponentField(t *testing.T) {
	buf := capture(t)

	logger.With("monitor").Info().Str("metric", "cpu").Msg("sampled")

	entry := decode(t, buf)
	assert.Equal(t, "monitor", entry["component"])
	assert.Equal(t, "cpu", entry["metric"])
	assert.Equal(t, "sampled", entry["message"])
}

func TestErrorWithCode(t *testing.T) {
	buf := capture(t)

	err := errors.New().Wrap(errors.ErrInitFailed, assert.AnError)
	logger.ErrorWithCode(err).Msg("startup")

	entry := decode(t, buf)
	assert.Equal(t, string(errors.ErrInitFailed), entry["error_code"])
	assert.Equal(t, assert.AnError.Error(), entry["error"])
}

func TestLevelFilter(t *testing.T) {
	buf := capture(t)
	logger.SetLogLevel(logger.WarnLevel)

	logger.Debug().Msg("hidden")
	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}
