package logging_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/branch_promoter/gitops/logging"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "WARN", want: slog.LevelWarn},
		{in: " error ", want: slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := logging.ParseLevel(tt.in)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := logging.ParseLevel("loud")
	assert.ErrorContains(t, err, `invalid log level "loud"`)
}

func TestNew_non_terminal_writer_uses_json(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger, closer, err := logging.New(logging.Options{
		Level:  "debug",
		Writer: &buf,
	})
	require.NoError(t, err)

	defer closer.Close() //nolint:errcheck

	logger.Debug("polling", "number", 7)

	assert.Contains(t, buf.String(), `"msg":"polling"`)
	assert.Contains(t, buf.String(), `"number":7`)
}

func TestNew_level_filters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger, _, err := logging.New(logging.Options{
		Level:  "warn",
		Writer: &buf,
	})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_file_output(t *testing.T) {
	t.Parallel()

	pa := filepath.Join(t.TempDir(), "promoter.log")

	logger, closer, err := logging.New(logging.Options{File: pa})
	require.NoError(t, err)

	logger.Info("merged pull request", "number", 3)
	require.NoError(t, closer.Close())

	content, err := os.ReadFile(pa)
	require.NoError(t, err)
	assert.Contains(t, string(content), "msg=\"merged pull request\"")
	assert.Contains(t, string(content), "number=3")
}

func TestNew_invalid_level(t *testing.T) {
	t.Parallel()

	_, _, err := logging.New(logging.Options{Level: "verbose"})

	assert.ErrorContains(t, err, "creating logger")
}

func TestIsTerminal_buffer(t *testing.T) {
	t.Parallel()

	assert.False(t, logging.IsTerminal(&bytes.Buffer{}))
}
