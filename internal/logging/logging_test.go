package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.input), "level %q", tt.input)
	}
}

func TestSetup_FileLogging(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lodestone.log")

	cfg := DefaultConfig()
	cfg.FilePath = path
	cfg.WriteToStderr = false

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)

	logger.Info("hello", slog.String("component", "test"))
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestRotatingWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rot.log")

	w, err := NewRotatingWriter(path, 1, 2) // 1 MB threshold
	require.NoError(t, err)
	defer w.Close()

	// Two writes of ~600 KB each force one rotation.
	chunk := []byte(strings.Repeat("x", 600*1024))
	_, err = w.Write(chunk)
	require.NoError(t, err)
	_, err = w.Write(chunk)
	require.NoError(t, err)

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "rotated file should exist")
}
