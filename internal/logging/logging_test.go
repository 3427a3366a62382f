package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exportsite/internal/config"
	"exportsite/internal/logging"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("verbose"))
}

func TestProductionHandlerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{AppName: "exportsite", Environment: config.Production, LogLevel: config.LogLevelInfo}

	logger := slog.New(logging.NewHandler(cfg, &buf))
	logger.Info("page view accepted", slog.String("path", "/products"))
	logger.Debug("filtered out")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "page view accepted", entry["msg"])
	assert.Equal(t, "/products", entry["path"])
}

func TestHandlerWritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	cfg := &config.Config{
		AppName:         "exportsite",
		Environment:     config.Development,
		LogLevel:        config.LogLevelDebug,
		LogsDirectory:   dir,
		LogsMaxSizeInMb: 1,
	}

	slog.New(logging.NewHandler(cfg, &buf)).Info("hello")

	data, err := os.ReadFile(filepath.Join(dir, "exportsite.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, buf.String(), "hello")
}
