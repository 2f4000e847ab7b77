package config_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Brownie44l1/leaf-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "models", cfg.ModelDir)
	assert.Equal(t, "plant_disease_model.onnx", cfg.ModelFile)
	assert.Equal(t, "model_metadata.json", cfg.MetadataFile)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 50_000_000, cfg.MaxImagePixels)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.DistinctErrorCodes)
	assert.Equal(t, 4, cfg.Workers)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MODEL_DIR", "/srv/models")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("DISTINCT_ERROR_CODES", "true")
	t.Setenv("WORKERS", "0")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.DistinctErrorCodes)
	assert.Equal(t, 1, cfg.Workers)

	modelPath, metadataPath := cfg.ModelPaths("/ignored")
	assert.Equal(t, "/srv/models/plant_disease_model.onnx", modelPath)
	assert.Equal(t, "/srv/models/model_metadata.json", metadataPath)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("Port", func(t *testing.T) {
		t.Setenv("PORT", "70000")
		_, err := config.Load()
		assert.Error(t, err)
	})
	t.Run("NotANumber", func(t *testing.T) {
		t.Setenv("PORT", "eighty")
		_, err := config.Load()
		assert.Error(t, err)
	})
	t.Run("PixelLimit", func(t *testing.T) {
		t.Setenv("MAX_IMAGE_PIXELS", "-1")
		_, err := config.Load()
		assert.Error(t, err)
	})
	t.Run("UploadLimit", func(t *testing.T) {
		t.Setenv("MAX_UPLOAD_BYTES", "0")
		_, err := config.Load()
		assert.Error(t, err)
	})
}

func TestModelPathsRelative(t *testing.T) {
	cfg := &config.Config{ModelDir: "models", ModelFile: "m.onnx"}
	modelPath, metadataPath := cfg.ModelPaths("/app")
	assert.Equal(t, "/app/models/m.onnx", modelPath)
	assert.Empty(t, metadataPath)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LEAF_API_TEST_VALUE=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LEAF_API_TEST_VALUE") })

	config.LoadEnvFile(path)
	assert.Equal(t, "from-file", os.Getenv("LEAF_API_TEST_VALUE"))
}

func TestLogger(t *testing.T) {
	cfg := &config.Config{LogLevel: "debug", LogFormat: "json"}
	assert.True(t, cfg.Logger().Enabled(context.Background(), slog.LevelDebug))

	cfg = &config.Config{LogLevel: "bogus"}
	logger := cfg.Logger()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
}
