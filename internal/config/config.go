package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port               int           `env:"PORT" envDefault:"8000"`
	ModelDir           string        `env:"MODEL_DIR" envDefault:"models"`
	ModelFile          string        `env:"MODEL_FILE" envDefault:"plant_disease_model.onnx"`
	MetadataFile       string        `env:"METADATA_FILE" envDefault:"model_metadata.json"`
	OnnxRuntimeDylib   string        `env:"ONNX_RUNTIME_DYLIB"`
	UploadDir          string        `env:"UPLOAD_DIR"`
	MaxUploadBytes     int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	MaxImagePixels     int           `env:"MAX_IMAGE_PIXELS" envDefault:"50000000"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	DistinctErrorCodes bool          `env:"DISTINCT_ERROR_CODES" envDefault:"false"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat          string        `env:"LOG_FORMAT" envDefault:"text"`
	Workers            int           `env:"WORKERS" envDefault:"4"`
}

// LoadEnvFile loads a dotenv file into the process environment. An empty
// path means only os.Environ is used.
func LoadEnvFile(path string) {
	if path == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", path)
	if err := godotenv.Load(path); err != nil {
		log.Fatalf("error loading .env file '%s': %v", path, err)
	}
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT %d", cfg.Port)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.MaxImagePixels <= 0 {
		return nil, fmt.Errorf("MAX_IMAGE_PIXELS must be positive")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &cfg, nil
}

// ProjectRoot is the working directory, or two levels up when started from
// inside cmd/<name>.
func ProjectRoot() (string, error) {
	execPath, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	if filepath.Base(filepath.Dir(execPath)) == "cmd" {
		execPath = filepath.Join(execPath, "../..")
	}
	return filepath.Clean(execPath), nil
}

// ModelPaths resolves the model and metadata files. Relative MODEL_DIR values
// are taken relative to root.
func (c *Config) ModelPaths(root string) (modelPath, metadataPath string) {
	dir := c.ModelDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	modelPath = filepath.Join(dir, c.ModelFile)
	if c.MetadataFile != "" {
		metadataPath = filepath.Join(dir, c.MetadataFile)
	}
	return modelPath, metadataPath
}

func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(c.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
