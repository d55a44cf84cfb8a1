// Package config loads drf-pp configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pfrederiksen/drf-pp/internal/crypto"
)

const (
	DefaultDataDir     = "~/.local/share/drf-pp"
	DefaultDownloadDir = "~/Documents/RacePrograms"
	DefaultModelPath   = "horse_race_predictor_drf.msgpack"
	DefaultStepTimeout = 10 * time.Second
)

var (
	// ErrMissingCredentials is returned when DRF_USERNAME or DRF_PASSWORD is unset
	ErrMissingCredentials = errors.New("DRF_USERNAME and DRF_PASSWORD must be set")
	// ErrMissingCSV is returned when training is requested without a dataset
	ErrMissingCSV = errors.New("a training CSV path is required (--csv or DRF_CSV_PATH)")
)

// Config holds application configuration
type Config struct {
	Username    string
	Password    string // plaintext after Load; DRF_PASSWORD may be sealed
	DataDir     string
	DownloadDir string
	CSVPath     string
	ModelPath   string
	ChromePath  string // empty uses the chromedp lookup
	Headless    bool
	StepTimeout time.Duration
	LogLevel    string
	LogFormat   string
	MetricsFile string
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Username:    getEnv("DRF_USERNAME", ""),
		DataDir:     getEnv("DRF_DATA_DIR", DefaultDataDir),
		DownloadDir: getEnv("DRF_DOWNLOAD_DIR", DefaultDownloadDir),
		CSVPath:     getEnv("DRF_CSV_PATH", ""),
		ModelPath:   getEnv("DRF_MODEL_PATH", DefaultModelPath),
		ChromePath:  getEnv("DRF_CHROME_PATH", ""),
		Headless:    getEnvAsBool("DRF_HEADLESS", false),
		StepTimeout: getEnvAsDuration("DRF_STEP_TIMEOUT", DefaultStepTimeout),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "console"),
		MetricsFile: getEnv("DRF_METRICS_FILE", ""),
	}

	password, err := crypto.NewEncryptor(os.Getenv("DRF_SECRET_KEY")).Open(os.Getenv("DRF_PASSWORD"))
	if err != nil {
		return nil, fmt.Errorf("reading DRF_PASSWORD: %w", err)
	}
	cfg.Password = password

	return cfg, nil
}

// ValidateAcquire checks the settings needed to download a program
func (c *Config) ValidateAcquire() error {
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	if strings.TrimSpace(c.DownloadDir) == "" {
		return fmt.Errorf("download directory is required")
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("step timeout must be positive, got %s", c.StepTimeout)
	}
	return nil
}

// ValidateTrain checks the settings needed to train a model
func (c *Config) ValidateTrain() error {
	if strings.TrimSpace(c.CSVPath) == "" {
		return ErrMissingCSV
	}
	if strings.TrimSpace(c.ModelPath) == "" {
		return fmt.Errorf("model path is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// bare integers are seconds
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
