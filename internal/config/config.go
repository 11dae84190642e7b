package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/jobhunt-companion/pkg/log"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// Values come from environment variables (optionally seeded from a .env file)
// with defaults matching the behavior of the hosted dashboard.
//
// Environment Variables:
// Backend:
// - BACKEND_URL: base URL of the analysis backend (default: http://localhost:8000)
// - REQUEST_TIMEOUT: timeout for non-streaming backend calls (default: 30s)
// - HEALTH_CRON: schedule of the backend health probe (default: @every 10s)
//
// Local surface:
// - HTTP_ADDR: listen address (default: :8080)
// - UI_STATIC_DIR: directory with the built UI (default: ./web)
// - UI_ENABLED: serve the UI directory (default: true)
// - DB_PATH: sqlite file holding the persisted state (default: ./data/companion.db)
// - LOG_LEVEL: debug, info, warn, error (default: info)
//
// Progress tracking:
// - PROGRESS_GRACE: wait for the push channel to open (default: 3s)
// - PROGRESS_POLL_INTERVAL: pull interval (default: 2s)
// - PROGRESS_QUIET_WINDOW: stuck advisory window (default: 120s)
// - PROGRESS_MAX_POLLS: poll ceiling (default: 300)
// - PROGRESS_NOT_FOUND_LIMIT: consecutive not-found tolerance (default: 5)
// - PROGRESS_PUSH_SILENCE: push quiet time before backup polling (default: 6s)
// - PROGRESS_OVERLAP_WINDOW: how long push and pull may run together (default: 10s)
// - RETRY_LIMIT: user retries per session (default: 3)
type Config struct {
	Backend  BackendConfig  `json:"backend"`
	HTTP     HTTPConfig     `json:"http"`
	Storage  StorageConfig  `json:"storage"`
	Progress ProgressConfig `json:"progress"`
	Log      LogConfig      `json:"log"`
}

type BackendConfig struct {
	URL            string        `json:"url"`
	RequestTimeout time.Duration `json:"request_timeout"`
	HealthCron     string        `json:"health_cron"`
}

type HTTPConfig struct {
	Addr        string `json:"addr"`
	UIStaticDir string `json:"ui_static_dir"`
	UIEnabled   bool   `json:"ui_enabled"`
}

type StorageConfig struct {
	DBPath string `json:"db_path"`
}

// ProgressConfig tunes job progress tracking.
type ProgressConfig struct {
	Grace         time.Duration `json:"grace"`
	PollInterval  time.Duration `json:"poll_interval"`
	QuietWindow   time.Duration `json:"quiet_window"`
	MaxPolls      int           `json:"max_polls"`
	NotFoundLimit int           `json:"not_found_limit"`
	PushSilence   time.Duration `json:"push_silence"`
	OverlapWindow time.Duration `json:"overlap_window"`
	RetryLimit    int           `json:"retry_limit"`
}

type LogConfig struct {
	Level string `json:"level"`
}

type Option func(*Config)

func WithBackendURL(u string) Option {
	return func(c *Config) {
		c.Backend.URL = u
	}
}

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.Storage.DBPath = path
	}
}

// LoadDotEnv seeds the environment from the given files; missing files are ignored.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Warn("Failed to load %s: %v", f, err)
		}
	}
}

// NewFromEnv creates a Config from environment variables and options.
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Backend: BackendConfig{
			URL:            getEnvString("BACKEND_URL", "http://localhost:8000"),
			RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
			HealthCron:     getEnvString("HEALTH_CRON", "@every 10s"),
		},
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", ":8080"),
			UIStaticDir: getEnvString("UI_STATIC_DIR", "./web"),
			UIEnabled:   getEnvBool("UI_ENABLED", true),
		},
		Storage: StorageConfig{
			DBPath: getEnvString("DB_PATH", "./data/companion.db"),
		},
		Progress: ProgressConfig{
			Grace:         getEnvDuration("PROGRESS_GRACE", 3*time.Second),
			PollInterval:  getEnvDuration("PROGRESS_POLL_INTERVAL", 2*time.Second),
			QuietWindow:   getEnvDuration("PROGRESS_QUIET_WINDOW", 120*time.Second),
			MaxPolls:      getEnvInt("PROGRESS_MAX_POLLS", 300),
			NotFoundLimit: getEnvInt("PROGRESS_NOT_FOUND_LIMIT", 5),
			PushSilence:   getEnvDuration("PROGRESS_PUSH_SILENCE", 6*time.Second),
			OverlapWindow: getEnvDuration("PROGRESS_OVERLAP_WINDOW", 10*time.Second),
			RetryLimit:    getEnvInt("RETRY_LIMIT", 3),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", *config)
	return config, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(strings.TrimSpace(c.Backend.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.Backend.URL)
	}
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.Progress.PollInterval <= 0 {
		return fmt.Errorf("PROGRESS_POLL_INTERVAL must be positive")
	}
	if c.Progress.Grace <= 0 {
		return fmt.Errorf("PROGRESS_GRACE must be positive")
	}
	if c.Progress.MaxPolls <= 0 {
		return fmt.Errorf("PROGRESS_MAX_POLLS must be positive")
	}
	if c.Progress.NotFoundLimit <= 0 {
		return fmt.Errorf("PROGRESS_NOT_FOUND_LIMIT must be positive")
	}
	if c.Progress.RetryLimit < 0 {
		return fmt.Errorf("RETRY_LIMIT must not be negative")
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("3s") or bare integers as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
