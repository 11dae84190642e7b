package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MimeLyc/jobhunt-companion/pkg/icron"
)

const DefaultRuntimeSettingsFile = "./data/settings.json"

// RuntimeSettings are the knobs the UI may change without a restart.
type RuntimeSettings struct {
	BackendURL string `json:"backend_url"`
	HealthCron string `json:"health_cron"`
	LogLevel   string `json:"log_level"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.BackendURL) == "" {
		return fmt.Errorf("backend_url is required")
	}
	u, err := url.Parse(s.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend_url %q", s.BackendURL)
	}
	if strings.TrimSpace(s.HealthCron) == "" {
		return fmt.Errorf("health_cron is required")
	}
	if _, err := icron.Parser.Parse(s.HealthCron); err != nil {
		return fmt.Errorf("invalid health_cron: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(s.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", s.LogLevel)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		BackendURL: c.Backend.URL,
		HealthCron: c.Backend.HealthCron,
		LogLevel:   c.Log.Level,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.BackendURL) != "" {
			c.Backend.URL = settings.BackendURL
		}
		if strings.TrimSpace(settings.HealthCron) != "" {
			c.Backend.HealthCron = settings.HealthCron
		}
		if strings.TrimSpace(settings.LogLevel) != "" {
			c.Log.Level = settings.LogLevel
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
