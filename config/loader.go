package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "semtrip.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/semtrip"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Environment variables that override secrets and endpoints.
const (
	EnvAMapKey        = "SEMTRIP_AMAP_KEY"
	EnvOpenWeatherKey = "SEMTRIP_OPENWEATHER_KEY"
	EnvRedisURL       = "SEMTRIP_REDIS_URL"
	EnvNATSURL        = "SEMTRIP_NATS_URL"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger  *slog.Logger
	getenv  func(string) string
	homeDir func() (string, error)
	workDir func() (string, error)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnv replaces os.Getenv.
func WithEnv(getenv func(string) string) LoaderOption {
	return func(l *Loader) {
		l.getenv = getenv
	}
}

// WithDirs replaces the home and working directory lookups.
func WithDirs(home, work string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = func() (string, error) { return home, nil }
		l.workDir = func() (string, error) { return work, nil }
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		logger:  logger,
		getenv:  os.Getenv,
		homeDir: os.UserHomeDir,
		workDir: os.Getwd,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/semtrip/config.yaml)
// 3. Project config (semtrip.yaml in current or parent directories)
// 4. The explicit file, when path is set
// 5. Environment variables
//
// Each file is decoded over the result of the previous layers, so a file
// only changes the keys it sets.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		if _, err := readFile(userConfigPath, cfg); err == nil {
			l.logger.Debug("Loaded user config", "path", userConfigPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Failed to load user config", "path", userConfigPath, "error", err)
		}
	}

	if projectConfigPath := l.findProjectConfig(); projectConfigPath != "" {
		if _, err := readFile(projectConfigPath, cfg); err != nil {
			return nil, fmt.Errorf("project config: %w", err)
		}
		l.logger.Debug("Loaded project config", "path", projectConfigPath)
	} else {
		l.logger.Debug("No project config found")
	}

	if path != "" {
		if _, err := readFile(path, cfg); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config file", "path", path)
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) {
	if v := l.getenv(EnvAMapKey); v != "" {
		cfg.Maps.APIKey = v
	}
	if v := l.getenv(EnvOpenWeatherKey); v != "" {
		cfg.Weather.APIKey = v
	}
	if v := l.getenv(EnvRedisURL); v != "" {
		cfg.Cache.RedisURL = v
		cfg.Cache.Backend = "redis"
	}
	if v := l.getenv(EnvNATSURL); v != "" {
		cfg.NATS.URL = v
	}
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist.
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return errors.New("cannot determine home directory")
	}
	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}
	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return err
	}
	l.logger.Info("Created default user config", "path", userConfigPath)
	return nil
}

// userConfigPath returns the path to the user config file.
func (l *Loader) userConfigPath() string {
	home, err := l.homeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for semtrip.yaml in current and parent directories.
func (l *Loader) findProjectConfig() string {
	cwd, err := l.workDir()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
