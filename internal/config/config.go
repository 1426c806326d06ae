package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the global configuration file name searched for when no
// explicit path is given.
const ConfigFileName = "pkg-installer.yml"

// GlobalConfig holds settings shared by every command.
type GlobalConfig struct {
	Workers  int           `yaml:"workers"`
	CacheDir string        `yaml:"cache_dir"`
	WorkDir  string        `yaml:"work_dir"`
	TempDir  string        `yaml:"temp_dir"`
	Prefix   string        `yaml:"prefix"`
	Logging  LoggingConfig `yaml:"logging"`
	HTTP     HTTPConfig    `yaml:"http"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// HTTPConfig controls archive downloads.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

var globalConfig *GlobalConfig

// DefaultGlobalConfig returns the configuration used when no file is found.
func DefaultGlobalConfig() *GlobalConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		cacheRoot = filepath.Join(home, ".cache")
	}

	return &GlobalConfig{
		Workers:  4,
		CacheDir: filepath.Join(cacheRoot, "pkg-installer", "downloads"),
		WorkDir:  filepath.Join(cacheRoot, "pkg-installer", "work"),
		TempDir:  "",
		Prefix:   filepath.Join(home, ".local"),
		Logging:  LoggingConfig{Level: "info"},
		HTTP:     HTTPConfig{Timeout: 10 * time.Minute},
	}
}

// Global returns the active configuration, the defaults before any load.
func Global() *GlobalConfig {
	if globalConfig == nil {
		globalConfig = DefaultGlobalConfig()
	}
	return globalConfig
}

// SetGlobal replaces the active configuration.
func SetGlobal(c *GlobalConfig) {
	globalConfig = c
}

// FindConfigFile returns the first existing config file among the explicit
// path, the working directory and $HOME/.config/pkg-installer. An explicit
// path that does not exist is an error; otherwise an empty string means none
// was found.
func FindConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	candidates := []string{ConfigFileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "pkg-installer", ConfigFileName))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", nil
}

// LoadGlobalConfig reads a YAML config file on top of the defaults. An empty
// path returns the defaults.
func LoadGlobalConfig(path string) (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values no command can work with.
func (c *GlobalConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Prefix == "" {
		return fmt.Errorf("prefix must not be empty")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work_dir must not be empty")
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported logging.level %q", c.Logging.Level)
	}
	return nil
}
