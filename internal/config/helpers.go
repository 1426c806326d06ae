package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ConfigHelpers provides convenient access to global configuration
type ConfigHelpers struct {
	config *GlobalConfig
}

// NewConfigHelpers creates a new config helpers instance
func NewConfigHelpers(config *GlobalConfig) *ConfigHelpers {
	return &ConfigHelpers{config: config}
}

// Workers returns the number of concurrent download workers
func (c *ConfigHelpers) Workers() int {
	return c.config.Workers
}

// CacheDir returns the absolute path to the download cache directory
func (c *ConfigHelpers) CacheDir() (string, error) {
	return filepath.Abs(expandHome(c.config.CacheDir))
}

// WorkDir returns the absolute path to the build work directory
func (c *ConfigHelpers) WorkDir() (string, error) {
	return filepath.Abs(expandHome(c.config.WorkDir))
}

// Prefix returns the absolute install prefix
func (c *ConfigHelpers) Prefix() (string, error) {
	return filepath.Abs(expandHome(c.config.Prefix))
}

// TempDir returns the temporary directory path
func (c *ConfigHelpers) TempDir() string {
	if c.config.TempDir == "" {
		return os.TempDir()
	}
	return expandHome(c.config.TempDir)
}

// HTTPTimeout returns the overall download timeout, zero for none
func (c *ConfigHelpers) HTTPTimeout() time.Duration {
	return c.config.HTTP.Timeout
}

// LogLevel returns the configured log level
func (c *ConfigHelpers) LogLevel() string {
	return c.config.Logging.Level
}

// IsDebugMode returns true if debug logging is enabled
func (c *ConfigHelpers) IsDebugMode() bool {
	return c.config.Logging.Level == "debug"
}

// CreateCacheDir ensures the cache directory exists
func (c *ConfigHelpers) CreateCacheDir() (string, error) {
	cacheDir, err := c.CacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving cache directory: %w", err)
	}
	return cacheDir, createDirIfNotExists(cacheDir)
}

// CreateWorkDir ensures a per-package subdirectory of the work directory
// exists and is empty.
func (c *ConfigHelpers) CreateWorkDir(name string) (string, error) {
	workDir, err := c.WorkDir()
	if err != nil {
		return "", fmt.Errorf("resolving work directory: %w", err)
	}
	pkgDir := filepath.Join(workDir, name)
	if err := os.RemoveAll(pkgDir); err != nil {
		return "", fmt.Errorf("cleaning work directory %s: %w", pkgDir, err)
	}
	return pkgDir, createDirIfNotExists(pkgDir)
}

// CreateTempDir ensures a temp subdirectory exists
func (c *ConfigHelpers) CreateTempDir(subdir string) (string, error) {
	tempDir := filepath.Join(c.TempDir(), subdir)
	err := createDirIfNotExists(tempDir)
	return tempDir, err
}

func expandHome(path string) string {
	if path == "~" || len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Helper function to create directories
func createDirIfNotExists(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
