// Package config loads settings from defaults, <dir>/config.yaml, a .env
// file and INBOXAI_* environment variables, later sources winning.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	FileName = "config.yaml"
	DBName   = "inboxai.db"
	LogName  = "inboxai.log"
)

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Config struct {
	Dir string `yaml:"-"`

	APIURL       string        `yaml:"api_url"`
	CallbackAddr string        `yaml:"callback_addr"`
	DownloadDir  string        `yaml:"download_dir"`
	PageSize     int           `yaml:"page_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	LogLevel     string        `yaml:"log_level"`
	Redis        Redis         `yaml:"redis"`
}

// Default returns the settings used when nothing is configured.
func Default(dir string) Config {
	download := filepath.Join(dir, "downloads")
	if home, err := os.UserHomeDir(); err == nil {
		download = filepath.Join(home, "Downloads")
	}
	return Config{
		Dir:          dir,
		APIURL:       "http://localhost:8000",
		CallbackAddr: "127.0.0.1:3000",
		DownloadDir:  download,
		PageSize:     20,
		PollInterval: 5 * time.Second,
		CacheTTL:     5 * time.Minute,
		LogLevel:     "info",
	}
}

// DefaultDir is ~/.config/inboxai.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "inboxai"), nil
}

// Load reads the configuration rooted at dir. Missing files are fine.
func Load(dir string) (*Config, error) {
	cfg := Default(dir)

	path := filepath.Join(dir, FileName)
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// .env never overrides variables already set in the environment.
	for _, envFile := range []string{filepath.Join(dir, ".env"), ".env"} {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.APIURL = getEnv("INBOXAI_API_URL", c.APIURL)
	c.CallbackAddr = getEnv("INBOXAI_CALLBACK_ADDR", c.CallbackAddr)
	c.LogLevel = getEnv("INBOXAI_LOG_LEVEL", c.LogLevel)
	c.Redis.Addr = getEnv("INBOXAI_REDIS_ADDR", c.Redis.Addr)
	c.DownloadDir = getEnv("INBOXAI_DOWNLOAD_DIR", c.DownloadDir)
	if v := os.Getenv("INBOXAI_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INBOXAI_PAGE_SIZE: %w", err)
		}
		c.PageSize = n
	}
	return nil
}

func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		return fmt.Errorf("page_size %d out of range 1..100", c.PageSize)
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("poll_interval %s is below 1s", c.PollInterval)
	}
	return nil
}

func (c *Config) DBPath() string  { return filepath.Join(c.Dir, DBName) }
func (c *Config) LogPath() string { return filepath.Join(c.Dir, LogName) }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
