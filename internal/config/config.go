// Package config loads runtime settings from .env, an optional YAML file and
// the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Identity store backends.
const (
	IdentityStoreFile  = "file"
	IdentityStoreRedis = "redis"
)

// Config holds all configuration values.
type Config struct {
	// Backend endpoints
	APIBaseURL string `yaml:"api_base_url"`
	SocketURL  string `yaml:"socket_url"`
	SocketPath string `yaml:"socket_path"`

	// Session limits
	MaxConcurrentChats int `yaml:"max_concurrent_chats"`
	HistoryLimit       int `yaml:"history_limit"`
	QueuePageSize      int `yaml:"queue_page_size"`

	// Timeouts
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`

	// Identity persistence
	IdentityStore string `yaml:"identity_store"`
	IdentityFile  string `yaml:"identity_file"`
	RedisURL      string `yaml:"redis_url"`
	RedisKey      string `yaml:"redis_key"`

	// Lifecycle events (disabled when AMQPURL is empty)
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
}

// fileConfig mirrors Config for YAML decoding; the log level is a string there.
type fileConfig struct {
	Config   `yaml:",inline"`
	LogLevel string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		APIBaseURL:         "http://localhost:8080",
		SocketPath:         "/ws",
		MaxConcurrentChats: 3,
		HistoryLimit:       100,
		QueuePageSize:      5,
		RequestTimeout:     15 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		LogFile:            "/tmp/agentdesk.log",
		LogLevel:           slog.LevelInfo,
		IdentityStore:      IdentityStoreFile,
		RedisKey:           "agentdesk:identity",
		AMQPExchange:       "agentdesk.events",
	}
}

// Load reads configuration. A missing .env file is ignored; a missing
// AGENTDESK_CONFIG file is an error because it was asked for explicitly.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("AGENTDESK_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.mergeEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	fc := fileConfig{Config: *c}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	*c = fc.Config
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	return nil
}

func (c *Config) mergeEnv() {
	c.APIBaseURL = getEnv("AGENTDESK_API_URL", c.APIBaseURL)
	c.SocketURL = getEnv("AGENTDESK_SOCKET_URL", c.SocketURL)
	c.SocketPath = getEnv("AGENTDESK_SOCKET_PATH", c.SocketPath)

	c.MaxConcurrentChats = getEnvInt("AGENTDESK_MAX_CONCURRENT_CHATS", c.MaxConcurrentChats)
	c.HistoryLimit = getEnvInt("AGENTDESK_HISTORY_LIMIT", c.HistoryLimit)
	c.QueuePageSize = getEnvInt("AGENTDESK_QUEUE_PAGE_SIZE", c.QueuePageSize)

	c.RequestTimeout = getEnvDuration("AGENTDESK_REQUEST_TIMEOUT", c.RequestTimeout)
	c.HandshakeTimeout = getEnvDuration("AGENTDESK_HANDSHAKE_TIMEOUT", c.HandshakeTimeout)

	c.LogFile = getEnv("AGENTDESK_LOG_FILE", c.LogFile)
	if lvl := os.Getenv("AGENTDESK_LOG_LEVEL"); lvl != "" {
		c.LogLevel = parseLogLevel(lvl)
	}

	c.IdentityStore = getEnv("AGENTDESK_IDENTITY_STORE", c.IdentityStore)
	c.IdentityFile = getEnv("AGENTDESK_IDENTITY_FILE", c.IdentityFile)
	c.RedisURL = getEnv("AGENTDESK_REDIS_URL", getEnv("REDIS_URL", c.RedisURL))
	c.RedisKey = getEnv("AGENTDESK_REDIS_KEY", c.RedisKey)

	c.AMQPURL = getEnv("AGENTDESK_AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AGENTDESK_AMQP_EXCHANGE", c.AMQPExchange)
}

// normalize fills derived values and clamps limits the backend enforces.
func (c *Config) normalize() {
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.SocketURL == "" {
		c.SocketURL = c.APIBaseURL
	}
	if c.HistoryLimit < 1 {
		c.HistoryLimit = 1
	}
	if c.HistoryLimit > 500 {
		c.HistoryLimit = 500
	}
	c.IdentityStore = strings.ToLower(strings.TrimSpace(c.IdentityStore))
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("config: api base url is required")
	}
	if c.MaxConcurrentChats < 1 {
		return fmt.Errorf("config: max concurrent chats must be positive, got %d", c.MaxConcurrentChats)
	}
	if c.QueuePageSize < 1 {
		return fmt.Errorf("config: queue page size must be positive, got %d", c.QueuePageSize)
	}
	switch c.IdentityStore {
	case IdentityStoreFile:
	case IdentityStoreRedis:
		if c.RedisURL == "" {
			return errors.New("config: redis identity store needs a redis url")
		}
	default:
		return fmt.Errorf("config: unknown identity store %q", c.IdentityStore)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		slog.Warn("ignoring invalid integer setting", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration setting", "key", key, "value", val)
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
