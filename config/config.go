// Package config loads settings from CLI flags, environment variables and a TOML file.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// Config holds all configuration settings for the storefront server.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	API     APIConfig     `toml:"api"`
	Session SessionConfig `toml:"session"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig selects the durable store for session state.
type StorageConfig struct {
	Type          string   `toml:"type"` // "memory", "postgres", "redis"
	URL           string   `toml:"url"`  // PostgreSQL connection URL
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	KeyPrefix     string   `toml:"key_prefix"`
	TTL           Duration `toml:"ttl"` // redis only; 0 = never expire
}

// APIConfig points at the remote commerce API.
type APIConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

// SessionConfig bounds the in-memory session registry.
type SessionConfig struct {
	MaxSessions   int      `toml:"max_sessions"`
	IdleTimeout   Duration `toml:"idle_timeout"` // 0 = only the cap evicts
	SweepInterval Duration `toml:"sweep_interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
	Format string `toml:"format"` // "json", "text"
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8082,
		},
		Storage: StorageConfig{
			Type:      "memory",
			RedisAddr: "localhost:6379",
			KeyPrefix: "storefront:",
		},
		API: APIConfig{
			BaseURL: "http://localhost:5000",
			Timeout: Duration(10 * time.Second),
		},
		Session: SessionConfig{
			MaxSessions:   10000,
			IdleTimeout:   Duration(30 * time.Minute),
			SweepInterval: Duration(time.Minute),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from CLI flags, environment variables, and TOML file.
// Priority: CLI flags > env vars > TOML file > defaults
func Load(args []string) (*Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("storefront", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.toml", "Path to the TOML config file")

	host := fs.String("host", "", "Listen address")
	port := fs.Int("port", 0, "Listen port")

	storage := fs.String("storage", "", "Storage type: memory, postgres, redis")
	storageURL := fs.String("storage-url", "", "PostgreSQL connection URL")
	redisAddr := fs.String("redis-addr", "", "Redis address")

	apiURL := fs.String("api-url", "", "Commerce API base URL")
	apiTimeout := fs.Duration("api-timeout", 0, "Commerce API request timeout")

	maxSessions := fs.Int("max-sessions", 0, "Maximum live sessions kept in memory")
	idleTimeout := fs.Duration("session-idle-timeout", 0, "End sessions idle for longer than this")

	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.loadTOML(*configPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config %s: %w", *configPath, err)
	}

	cfg.applyEnv()

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *storage != "" {
		cfg.Storage.Type = *storage
	}
	if *storageURL != "" {
		cfg.Storage.URL = *storageURL
	}
	if *redisAddr != "" {
		cfg.Storage.RedisAddr = *redisAddr
	}
	if *apiURL != "" {
		cfg.API.BaseURL = *apiURL
	}
	if *apiTimeout != 0 {
		cfg.API.Timeout = Duration(*apiTimeout)
	}
	if *maxSessions != 0 {
		cfg.Session.MaxSessions = *maxSessions
	}
	if *idleTimeout != 0 {
		cfg.Session.IdleTimeout = Duration(*idleTimeout)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	return cfg, cfg.Validate()
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// applyEnv applies STOREFRONT_* environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("STOREFRONT_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("STOREFRONT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("STOREFRONT_STORAGE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("STOREFRONT_STORAGE_URL"); v != "" {
		c.Storage.URL = v
	}
	if v := os.Getenv("STOREFRONT_REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv("STOREFRONT_REDIS_PASSWORD"); v != "" {
		c.Storage.RedisPassword = v
	}
	if v := os.Getenv("STOREFRONT_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("STOREFRONT_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.API.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("STOREFRONT_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Session.MaxSessions = n
		}
	}
	if v := os.Getenv("STOREFRONT_SESSION_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.IdleTimeout = Duration(d)
		}
	}
	if v := os.Getenv("STOREFRONT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "memory", "redis":
	case "postgres":
		if c.Storage.URL == "" {
			return fmt.Errorf("storage type postgres requires a url")
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base_url is required")
	}
	if c.Session.MaxSessions < 1 {
		return fmt.Errorf("session max_sessions must be at least 1")
	}
	if c.Session.IdleTimeout < 0 {
		return fmt.Errorf("session idle_timeout must not be negative")
	}
	if c.Session.IdleTimeout > 0 && c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session sweep_interval must be positive when idle_timeout is set")
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// NewLogger builds the process logger from the logging settings.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(c.Logging.Level); err == nil {
		log.Level = lvl
	}
	if strings.EqualFold(c.Logging.Format, "text") {
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	} else {
		log.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "severity",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
	}
	log.Out = os.Stdout
	return log
}
