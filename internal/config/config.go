package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "~/.btcrates/config.yaml"

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	ExchangeAPI ExchangeAPIConfig `yaml:"exchange_api"`
	Cache       CacheConfig       `yaml:"cache"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type ExchangeAPIConfig struct {
	CoinGeckoURL   string        `yaml:"coingecko_url"`
	CoinDeskURL    string        `yaml:"coindesk_url"`
	Timeout        time.Duration `yaml:"timeout"`
	RefreshRate    time.Duration `yaml:"refresh_rate"`
	MaxRetries     int           `yaml:"max_retries"`
	SampleFallback bool          `yaml:"sample_fallback"`
}

type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	KeyPrefix       string        `yaml:"key_prefix"`
	IndexKey        string        `yaml:"index_key"`
}

// StorageConfig selects the store behind the persistent cache tier:
// "memory", "redis" or "postgres".
type StorageConfig struct {
	Backend  string         `yaml:"backend"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		ExchangeAPI: ExchangeAPIConfig{
			CoinGeckoURL:   "https://api.coingecko.com",
			CoinDeskURL:    "https://api.coindesk.com",
			Timeout:        10 * time.Second,
			RefreshRate:    5 * time.Minute,
			MaxRetries:     3,
			SampleFallback: true,
		},
		Cache: CacheConfig{
			TTL:             5 * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig reads the YAML file named by CONFIG_FILE, or DefaultConfigPath
// when it exists, and applies environment overrides on top.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_FILE")
	required := path != ""
	if !required {
		path = DefaultConfigPath
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %s: %w", path, err)
	}

	if !required {
		if _, err := os.Stat(expanded); errors.Is(err, os.ErrNotExist) {
			expanded = ""
		}
	}
	return LoadConfigFile(expanded)
}

// LoadConfigFile loads path (skipped when empty) over the defaults, then
// applies environment overrides.
func LoadConfigFile(path string) (*Config, error) {
	config := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnvOverrides(c *Config) {
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)

	c.ExchangeAPI.CoinGeckoURL = getEnvString("COINGECKO_URL", c.ExchangeAPI.CoinGeckoURL)
	c.ExchangeAPI.CoinDeskURL = getEnvString("COINDESK_URL", c.ExchangeAPI.CoinDeskURL)
	c.ExchangeAPI.Timeout = getEnvDuration("EXCHANGE_API_TIMEOUT", c.ExchangeAPI.Timeout)
	c.ExchangeAPI.RefreshRate = getEnvDuration("EXCHANGE_API_REFRESH_RATE", c.ExchangeAPI.RefreshRate)
	c.ExchangeAPI.MaxRetries = getEnvInt("EXCHANGE_API_MAX_RETRIES", c.ExchangeAPI.MaxRetries)
	c.ExchangeAPI.SampleFallback = getEnvBool("EXCHANGE_API_SAMPLE_FALLBACK", c.ExchangeAPI.SampleFallback)

	c.Cache.TTL = getEnvDuration("CACHE_TTL", c.Cache.TTL)
	c.Cache.CleanupInterval = getEnvDuration("CACHE_CLEANUP_INTERVAL", c.Cache.CleanupInterval)
	c.Cache.KeyPrefix = getEnvString("CACHE_KEY_PREFIX", c.Cache.KeyPrefix)
	c.Cache.IndexKey = getEnvString("CACHE_INDEX_KEY", c.Cache.IndexKey)

	c.Storage.Backend = strings.ToLower(getEnvString("STORAGE_BACKEND", c.Storage.Backend))
	c.Storage.Redis.Addr = getEnvString("REDIS_ADDR", c.Storage.Redis.Addr)
	c.Storage.Redis.Password = getEnvString("REDIS_PASSWORD", c.Storage.Redis.Password)
	c.Storage.Redis.DB = getEnvInt("REDIS_DB", c.Storage.Redis.DB)
	c.Storage.Postgres.DSN = getEnvString("POSTGRES_DSN", c.Storage.Postgres.DSN)

	c.Logging.Level = getEnvString("LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnvString("LOG_FILE", c.Logging.File)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.ExchangeAPI.RefreshRate <= 0 {
		return fmt.Errorf("exchange_api.refresh_rate must be positive")
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("cache.cleanup_interval must be positive")
	}

	switch c.Storage.Backend {
	case "memory":
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis backend")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		fmt.Printf("Warning: Invalid value for %s, using default: %d\n", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		fmt.Printf("Warning: Invalid value for %s, using default: %t\n", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		fmt.Printf("Warning: Invalid duration for %s, using default: %s\n", key, defaultValue)
		return defaultValue
	}

	return value
}
