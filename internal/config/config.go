package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	HTTPPort string `env:"HTTP_PORT" env-default:"8080"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	// Store Config
	StoreDriver   string        `env:"STORE_DRIVER" env-default:"postgres"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	MongoURI      string        `env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	MongoDatabase string        `env:"MONGO_DATABASE" env-default:"resqlink"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" env-default:"10s"`
	MigrationsDir string        `env:"MIGRATIONS_DIR" env-default:"migrations"`

	// Redis Config
	RedisEnabled bool          `env:"REDIS_ENABLED" env-default:"true"`
	RedisAddr    string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPass    string        `env:"REDIS_PASSWORD"`
	RedisDB      int           `env:"REDIS_DB" env-default:"0"`
	CacheTTL     time.Duration `env:"CACHE_TTL" env-default:"5m"`

	// Geocoder Config
	GeocoderURL       string        `env:"GEOCODER_URL"`
	GeocoderUserAgent string        `env:"GEOCODER_USER_AGENT" env-default:"resqlink-incident-service/1.0"`
	GeocoderTimeout   time.Duration `env:"GEOCODER_TIMEOUT" env-default:"3s"`
	GeocoderRPS       float64       `env:"GEOCODER_RPS" env-default:"1"`
	GeocoderCacheTTL  time.Duration `env:"GEOCODER_CACHE_TTL" env-default:"24h"`

	// HTTP Config
	APIKeys           []string      `env:"API_KEYS" env-separator:","`
	CORSOrigins       []string      `env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:5173,http://localhost:3000"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" env-default:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" env-default:"15m"`

	// Jobs Config
	StatsRefreshSpec string `env:"STATS_REFRESH_SPEC" env-default:"@every 1m"`
	LimiterPruneSpec string `env:"LIMITER_PRUNE_SPEC" env-default:"@every 10m"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("ошибка чтения переменных окружения: %w", err)
	}
	cfg.APIKeys = trimAll(cfg.APIKeys)
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет обязательные параметры выбранного хранилища
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required for the %s driver", DriverPostgres)
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI environment variable is required for the %s driver", DriverMongo)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q: expected postgres, mongo or memory", c.StoreDriver)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// trimAll убирает пробелы и пустые элементы из списка
func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
