package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port                    int    `env:"PORT" envDefault:"8080"`
	RedisURL                string `env:"REDIS_URL,required"`
	StoreBackend            string `env:"STORE_BACKEND" envDefault:"http"`
	GridStoreURL            string `env:"GRID_STORE_URL" envDefault:"http://localhost:8090"`
	DatabaseURL             string `env:"DATABASE_URL"`
	PresenceTTLSeconds      int    `env:"PRESENCE_TTL_SECONDS" envDefault:"60"`
	PresenceIntervalSeconds int    `env:"PRESENCE_INTERVAL_SECONDS" envDefault:"30"`
	PingIntervalSeconds     int    `env:"PING_INTERVAL_SECONDS" envDefault:"30"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) PresenceTTL() time.Duration {
	return time.Duration(c.PresenceTTLSeconds) * time.Second
}

func (c *Config) PresenceInterval() time.Duration {
	return time.Duration(c.PresenceIntervalSeconds) * time.Second
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "http":
		if c.GridStoreURL == "" {
			return fmt.Errorf("GRID_STORE_URL is required when STORE_BACKEND=http")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (expected http or postgres)", c.StoreBackend)
	}
	if c.PresenceTTLSeconds <= c.PresenceIntervalSeconds {
		return fmt.Errorf("PRESENCE_TTL_SECONDS must exceed PRESENCE_INTERVAL_SECONDS so a live instance never expires between heartbeats")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
