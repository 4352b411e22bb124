package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type ServerConfig struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	AdminAPIKey string `env:"ADMIN_API_KEY"`

	CatalogPath     string `env:"CATALOG_PATH"`
	CatalogReloadMS int    `env:"CATALOG_RELOAD_MS" envDefault:"2000"`

	TimerResolutionMS  int `env:"TIMER_RESOLUTION_MS" envDefault:"50"`
	TimerIdleTimeoutMS int `env:"TIMER_IDLE_TIMEOUT_MS" envDefault:"30000"`

	InitialBalance int64 `env:"INITIAL_BALANCE" envDefault:"10000"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}

func (c ServerConfig) CatalogReload() time.Duration {
	return time.Duration(c.CatalogReloadMS) * time.Millisecond
}

func (c ServerConfig) TimerResolution() time.Duration {
	return time.Duration(c.TimerResolutionMS) * time.Millisecond
}

func (c ServerConfig) TimerIdleTimeout() time.Duration {
	return time.Duration(c.TimerIdleTimeoutMS) * time.Millisecond
}

// TestConfig is read by integration tests that need Postgres.
type TestConfig struct {
	TestPostgresDSN string `env:"TEST_POSTGRES_DSN,required,notEmpty"`
}

func LoadTest() (TestConfig, error) {
	var cfg TestConfig
	err := env.Parse(&cfg)
	return cfg, err
}
