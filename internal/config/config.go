package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/tradingiq/binance-collector/websocket"
)

var ErrParsingConfig = errors.New("failed to parse configuration")

// Config is the process configuration, read from the environment after an
// optional .env file. Delays and the refresh interval are whole seconds.
type Config struct {
	URLWS  string `env:"URL_WS" envDefault:"wss://ws-api.binance.com:443/ws-api/v3"`
	URLAPI string `env:"URL_API" envDefault:"https://api.binance.com/api/v3"`

	ReconnectCount       int `env:"RECONNECT_COUNT" envDefault:"0"`
	ReconnectDelay       int `env:"RECONNECT_DELAY" envDefault:"5"`
	MaxReconnectAttempts int `env:"RECONNECT_MAX_ATTEMPTS" envDefault:"5"`
	Interval             int `env:"INTERVAL" envDefault:"5"`

	DialTimeout    time.Duration `env:"DIAL_TIMEOUT" envDefault:"10s"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
	MaxSessionRuns int           `env:"MAX_SESSION_RUNS" envDefault:"0"`
	Diagnostic     bool          `env:"DIAGNOSTIC" envDefault:"true"`

	ConfigFolder string `env:"CONFIG_FOLDER" envDefault:"configuration"`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// Load reads the given .env files (".env" when none are given) and parses
// the environment into a Config. Missing .env files are ignored; variables
// already set in the environment win over file values.
func Load(paths ...string) (Config, error) {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// Session converts the configuration into the settings of one session run.
func (c Config) Session() websocket.SessionConfig {
	return websocket.SessionConfig{
		URL:                  c.URLWS,
		ReconnectCount:       c.ReconnectCount,
		ReconnectDelay:       time.Duration(c.ReconnectDelay) * time.Second,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		RefreshInterval:      time.Duration(c.Interval) * time.Second,
		Diagnostic:           c.Diagnostic,
		DialTimeout:          c.DialTimeout,
		WriteTimeout:         c.WriteTimeout,
	}
}
