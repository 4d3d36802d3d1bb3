// Package config loads process configuration from an optional YAML file with
// environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	HTTPPort   int `yaml:"http_port"`
	MaxWorkers int `yaml:"max_workers"`
}

type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`     // native protocol host:port
	HTTPURL  string `yaml:"http_url"` // HTTP interface for CSV export
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type DataConfig struct {
	Interval string `yaml:"interval"`
}

type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Data        DataConfig       `yaml:"data"`
}

func defaults() *Config {
	return &Config{
		Environment: "dev",
		Server: ServerConfig{
			HTTPPort:   8080,
			MaxWorkers: 4,
		},
		ClickHouse: ClickHouseConfig{
			Addr:     "localhost:9000",
			HTTPURL:  "http://localhost:8123",
			Database: "backtest",
			Table:    "data",
			User:     "backtest",
			Password: "backtest123",
		},
		Data: DataConfig{Interval: "5m"},
	}
}

// Load reads path if it is non-empty and exists, then applies environment
// overrides. A missing file is not an error; defaults carry.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Environment = env("APP_ENV", c.Environment)
	c.Server.HTTPPort = envInt("HTTP_PORT", c.Server.HTTPPort)
	c.Server.MaxWorkers = envInt("MAX_WORKERS", c.Server.MaxWorkers)
	c.ClickHouse.Addr = env("CH_ADDR", c.ClickHouse.Addr)
	c.ClickHouse.HTTPURL = env("CH_HTTP_URL", c.ClickHouse.HTTPURL)
	c.ClickHouse.Database = env("CH_DATABASE", c.ClickHouse.Database)
	c.ClickHouse.Table = env("CH_TABLE", c.ClickHouse.Table)
	c.ClickHouse.User = env("CH_USER", c.ClickHouse.User)
	c.ClickHouse.Password = env("CH_PASSWORD", c.ClickHouse.Password)
	c.Data.Interval = env("DATA_INTERVAL", c.Data.Interval)
}

func env(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
