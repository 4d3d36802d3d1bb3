package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPPort != 8080 || cfg.ClickHouse.Database != "backtest" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
environment: prod
server:
  http_port: 9999
  max_workers: 8
clickhouse:
  addr: ch.internal:9000
  database: prod_backtest
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CH_USER", "svc")
	t.Setenv("HTTP_PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Environment != "prod" || cfg.Server.MaxWorkers != 8 {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.ClickHouse.Addr != "ch.internal:9000" || cfg.ClickHouse.Database != "prod_backtest" {
		t.Fatalf("yaml clickhouse not applied: %+v", cfg)
	}
	// Env wins over yaml.
	if cfg.Server.HTTPPort != 7070 {
		t.Fatalf("env override lost: %d", cfg.Server.HTTPPort)
	}
	if cfg.ClickHouse.User != "svc" {
		t.Fatalf("env override lost: %s", cfg.ClickHouse.User)
	}
	// Unset fields keep their defaults.
	if cfg.ClickHouse.Table != "data" {
		t.Fatalf("default lost: %s", cfg.ClickHouse.Table)
	}
}
