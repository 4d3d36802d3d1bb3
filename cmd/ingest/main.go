// Command ingest loads a bar CSV into the ClickHouse table the exporter
// reads back from, so local files and server-side history share one schema.
// The table is a ReplacingMergeTree keyed on (symbol, interval, open_time_ms),
// which makes re-running an ingest idempotent after a merge.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"momentum-backtest/services/config"
	"momentum-backtest/services/data"
	"momentum-backtest/services/engine"
)

const insertChunk = 50000

func ensureSchema(ctx context.Context, conn driver.Conn, database, table string) error {
	ddl := []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.%s (
    symbol       LowCardinality(String),
    interval     LowCardinality(String),
    open_time_ms Int64,
    open         Float64,
    high         Float64,
    low          Float64,
    close        Float64,
    volume       Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, interval, open_time_ms)`, database, table),
	}
	for _, q := range ddl {
		if err := conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func insertBars(ctx context.Context, conn driver.Conn, database, table, symbol, interval string, bars []engine.Bar) (int, error) {
	inserted := 0
	for start := 0; start < len(bars); start += insertChunk {
		end := start + insertChunk
		if end > len(bars) {
			end = len(bars)
		}
		batch, err := conn.PrepareBatch(ctx,
			fmt.Sprintf("INSERT INTO %s.%s (symbol, interval, open_time_ms, open, high, low, close, volume)", database, table))
		if err != nil {
			return inserted, fmt.Errorf("prepare batch: %w", err)
		}
		for _, b := range bars[start:end] {
			if err := batch.Append(symbol, interval, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
				return inserted, fmt.Errorf("append row ts=%d: %w", b.Timestamp, err)
			}
		}
		if err := batch.Send(); err != nil {
			return inserted, fmt.Errorf("send batch: %w", err)
		}
		inserted += end - start
	}
	return inserted, nil
}

func main() {
	_ = godotenv.Load()

	csvPath := flag.String("csv", "", "Input bar CSV (timestamp,open,high,low,close,volume)")
	symbol := flag.String("symbol", "", "Symbol the bars belong to")
	interval := flag.String("interval", "", "Bar interval label, defaults to the configured one")
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Config YAML path")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *csvPath == "" || *symbol == "" {
		log.Fatal("-csv and -symbol are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	if *interval == "" {
		*interval = cfg.Data.Interval
	}

	bars, quality, err := data.Load(*csvPath, log)
	if err != nil {
		log.Fatal("load bars", zap.Error(err))
	}
	quality.Log(log)
	if len(bars) == 0 {
		log.Fatal("no bars parsed from input")
	}

	ctx := context.Background()
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.ClickHouse.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		log.Fatal("clickhouse open", zap.Error(err))
	}
	defer conn.Close()
	if err := conn.Ping(ctx); err != nil {
		log.Fatal("clickhouse ping", zap.Error(err))
	}

	if err := ensureSchema(ctx, conn, cfg.ClickHouse.Database, cfg.ClickHouse.Table); err != nil {
		log.Fatal("ensure schema", zap.Error(err))
	}

	inserted, err := insertBars(ctx, conn, cfg.ClickHouse.Database, cfg.ClickHouse.Table, *symbol, *interval, bars)
	if err != nil {
		log.Fatal("insert bars", zap.Error(err), zap.Int("inserted", inserted))
	}

	log.Info("ingest complete",
		zap.String("symbol", *symbol),
		zap.String("interval", *interval),
		zap.Int("bars", inserted),
		zap.Int64("first_ms", bars[0].Timestamp),
		zap.Int64("last_ms", bars[len(bars)-1].Timestamp))
}
