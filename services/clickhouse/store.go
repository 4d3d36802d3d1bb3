// Package clickhouse persists completed replay results: one row per closed
// trade and one summary row per run, keyed by a run id.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"momentum-backtest/services/engine"
)

// Options configures the native-protocol connection and target tables.
type Options struct {
	Addr     string
	Database string
	User     string
	Password string
}

// Store writes replay results over the ClickHouse native protocol.
type Store struct {
	conn driver.Conn
	opts Options
	log  *zap.Logger
}

// Open connects and pings. The schema is created on first use.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.User,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	s := &Store{conn: conn, opts: opts, log: log}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) ensureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf(
		"CREATE DATABASE IF NOT EXISTS %s", s.opts.Database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	tradesDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.trades (
			run_id UUID,
			symbol String,
			entry_time_ms Int64,
			entry_bar Int32,
			direction LowCardinality(String),
			entry_price Decimal(18, 8),
			stop_loss Decimal(18, 8),
			take_profit Decimal(18, 8),
			exit_time_ms Int64,
			exit_bar Int32,
			exit_price Decimal(18, 8),
			exit_reason LowCardinality(String),
			profit_ticks Float64,
			profit_usd Decimal(18, 4),
			risk_usd Decimal(18, 4),
			segment_id Int32,
			v_reversal UInt8,
			inserted_at DateTime64(3)
		)
		ENGINE = MergeTree
		ORDER BY (run_id, entry_time_ms)
	`, s.opts.Database)
	if err := s.conn.Exec(ctx, tradesDDL); err != nil {
		return fmt.Errorf("create trades table: %w", err)
	}

	runsDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.runs (
			run_id UUID,
			symbol String,
			policy LowCardinality(String),
			bars Int32,
			skipped Int32,
			total_trades Int32,
			winners Int32,
			losers Int32,
			win_rate_pct Float64,
			profit_usd Decimal(18, 4),
			profit_ticks Float64,
			profit_factor Float64,
			max_drawdown_pct Float64,
			max_drawdown_usd Decimal(18, 4),
			sharpe_ratio Float64,
			win_streak Int32,
			loss_streak Int32,
			finished_at DateTime64(3)
		)
		ENGINE = ReplacingMergeTree(finished_at)
		ORDER BY run_id
	`, s.opts.Database)
	if err := s.conn.Exec(ctx, runsDDL); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

// SaveRun inserts all closed trades of the run in one batch, then the summary
// row. Open trades are not persisted.
func (s *Store) SaveRun(ctx context.Context, runID uuid.UUID, symbol string, params engine.Params, res engine.Result) error {
	now := time.Now().UTC()

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.trades", s.opts.Database))
	if err != nil {
		return fmt.Errorf("prepare trades batch: %w", err)
	}
	for _, t := range res.Trades {
		if err := batch.Append(
			runID,
			symbol,
			t.EntryTime,
			int32(t.EntryBar),
			t.Direction.String(),
			decimal.NewFromFloat(t.EntryPrice),
			decimal.NewFromFloat(t.StopLoss),
			decimal.NewFromFloat(t.TakeProfit),
			t.ExitTime,
			int32(t.ExitBar),
			decimal.NewFromFloat(t.ExitPrice),
			t.ExitReason,
			t.ProfitTicks,
			decimal.NewFromFloat(t.Profit),
			decimal.NewFromFloat(t.Risk),
			int32(t.SegmentID),
			boolToUInt8(t.VReversal),
			now,
		); err != nil {
			return fmt.Errorf("trades batch append: %w", err)
		}
	}
	if len(res.Trades) > 0 {
		if err := batch.Send(); err != nil {
			return fmt.Errorf("trades batch send: %w", err)
		}
	}

	summary, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.runs", s.opts.Database))
	if err != nil {
		return fmt.Errorf("prepare runs batch: %w", err)
	}
	st := res.Stats
	if err := summary.Append(
		runID,
		symbol,
		params.Policy.String(),
		int32(res.Bars),
		int32(res.Skipped),
		int32(st.TotalTrades),
		int32(st.Winners),
		int32(st.Losers),
		st.WinRate,
		decimal.NewFromFloat(st.ProfitCurrency),
		st.ProfitTicks,
		st.ProfitFactor,
		st.MaxDrawdownPct,
		decimal.NewFromFloat(st.MaxDrawdownCurrency),
		st.SharpeRatio,
		int32(st.WinStreak.Length),
		int32(st.LossStreak.Length),
		now,
	); err != nil {
		return fmt.Errorf("runs batch append: %w", err)
	}
	if err := summary.Send(); err != nil {
		return fmt.Errorf("runs batch send: %w", err)
	}

	s.log.Info("run persisted",
		zap.String("run_id", runID.String()),
		zap.String("symbol", symbol),
		zap.Int("trades", len(res.Trades)))
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
