// Command run_signal replays a bar series through the signal engine and
// reports the resulting trades and statistics. Input comes from a local CSV
// or a ClickHouse HTTP export.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"momentum-backtest/services/clickhouse"
	"momentum-backtest/services/config"
	"momentum-backtest/services/data"
	"momentum-backtest/services/engine"
	"momentum-backtest/services/report"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to YAML config")
	csvPath := flag.String("csv", "", "Path to local OHLCV CSV; if set, skip ClickHouse export")
	symbol := flag.String("symbol", "BTCUSDT", "Trading symbol")
	from := flag.String("from", "2023-01-01 00:00:00", "Start UTC (YYYY-MM-DD HH:MM:SS)")
	to := flag.String("to", "2024-01-01 00:00:00", "End UTC (YYYY-MM-DD HH:MM:SS)")
	outCSV := flag.String("out", "", "Write trades CSV to this path")
	persist := flag.Bool("persist", false, "Persist trades and summary to ClickHouse")

	length := flag.Int("length", 14, "Oscillator smoothing length")
	upper := flag.Float64("upper", 70, "Bullish regime threshold")
	lower := flag.Float64("lower", 30, "Bearish regime threshold")
	wait := flag.Int("wait-bars", 2, "Confirmation bars before entry")
	policy := flag.String("policy", "signal", "Exit policy: signal|riskreward|vreversal")
	reward := flag.Float64("reward-ratio", 2.0, "Take-profit distance as multiple of risk")
	atrMult := flag.Float64("atr-mult", 2.0, "Stop-loss distance in ATRs")
	maxHold := flag.Int("max-hold", 0, "Forced exit after this many bars (0 disables)")
	capital := flag.Float64("capital", 10000, "Initial capital")
	maxRisk := flag.Float64("max-risk", 1000, "Maximum currency risk per trade")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	path := *csvPath
	if path == "" {
		path, err = data.Export(ctx, data.ExportOptions{
			URL:      cfg.ClickHouse.HTTPURL,
			Database: cfg.ClickHouse.Database,
			Table:    cfg.ClickHouse.Table,
			User:     cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
			Symbol:   *symbol,
			Interval: cfg.Data.Interval,
			From:     *from,
			To:       *to,
		}, fmt.Sprintf("./%s_%s.csv", strings.ToLower(*symbol), cfg.Data.Interval))
		if err != nil {
			log.Fatal("export bars", zap.Error(err))
		}
	}

	bars, quality, err := data.Load(path, log)
	if err != nil {
		log.Fatal("load bars", zap.Error(err))
	}
	log.Info("bars loaded",
		zap.Int("bars", quality.Bars),
		zap.Int64("cadence_ms", quality.CadenceMs),
		zap.Int("gaps", quality.Gaps))

	params, err := buildParams(*policy, *length, *upper, *lower, *wait,
		*reward, *atrMult, *maxHold, *capital, *maxRisk)
	if err != nil {
		log.Fatal("parameters", zap.Error(err))
	}

	eng := engine.New(params, log)
	res := eng.Replay(bars)
	if res.Skipped > 0 {
		log.Warn("bars skipped during replay", zap.Int("skipped", res.Skipped))
	}

	report.PrintSummary(os.Stdout, res.Stats)
	if res.Open != nil {
		fmt.Printf("Open position at end of series: %s from bar %d @ %.4f\n",
			res.Open.Direction, res.Open.EntryBar, res.Open.EntryPrice)
	}

	if *outCSV != "" {
		if err := report.WriteTrades(*outCSV, res.Trades, res.Stats); err != nil {
			log.Fatal("write trades csv", zap.Error(err))
		}
		fmt.Printf("Trades CSV written: %s\n", *outCSV)
	}

	if *persist {
		store, err := clickhouse.Open(ctx, clickhouse.Options{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			User:     cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
		}, log)
		if err != nil {
			log.Fatal("clickhouse", zap.Error(err))
		}
		defer store.Close()

		runID := uuid.New()
		if err := store.SaveRun(ctx, runID, *symbol, eng.Params(), res); err != nil {
			log.Fatal("persist run", zap.Error(err))
		}
		fmt.Printf("Run persisted: %s\n", runID)
	}
}

func buildParams(policy string, length int, upper, lower float64, wait int,
	reward, atrMult float64, maxHold int, capital, maxRisk float64) (engine.Params, error) {

	p := engine.DefaultParams()
	p.SetLength(length)
	p.SetThresholds(upper, lower)
	p.SetWaitBars(wait)
	p.SetRewardRatio(reward)
	p.SetATRMultiplier(atrMult)
	p.SetMaxHoldBars(maxHold)
	p.SetInitialCapital(capital)
	p.SetMaxRiskPerTrade(maxRisk)

	switch strings.ToLower(policy) {
	case "signal":
		p.SetPolicy(engine.PolicySignal)
	case "riskreward":
		p.SetPolicy(engine.PolicyRiskReward)
	case "vreversal":
		p.SetPolicy(engine.PolicyVReversal)
	default:
		return p, fmt.Errorf("unknown policy %q", policy)
	}
	return p, nil
}
