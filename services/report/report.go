// Package report renders replay results: a trades CSV with an appended
// summary block, and a console summary.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"momentum-backtest/services/engine"
)

// WriteTrades exports closed trades plus a summary block to a CSV file.
func WriteTrades(path string, trades []*engine.Trade, stats engine.Statistics) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"entry_time_utc", "entry_bar", "direction", "entry_price",
		"stop_loss", "take_profit", "exit_time_utc", "exit_bar", "exit_price",
		"exit_reason", "profit_ticks", "profit_usd", "risk_usd", "segment", "v_reversal",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, t := range trades {
		rec := []string{
			formatTime(t.EntryTime),
			fmt.Sprintf("%d", t.EntryBar),
			t.Direction.String(),
			money(t.EntryPrice),
			money(t.StopLoss),
			money(t.TakeProfit),
			formatTime(t.ExitTime),
			fmt.Sprintf("%d", t.ExitBar),
			money(t.ExitPrice),
			t.ExitReason,
			decimal.NewFromFloat(t.ProfitTicks).Round(2).String(),
			money(t.Profit),
			money(t.Risk),
			fmt.Sprintf("%d", t.SegmentID),
			fmt.Sprintf("%t", t.VReversal),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}

	w.Write([]string{""})
	w.Write([]string{"# Summary"})
	w.Write([]string{"total_trades", fmt.Sprintf("%d", stats.TotalTrades)})
	w.Write([]string{"winners", fmt.Sprintf("%d", stats.Winners)})
	w.Write([]string{"losers", fmt.Sprintf("%d", stats.Losers)})
	w.Write([]string{"win_rate_pct", money(stats.WinRate)})
	w.Write([]string{"profit_usd", money(stats.ProfitCurrency)})
	w.Write([]string{"profit_ticks", decimal.NewFromFloat(stats.ProfitTicks).Round(2).String()})
	w.Write([]string{"profit_factor", money(stats.ProfitFactor)})
	w.Write([]string{"max_drawdown_pct", money(stats.MaxDrawdownPct)})
	w.Write([]string{"max_drawdown_usd", money(stats.MaxDrawdownCurrency)})
	w.Write([]string{"sharpe_ratio", decimal.NewFromFloat(stats.SharpeRatio).Round(4).String()})
	w.Write([]string{"win_streak", fmt.Sprintf("%d", stats.WinStreak.Length)})
	w.Write([]string{"loss_streak", fmt.Sprintf("%d", stats.LossStreak.Length)})
	return nil
}

// PrintSummary writes the statistics snapshot to w in the classic console
// layout.
func PrintSummary(w io.Writer, stats engine.Statistics) {
	fmt.Fprintln(w, "\n=== TRADE SUMMARY ===")
	fmt.Fprintf(w, "Total Trades: %d (long %d / short %d)\n",
		stats.TotalTrades, stats.LongTrades, stats.ShortTrades)
	fmt.Fprintf(w, "Winners: %d\n", stats.Winners)
	fmt.Fprintf(w, "Losers: %d\n", stats.Losers)
	fmt.Fprintf(w, "Win Rate: %s%%\n", money(stats.WinRate))
	fmt.Fprintf(w, "Net Profit: $%s (%s ticks)\n",
		money(stats.ProfitCurrency), decimal.NewFromFloat(stats.ProfitTicks).Round(2).String())
	fmt.Fprintf(w, "Profit Factor: %s\n", money(stats.ProfitFactor))
	fmt.Fprintf(w, "Max Drawdown: %s%% ($%s)\n",
		money(stats.MaxDrawdownPct), money(stats.MaxDrawdownCurrency))
	fmt.Fprintf(w, "Sharpe Ratio: %s\n", decimal.NewFromFloat(stats.SharpeRatio).Round(4).String())
	fmt.Fprintf(w, "Longest Win Streak: %d ($%s over %s)\n",
		stats.WinStreak.Length, money(stats.WinStreak.Profit), streakSpan(stats.WinStreak))
	fmt.Fprintf(w, "Longest Loss Streak: %d ($%s over %s)\n",
		stats.LossStreak.Length, money(stats.LossStreak.Profit), streakSpan(stats.LossStreak))
	fmt.Fprintln(w, "=====================")
}

func money(v float64) string {
	return decimal.NewFromFloat(v).Round(2).String()
}

func formatTime(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func streakSpan(s engine.Streak) string {
	return (time.Duration(s.DurationMs()) * time.Millisecond).String()
}
