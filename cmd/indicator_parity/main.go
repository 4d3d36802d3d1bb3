// Command indicator_parity recomputes the oscillator and ATR series over a
// CSV of bars and compares them against ta-lib references and an optional
// external reference CSV. It reports differences, it does not assert them:
// the engine's Wilder seeding intentionally differs from ta-lib's SMA seed,
// so early-series divergence is expected.
package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"momentum-backtest/services/data"
	"momentum-backtest/services/engine"
)

type parityRow struct {
	TimestampMs int64
	Close       float64
	Oscillator  float64
	RMI         float64
	ATR         float64
	TalibRSI    float64
	TalibATR    float64
	RefOsc      *float64
	RefATR      *float64
	DiffOsc     *float64
	DiffATR     *float64
	MatchOsc    *bool
	MatchATR    *bool
}

type parityConfig struct {
	CSVPath      string
	Length       int
	ReferenceCSV string
	OutputCSV    string
	Tolerance    float64
}

func mustParseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// loadReferenceCSV reads an external indicator dump keyed by timestamp.
// Column discovery is case-insensitive: a time column plus any column whose
// name contains "osc" or "atr".
func loadReferenceCSV(path string) (map[int64]struct{ Osc, ATR *float64 }, error) {
	ref := make(map[int64]struct{ Osc, ATR *float64 })
	if path == "" {
		return ref, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	idxTime, idxOsc, idxATR := -1, -1, -1
	for i, h := range header {
		hl := strings.ToLower(strings.TrimSpace(h))
		switch {
		case hl == "timestamp" || hl == "time" || hl == "open_time_ms":
			idxTime = i
		case strings.Contains(hl, "osc"):
			idxOsc = i
		case strings.Contains(hl, "atr"):
			idxATR = i
		}
	}
	if idxTime < 0 || (idxOsc < 0 && idxATR < 0) {
		return nil, fmt.Errorf("reference csv %s: need a time column and an osc or atr column", path)
	}
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(rec[idxTime]), 10, 64)
		if err != nil {
			continue
		}
		var oscPtr, atrPtr *float64
		if idxOsc >= 0 && idxOsc < len(rec) {
			v := mustParseFloat(strings.TrimSpace(rec[idxOsc]))
			oscPtr = &v
		}
		if idxATR >= 0 && idxATR < len(rec) {
			v := mustParseFloat(strings.TrimSpace(rec[idxATR]))
			atrPtr = &v
		}
		ref[ts] = struct{ Osc, ATR *float64 }{Osc: oscPtr, ATR: atrPtr}
	}
	return ref, nil
}

func buildRows(bars []engine.Bar, cfg parityConfig, ref map[int64]struct{ Osc, ATR *float64 }) []parityRow {
	params := engine.DefaultParams()
	params.SetLength(cfg.Length)
	calc := engine.NewCalculator(&params)
	for i := range bars {
		calc.Update(bars, i)
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}
	refRSI := talib.Rsi(closes, cfg.Length)
	refATR := talib.Atr(highs, lows, closes, 30)

	rows := make([]parityRow, len(bars))
	for i := range bars {
		st := calc.At(i)
		row := parityRow{
			TimestampMs: bars[i].Timestamp,
			Close:       bars[i].Close,
			Oscillator:  st.Oscillator,
			RMI:         st.RMI,
			ATR:         st.ATR,
			TalibRSI:    refRSI[i],
			TalibATR:    refATR[i],
		}
		if r, ok := ref[bars[i].Timestamp]; ok {
			if r.Osc != nil {
				d := math.Abs(row.Oscillator - *r.Osc)
				m := d <= cfg.Tolerance
				row.RefOsc, row.DiffOsc, row.MatchOsc = r.Osc, &d, &m
			}
			if r.ATR != nil {
				d := math.Abs(row.ATR - *r.ATR)
				m := d <= cfg.Tolerance
				row.RefATR, row.DiffATR, row.MatchATR = r.ATR, &d, &m
			}
		}
		rows[i] = row
	}
	return rows
}

func writeCSV(path string, rows []parityRow) error {
	if path == "" {
		path = fmt.Sprintf("indicator_parity_%d.csv", time.Now().Unix())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"timestamp_ms", "close", "oscillator", "rmi", "atr",
		"talib_rsi", "talib_atr",
		"ref_osc", "ref_atr", "diff_osc", "diff_atr", "match_osc", "match_atr",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	optF := func(p *float64) string {
		if p == nil {
			return ""
		}
		return fmt.Sprintf("%.10f", *p)
	}
	optB := func(p *bool) string {
		if p == nil {
			return ""
		}
		return fmt.Sprintf("%t", *p)
	}
	for _, r := range rows {
		rec := []string{
			fmt.Sprintf("%d", r.TimestampMs),
			fmt.Sprintf("%.8f", r.Close),
			fmt.Sprintf("%.10f", r.Oscillator),
			fmt.Sprintf("%.10f", r.RMI),
			fmt.Sprintf("%.10f", r.ATR),
			fmt.Sprintf("%.10f", r.TalibRSI),
			fmt.Sprintf("%.10f", r.TalibATR),
			optF(r.RefOsc), optF(r.RefATR), optF(r.DiffOsc), optF(r.DiffATR),
			optB(r.MatchOsc), optB(r.MatchATR),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	var cfg parityConfig
	flag.StringVar(&cfg.CSVPath, "csv", "", "Input bar CSV (timestamp,open,high,low,close,volume)")
	flag.IntVar(&cfg.Length, "length", 14, "Smoothing length for the oscillator and the RSI reference")
	flag.StringVar(&cfg.ReferenceCSV, "reference-csv", "", "Optional reference CSV with time, osc, atr columns")
	flag.StringVar(&cfg.OutputCSV, "output", "", "Output CSV path")
	flag.Float64Var(&cfg.Tolerance, "tolerance", 1e-8, "Match tolerance against the reference CSV")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.CSVPath == "" {
		log.Fatal("csv is required")
	}

	bars, quality, err := data.Load(cfg.CSVPath, log)
	if err != nil {
		log.Fatal("load bars", zap.Error(err))
	}
	quality.Log(log)
	if len(bars) == 0 {
		log.Fatal("no bars in input")
	}

	ref, err := loadReferenceCSV(cfg.ReferenceCSV)
	if err != nil {
		log.Warn("reference csv skipped", zap.Error(err))
		ref = map[int64]struct{ Osc, ATR *float64 }{}
	}

	rows := buildRows(bars, cfg, ref)
	if err := writeCSV(cfg.OutputCSV, rows); err != nil {
		log.Fatal("write parity csv", zap.Error(err))
	}
	log.Info("parity csv written",
		zap.String("path", cfg.OutputCSV),
		zap.Int("rows", len(rows)),
		zap.Int("compared", len(ref)))
}
