// Command resample_csv aggregates a bar CSV into a coarser cadence so one
// export can feed replays at several intervals. Buckets are aligned to the
// epoch in UTC; open is the first bar, close the last, volume the sum.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"momentum-backtest/services/data"
	"momentum-backtest/services/engine"
)

func parseMinutes(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "in")
	s = strings.TrimSuffix(s, "m")
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unsupported cadence %q, want minutes like 5m or 15m", s)
	}
	return int64(n), nil
}

func resample(bars []engine.Bar, bucketMs int64) []engine.Bar {
	out := make([]engine.Bar, 0, len(bars))
	byBucket := make(map[int64]int)
	for _, b := range bars {
		bucket := (b.Timestamp / bucketMs) * bucketMs
		idx, ok := byBucket[bucket]
		if !ok {
			byBucket[bucket] = len(out)
			nb := b
			nb.Timestamp = bucket
			out = append(out, nb)
			continue
		}
		agg := &out[idx]
		if b.High > agg.High {
			agg.High = b.High
		}
		if b.Low < agg.Low {
			agg.Low = b.Low
		}
		agg.Close = b.Close
		agg.Volume += b.Volume
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func main() {
	in := flag.String("in", "", "Input CSV (timestamp,open,high,low,close,volume)")
	out := flag.String("out", "", "Output CSV path")
	src := flag.String("src", "5m", "Source cadence")
	dst := flag.String("dst", "15m", "Target cadence")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *in == "" || *out == "" {
		log.Fatal("-in and -out are required")
	}
	srcMin, err := parseMinutes(*src)
	if err != nil {
		log.Fatal("bad src cadence", zap.Error(err))
	}
	dstMin, err := parseMinutes(*dst)
	if err != nil {
		log.Fatal("bad dst cadence", zap.Error(err))
	}
	if dstMin%srcMin != 0 {
		log.Fatal("dst must be a multiple of src",
			zap.Int64("src_min", srcMin), zap.Int64("dst_min", dstMin))
	}

	bars, quality, err := data.Load(*in, log)
	if err != nil {
		log.Fatal("load bars", zap.Error(err))
	}
	quality.Log(log)
	if len(bars) == 0 {
		log.Fatal("no input bars parsed")
	}

	resampled := resample(bars, dstMin*60*1000)

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal("create output", zap.Error(err))
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "timestamp,open,high,low,close,volume")
	for _, b := range resampled {
		fmt.Fprintf(w, "%d,%.8f,%.8f,%.8f,%.8f,%.8f\n",
			b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	if err := w.Flush(); err != nil {
		log.Fatal("flush output", zap.Error(err))
	}

	log.Info("resampled",
		zap.Int("in_bars", len(bars)),
		zap.Int("out_bars", len(resampled)),
		zap.String("dst", *dst),
		zap.String("path", *out))
}
