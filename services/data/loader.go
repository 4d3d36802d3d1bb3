// Package data loads OHLCV bar series from local CSV files or a ClickHouse
// HTTP CSV export and checks their quality before a replay.
package data

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"momentum-backtest/services/engine"
)

// Load reads bars from a CSV file with columns
// timestamp,open,high,low,close[,volume]. Rows that fail to parse are skipped.
// The series is sorted by timestamp and deduplicated (last row wins) before
// quality checks run; warnings are logged, never fatal.
func Load(path string, log *zap.Logger) ([]engine.Bar, Quality, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, Quality{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	bars, err := parse(decodeBOM(f), log)
	if err != nil {
		return nil, Quality{}, err
	}
	if len(bars) == 0 {
		return nil, Quality{}, fmt.Errorf("%s: no parsable rows", path)
	}

	sortDedupe(&bars)
	q := Inspect(bars)
	q.Log(log)
	return bars, q, nil
}

// decodeBOM sniffs the stream for a UTF-16 byte order mark and wraps the
// reader with the matching decoder. A UTF-8 BOM is stripped per-field during
// parsing instead.
func decodeBOM(f *os.File) io.Reader {
	br := bufio.NewReader(f)
	head, _ := br.Peek(2)
	if len(head) >= 2 && ((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF)) {
		endian := unicode.LittleEndian
		if head[0] == 0xFE {
			endian = unicode.BigEndian
		}
		return transform.NewReader(br, unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder())
	}
	return br
}

func parse(r io.Reader, log *zap.Logger) ([]engine.Bar, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	bars := make([]engine.Bar, 0, 1_000)
	line := 0
	skipped := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line++
			skipped++
			continue
		}
		line++
		if len(rec) < 5 {
			skipped++
			continue
		}
		tsStr := strings.TrimPrefix(strings.TrimSpace(rec[0]), "\ufeff")
		if line == 1 && !isNumeric(tsStr) {
			continue // header
		}
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			skipped++
			continue
		}
		open, err1 := parseField(rec[1])
		high, err2 := parseField(rec[2])
		low, err3 := parseField(rec[3])
		closep, err4 := parseField(rec[4])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			skipped++
			continue
		}
		var volume float64
		if len(rec) >= 6 {
			volume, _ = parseField(rec[5])
		}
		bars = append(bars, engine.Bar{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closep,
			Volume:    volume,
		})
	}
	if skipped > 0 {
		log.Warn("skipped unparsable csv rows", zap.Int("rows", skipped))
	}
	return bars, nil
}

func parseField(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func isNumeric(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// sortDedupe orders bars by timestamp and collapses duplicates, keeping the
// last occurrence.
func sortDedupe(bars *[]engine.Bar) {
	b := *bars
	if len(b) < 2 {
		return
	}
	sort.SliceStable(b, func(i, j int) bool { return b[i].Timestamp < b[j].Timestamp })
	uniq := b[:0]
	var lastTs int64 = -1
	for _, bar := range b {
		if bar.Timestamp == lastTs {
			uniq[len(uniq)-1] = bar
			continue
		}
		uniq = append(uniq, bar)
		lastTs = bar.Timestamp
	}
	*bars = uniq
}
