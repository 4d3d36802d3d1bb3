package data

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportOptions describes a ClickHouse HTTP CSV export of one symbol's bars.
type ExportOptions struct {
	URL      string // ClickHouse HTTP endpoint, e.g. http://localhost:8123
	Database string
	Table    string
	User     string
	Password string
	Symbol   string
	Interval string
	From     string // UTC, "2006-01-02 15:04:05"
	To       string
}

// Export downloads bars matching the options into a local CSV at outPath with
// the header the loader expects, and returns the path. The query mirrors the
// ingest schema: one row per bar, strings for prices so the export is
// lossless.
func Export(ctx context.Context, opts ExportOptions, outPath string) (string, error) {
	q := fmt.Sprintf(`
SELECT
    open_time_ms,
    toString(open),
    toString(high),
    toString(low),
    toString(close),
    toString(volume)
FROM %s.%s
WHERE symbol = '%s'
  AND interval = '%s'
  AND open_time_ms >= toUnixTimestamp64Milli(toDateTime64('%s',3,'UTC'))
  AND open_time_ms <  toUnixTimestamp64Milli(toDateTime64('%s',3,'UTC'))
ORDER BY open_time_ms
FORMAT CSV
`, opts.Database, opts.Table, opts.Symbol, opts.Interval, opts.From, opts.To)

	endpoint := fmt.Sprintf("%s/?%s", strings.TrimRight(opts.URL, "/"), url.Values{
		"query":    {q},
		"user":     {opts.User},
		"password": {opts.Password},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: 180 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("clickhouse export: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("clickhouse export: status %d: %s", resp.StatusCode, string(body))
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	if _, err := w.WriteString("timestamp,open,high,low,close,volume\n"); err != nil {
		return "", err
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("write %s: %w", outPath, err)
	}
	return outPath, w.Flush()
}
