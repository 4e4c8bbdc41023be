package market

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// LoadCSV reads a series from a CSV file with a header row of
// time,open,high,low,close,volume. Timestamps are RFC3339.
func LoadCSV(path string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"time", "open", "high", "low", "close", "volume"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("csv missing column %q", required)
		}
	}

	var series Series
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		ts, err := time.Parse(time.RFC3339, record[col["time"]])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: bad timestamp: %w", line, err)
		}

		bar := Bar{Time: ts}
		for name, dst := range map[string]*float64{
			"open":   &bar.Open,
			"high":   &bar.High,
			"low":    &bar.Low,
			"close":  &bar.Close,
			"volume": &bar.Volume,
		} {
			v, err := strconv.ParseFloat(record[col[name]], 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d: bad %s: %w", line, name, err)
			}
			*dst = v
		}
		series = append(series, bar)
	}

	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("csv %s: %w", path, err)
	}
	return series, nil
}

// LoadJSONL reads a series from a file with one JSON-encoded bar per line
func LoadJSONL(path string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open jsonl: %w", err)
	}
	defer f.Close()

	var series Series
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var bar Bar
		if err := json.Unmarshal(raw, &bar); err != nil {
			return nil, fmt.Errorf("jsonl line %d: %w", line, err)
		}
		series = append(series, bar)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl: %w", err)
	}

	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("jsonl %s: %w", path, err)
	}
	return series, nil
}

// WriteJSONL writes a series with one JSON-encoded bar per line
func WriteJSONL(path string, series Series) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create jsonl: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i, bar := range series {
		if err := enc.Encode(bar); err != nil {
			return fmt.Errorf("encode bar %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush jsonl: %w", err)
	}
	return nil
}
