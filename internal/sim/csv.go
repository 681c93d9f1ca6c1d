package sim

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"alpha_protect/internal/models"
)

// LoadBarsCSV reads daily bars from a CSV file with a header row of at
// least date,open,high,low,close and optionally volume, in any column
// order. Rows come back sorted by time.
func LoadBarsCSV(path string) ([]models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s: no data rows", path)
	}

	col := map[string]int{}
	for i, name := range records[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, required)
		}
	}

	var bars []models.Bar
	for line, rec := range records[1:] {
		t, err := parseDate(rec[col["date"]])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, line+2, err)
		}
		bar := models.Bar{Time: t}
		if bar.Open, err = parseFloat(rec[col["open"]]); err != nil {
			return nil, fmt.Errorf("%s row %d open: %w", path, line+2, err)
		}
		if bar.High, err = parseFloat(rec[col["high"]]); err != nil {
			return nil, fmt.Errorf("%s row %d high: %w", path, line+2, err)
		}
		if bar.Low, err = parseFloat(rec[col["low"]]); err != nil {
			return nil, fmt.Errorf("%s row %d low: %w", path, line+2, err)
		}
		if bar.Close, err = parseFloat(rec[col["close"]]); err != nil {
			return nil, fmt.Errorf("%s row %d close: %w", path, line+2, err)
		}
		if vi, ok := col["volume"]; ok && vi < len(rec) {
			if v, err := parseFloat(rec[vi]); err == nil {
				bar.Volume = int64(v)
			}
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
