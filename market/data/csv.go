package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/forecaster/market"
	"github.com/rustyeddy/forecaster/pkg/logger"
)

// CSVDir reads one <SYMBOL>.csv per symbol from Dir. Files need a header
// row naming at least date and close; open, high, low and volume are
// optional.
type CSVDir struct {
	Dir string
	Log *logger.Logger
}

func NewCSVDir(dir string, l *logger.Logger) *CSVDir {
	return &CSVDir{Dir: dir, Log: l}
}

func (d *CSVDir) Load(ctx context.Context, symbols []string) (market.SeriesMap, error) {
	if len(symbols) == 0 {
		var err error
		symbols, err = d.symbols()
		if err != nil {
			return nil, err
		}
	}

	out := make(market.SeriesMap, len(symbols))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(d.Dir, sym+".csv")
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		s, err := ReadCSV(sym, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		out[sym] = s
	}
	d.Log.Debug("csv series loaded", logger.String("dir", d.Dir), logger.Int("symbols", len(out)))
	return out, nil
}

func (d *CSVDir) symbols() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(d.Dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), filepath.Ext(m)))
	}
	sort.Strings(out)
	return out, nil
}

// ReadCSV parses one symbol's bars, sorts them by date and validates order.
func ReadCSV(symbol string, r io.Reader) (market.Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return market.Series{}, fmt.Errorf("%w: %s: read header: %v", market.ErrData, symbol, err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	dateIdx, ok := col["date"]
	if !ok {
		return market.Series{}, fmt.Errorf("%w: %s: no date column", market.ErrData, symbol)
	}
	if _, ok := col["close"]; !ok {
		return market.Series{}, fmt.Errorf("%w: %s: no close column", market.ErrData, symbol)
	}

	s := market.Series{Symbol: symbol}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return market.Series{}, fmt.Errorf("%w: %s line %d: %v", market.ErrData, symbol, line, err)
		}
		date, err := parseDate(field(rec, dateIdx))
		if err != nil {
			return market.Series{}, fmt.Errorf("%w: %s line %d: %v", market.ErrData, symbol, line, err)
		}
		c := market.Candle{Date: date}
		c.Close = number(rec, col, "close")
		c.Open = number(rec, col, "open")
		c.High = number(rec, col, "high")
		c.Low = number(rec, col, "low")
		c.Volume = number(rec, col, "volume")
		s.Candles = append(s.Candles, c)
	}

	sort.SliceStable(s.Candles, func(i, j int) bool { return s.Candles[i].Date.Before(s.Candles[j].Date) })
	if err := s.Validate(); err != nil {
		return market.Series{}, err
	}
	return s, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func number(rec []string, col map[string]int, name string) float64 {
	i, ok := col[name]
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(field(rec, i), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseDate(s string) (time.Time, error) {
	if len(s) >= 10 {
		if t, err := market.ParseDay(s[:10]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad date %q", s)
}

var csvHeader = []string{"date", "open", "high", "low", "close", "volume"}

// WriteCSV writes s in the layout ReadCSV expects.
func WriteCSV(w io.Writer, s market.Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range s.Candles {
		row := []string{
			c.Date.Format(market.DateLayout),
			strconv.FormatFloat(c.Open, 'f', 4, 64),
			strconv.FormatFloat(c.High, 'f', 4, 64),
			strconv.FormatFloat(c.Low, 'f', 4, 64),
			strconv.FormatFloat(c.Close, 'f', 4, 64),
			strconv.FormatFloat(c.Volume, 'f', 0, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDir writes one <SYMBOL>.csv per series into dir.
func WriteDir(dir string, series market.SeriesMap) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, sym := range series.Symbols() {
		path := filepath.Join(dir, sym+".csv")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := WriteCSV(f, series[sym]); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
