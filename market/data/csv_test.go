package data

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/forecaster/market"
)

func TestReadCSVSortsAndParses(t *testing.T) {
	in := "Date,Open,High,Low,Close,Volume\n" +
		"2024-01-03,10,11,9,10.5,1000\n" +
		"2024-01-02T00:00:00Z,9,10,8,9.5,900\n"

	s, err := ReadCSV("AAPL", strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, "2024-01-02", s.Candles[0].Date.Format(market.DateLayout))
	assert.Equal(t, 10.5, s.Candles[1].Close)
	assert.Equal(t, 1000.0, s.Candles[1].Volume)
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"no close", "date,open\n2024-01-02,1\n"},
		{"no date", "close\n1\n"},
		{"bad date", "date,close\nyesterday,1\n"},
		{"duplicate", "date,close\n2024-01-02,1\n2024-01-02,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV("X", strings.NewReader(tt.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, market.ErrData))
		})
	}
}

func TestCSVDirLoadsAllSymbols(t *testing.T) {
	dir := t.TempDir()
	for _, sym := range []string{"MSFT", "AAPL"} {
		body := "date,close\n2024-01-02,1\n2024-01-03,2\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, sym+".csv"), []byte(body), 0o644))
	}

	m, err := NewCSVDir(dir, nil).Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, m.Symbols())

	_, err = NewCSVDir(dir, nil).Load(context.Background(), []string{"NOPE"})
	assert.Error(t, err)
}

func TestWriteDirRoundTrip(t *testing.T) {
	dir := t.TempDir()
	d1, _ := market.ParseDay("2024-01-02")
	d2, _ := market.ParseDay("2024-01-03")
	in := market.SeriesMap{
		"AAA": {Symbol: "AAA", Candles: []market.Candle{
			{Date: d1, Open: 10, High: 11, Low: 9.5, Close: 10.25, Volume: 1200},
			{Date: d2, Open: 10.25, High: 10.5, Low: 10, Close: 10.4, Volume: 900},
		}},
	}
	require.NoError(t, WriteDir(dir, in))

	out, err := NewCSVDir(dir, nil).Load(context.Background(), nil)
	require.NoError(t, err)
	require.Contains(t, out, "AAA")
	assert.Equal(t, in["AAA"].Candles, out["AAA"].Candles)
}
