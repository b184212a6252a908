package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/forecaster/config"
	"github.com/rustyeddy/forecaster/journal"
	"github.com/rustyeddy/forecaster/market/data"
)

func TestDateRange(t *testing.T) {
	from, to, err := dateRange("", "")
	require.NoError(t, err)
	assert.True(t, from.IsZero())
	assert.True(t, to.IsZero())

	from, to, err = dateRange("2024-01-02", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", from.Format("2006-01-02"))
	assert.Equal(t, "2024-03-01", to.Format("2006-01-02"))

	_, _, err = dateRange("01/02/2024", "")
	assert.ErrorContains(t, err, "data.from")
}

func TestNamedRow(t *testing.T) {
	got := namedRow([]string{"rsi", "macd", "atr"}, []float64{55, 0.4})
	assert.Equal(t, map[string]float64{"rsi": 55, "macd": 0.4}, got)
}

func TestOpenJournal(t *testing.T) {
	dir := t.TempDir()

	j, err := openJournal(dir, config.JournalConfig{Type: "none"}, "run")
	require.NoError(t, err)
	assert.Len(t, j.(journal.Multi), 1)
	require.NoError(t, j.Close())

	j, err = openJournal(dir, config.JournalConfig{Type: "sqlite", DBPath: filepath.Join(dir, "j.db")}, "run")
	require.NoError(t, err)
	assert.Len(t, j.(journal.Multi), 2)
	require.NoError(t, j.Close())

	j, err = openJournal(dir, config.JournalConfig{
		Type:           "csv",
		IterationsFile: filepath.Join(dir, "it.csv"),
		OutcomesFile:   filepath.Join(dir, "out.csv"),
	}, "run")
	require.NoError(t, err)
	assert.Len(t, j.(journal.Multi), 2)
	require.NoError(t, j.Close())
}

func TestConfigInitWritesValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecaster.yaml")
	rootCmd.SetArgs([]string{"config", "init", "-o", path})
	require.NoError(t, rootCmd.Execute())

	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = config.LoadFromFile(path)
	require.NoError(t, err)
}

func TestDataSynthWritesLoadableCSV(t *testing.T) {
	dir := t.TempDir()
	rootCmd.SetArgs([]string{"data", "synth", "-o", dir, "--symbols", "AAA,BBB", "--bars", "40"})
	require.NoError(t, rootCmd.Execute())

	series, err := data.NewCSVDir(dir, nil).Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, series.Symbols())
	assert.Equal(t, 40, series["AAA"].Len())
}
