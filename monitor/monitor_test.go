package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/forecaster/market"
	"github.com/rustyeddy/forecaster/pkg/metrics"
	"github.com/rustyeddy/forecaster/predlog"
	"github.com/rustyeddy/forecaster/threshold"
	"github.com/rustyeddy/forecaster/trainer"
)

func day(s string) time.Time {
	d, err := market.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func bars(symbol string, closes map[string]float64, dates ...string) market.Series {
	s := market.Series{Symbol: symbol}
	for _, d := range dates {
		c := closes[d]
		s.Candles = append(s.Candles, market.Candle{Date: day(d), Open: c, High: c, Low: c, Close: c})
	}
	return s
}

func fptr(v float64) *float64 { return &v }

func finalized(prob float64, realized map[int]int) predlog.Entry {
	return predlog.Entry{Symbol: "AAA", Prob: fptr(prob), Price: fptr(100), Realized: realized}
}

func TestBackfill(t *testing.T) {
	closes := map[string]float64{"2024-01-02": 100, "2024-01-03": 100.5, "2024-01-08": 102}
	series := market.SeriesMap{"AAA": bars("AAA", closes, "2024-01-02", "2024-01-03", "2024-01-08")}
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	log := predlog.Open(filepath.Join(t.TempDir(), "predictions.jsonl"))
	ready := predlog.NewEntry(now, "snap", "AAA", 0.7, map[int]float64{1: 0.7, 5: 0.6}, 100, day("2024-01-02"))
	notDue := predlog.NewEntry(now, "snap", "AAA", 0.6, map[int]float64{5: 0.6}, 102, day("2024-01-08"))
	noBar := predlog.NewEntry(now, "snap", "AAA", 0.6, map[int]float64{1: 0.6}, 102, day("2024-01-08"))
	unknown := predlog.NewEntry(now, "snap", "ZZZ", 0.6, map[int]float64{1: 0.6}, 10, day("2024-01-02"))
	require.NoError(t, log.Append(ready, notDue, noBar, unknown))

	n, err := Backfill(log, series, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := log.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 4)
	// h1 lands on 01-03 (+0.5%), h5 is due on a Sunday and takes the 01-08 bar (+2%).
	assert.Equal(t, map[int]int{1: 0, 5: 1}, got[0].Realized)
	for _, e := range got[1:] {
		assert.Nil(t, e.Realized, e.Symbol)
	}

	n, err = Backfill(log, series, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestComputeMetrics(t *testing.T) {
	assert.Nil(t, ComputeMetrics(nil))
	assert.Nil(t, ComputeMetrics([]predlog.Entry{{Prob: fptr(0.9)}}))

	entries := []predlog.Entry{
		finalized(0.8, map[int]int{1: 1, 5: 0}),
		finalized(0.6, map[int]int{1: 0}),
		finalized(0.3, map[int]int{1: 0, 5: 1}),
		finalized(0.2, map[int]int{1: 0}),
		{Symbol: "AAA", Prob: fptr(0.9)},
	}
	m := ComputeMetrics(entries)
	require.NotNil(t, m)
	assert.Equal(t, 4, m.Count)
	assert.Equal(t, 0.5, m.Precision)
	assert.Equal(t, 0.5, m.Recall)
	assert.Equal(t, 0.5, m.F1)
	require.NotNil(t, m.AUC)
	assert.InDelta(t, 0.75, *m.AUC, 1e-9)
}

func TestComputeMetricsSingleClassHasNoAUC(t *testing.T) {
	m := ComputeMetrics([]predlog.Entry{finalized(0.8, map[int]int{1: 0}), finalized(0.4, map[int]int{1: 0})})
	require.NotNil(t, m)
	assert.Nil(t, m.AUC)
	assert.Zero(t, m.Precision)
}

func TestSummarizeRecent(t *testing.T) {
	assert.Nil(t, SummarizeRecent(nil, 10))

	var entries []predlog.Entry
	for _, p := range []float64{0.9, 0.9, 0.1, 0.6, 0.4, 0.5} {
		entries = append(entries, predlog.Entry{Prob: fptr(p)})
	}
	entries = append(entries, predlog.Entry{})

	r := SummarizeRecent(entries, 0)
	require.NotNil(t, r)
	assert.Equal(t, 6, r.RecentPreds)
	assert.Equal(t, 0.667, r.PctGE05)

	r = SummarizeRecent(entries, 3)
	require.NotNil(t, r)
	assert.Equal(t, 2, r.RecentPreds)
	assert.Equal(t, 0.5, r.PctGE05)
}

func TestAdaptThreshold(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		global    float64
		count     int
		precision float64
		changed   bool
		want      float64
		kind      string
	}{
		{"too few", 0.5, AdaptMinCount - 1, 0.1, false, 0.5, ""},
		{"low precision raises", 0.5, AdaptMinCount, 0.3, true, 0.52, threshold.AdaptiveInc},
		{"high precision lowers", 0.5, 500, 0.7, true, 0.48, threshold.AdaptiveDec},
		{"in band", 0.5, 500, 0.5, false, 0.5, ""},
		{"capped", 0.89, 500, 0.1, true, 0.9, threshold.AdaptiveInc},
		{"at ceiling", 0.9, 500, 0.1, false, 0.9, ""},
		{"at floor", 0.3, 500, 0.9, false, 0.3, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := &threshold.Set{Global: tt.global, PerHorizon: map[int]float64{}}
			got := AdaptThreshold(set, &Metrics{Count: tt.count, Precision: tt.precision}, now)
			assert.Equal(t, tt.changed, got)
			assert.InDelta(t, tt.want, set.Global, 1e-9)
			if !tt.changed {
				assert.Empty(t, set.History)
				return
			}
			require.Len(t, set.History, 1)
			assert.Equal(t, tt.kind, set.History[0].Type)
			assert.InDelta(t, tt.global, *set.History[0].Prev, 1e-9)
		})
	}
	assert.False(t, AdaptThreshold(&threshold.Set{Global: 0.5}, nil, now))
}

func TestDrift(t *testing.T) {
	stats := map[string]trainer.FeatureStat{
		"rsi":  {Mean: 50, Std: 10},
		"ret":  {Mean: 0, Std: 0.01},
		"flat": {Mean: 1, Std: 0},
	}
	samples := []DriftSample{
		{Symbol: "AAA", Features: map[string]float64{"rsi": 70, "ret": 0.01, "flat": 9}},
		{Symbol: "BBB", Features: map[string]float64{"rsi": 50}},
		{Symbol: "CCC", Features: map[string]float64{"other": 3}},
	}
	r := Drift(samples, stats)
	require.NotNil(t, r)
	assert.Equal(t, 2, r.Symbols)
	assert.Equal(t, 1.5, r.PerSymbol["AAA"])
	assert.Equal(t, 0.0, r.PerSymbol["BBB"])
	assert.Equal(t, 0.75, r.Mean)
	assert.Equal(t, []string{"AAA"}, r.Top(1))
	assert.Equal(t, []string{"AAA", "BBB"}, r.Top(5))

	assert.Nil(t, Drift(samples[2:], stats))
}

func TestDriftTracker(t *testing.T) {
	tr := NewDriftTracker(0, 0)
	assert.Equal(t, DefaultDriftHigh, tr.High)
	assert.Equal(t, DefaultDriftSustain, tr.Sustain)

	for i := 0; i < DefaultDriftSustain-1; i++ {
		assert.False(t, tr.Add(2))
	}
	assert.True(t, tr.Add(2))
	assert.False(t, tr.Add(DefaultDriftHigh), "a reading at the limit breaks the run")

	for i := 0; i < 40; i++ {
		tr.Add(0.5)
	}
	assert.Len(t, tr.History(), DefaultDriftHistory)
}

func seedThresholds(t *testing.T, path string) {
	t.Helper()
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, threshold.Initial(now, threshold.F1, threshold.Sample{}, nil).Save(path))
}

func TestMonitorCycleAdaptsThreshold(t *testing.T) {
	dir := t.TempDir()
	log := predlog.Open(filepath.Join(dir, "predictions.jsonl"))
	var entries []predlog.Entry
	for i := 0; i < AdaptMinCount; i++ {
		entries = append(entries, finalized(0.9, map[int]int{1: 0}))
	}
	require.NoError(t, log.Append(entries...))
	thresholds := filepath.Join(dir, threshold.FileName)
	seedThresholds(t, thresholds)

	m := New(log, thresholds, nil, metrics.New(prometheus.NewRegistry()), nil)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	st, err := m.Cycle(context.Background(), market.SeriesMap{}, now)
	require.NoError(t, err)

	assert.Zero(t, st.Backfilled)
	require.NotNil(t, st.Metrics)
	assert.Equal(t, AdaptMinCount, st.Metrics.Count)
	assert.Zero(t, st.Metrics.Precision)
	require.NotNil(t, st.Recent)
	assert.Equal(t, 1.0, st.Recent.PctGE05)
	assert.True(t, st.ThresholdChanged)
	require.NotNil(t, st.Threshold)
	assert.InDelta(t, 0.52, *st.Threshold, 1e-9)

	saved, err := threshold.Load(thresholds)
	require.NoError(t, err)
	assert.InDelta(t, 0.52, saved.Global, 1e-9)
	assert.Equal(t, threshold.AdaptiveInc, saved.History[len(saved.History)-1].Type)

	assert.Equal(t, *st, m.Status())
}

func TestMonitorCycleWithoutThresholds(t *testing.T) {
	dir := t.TempDir()
	log := predlog.Open(filepath.Join(dir, "predictions.jsonl"))
	m := New(log, filepath.Join(dir, "missing", threshold.FileName), nil, nil, nil)

	st, err := m.Cycle(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Nil(t, st.Metrics)
	assert.Nil(t, st.Recent)
	assert.Nil(t, st.Threshold)
	assert.False(t, st.ThresholdChanged)
}

func TestMonitorCycleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := New(predlog.Open(filepath.Join(t.TempDir(), "p.jsonl")), "", nil, nil, nil)
	_, err := m.Cycle(ctx, nil, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMonitorObserveDrift(t *testing.T) {
	m := New(predlog.Open(filepath.Join(t.TempDir(), "p.jsonl")), "", NewDriftTracker(1, 2), nil, nil)
	assert.False(t, m.ObserveDrift(nil))
	assert.False(t, m.ObserveDrift(&DriftReport{Mean: 2}))
	assert.True(t, m.ObserveDrift(&DriftReport{Mean: 3}))

	st := m.Status()
	assert.True(t, st.DriftAlert)
	require.NotNil(t, st.Drift)
	assert.Equal(t, 3.0, st.Drift.Mean)
	assert.Equal(t, []float64{2, 3}, m.DriftHistory())
}
