package trainer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/forecaster/dataset"
	"github.com/rustyeddy/forecaster/features"
	"github.com/rustyeddy/forecaster/internal/synth"
	"github.com/rustyeddy/forecaster/market"
	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/progress"
)

var start = time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)

// small keeps the backends quick in tests.
var small = map[ml.Algorithm]ml.Params{
	ml.RandomForest: {Trees: 40, Step: 10, MaxDepth: 4},
	ml.GradBoostA:   {Rounds: 30},
	ml.GradBoostB:   {Rounds: 30, MaxLeaves: 8},
}

func universe(n int) market.SeriesMap {
	return synth.Universe([]string{"AAPL", "MSFT", "NVDA"}, start, n, 3)
}

func buildDS(t *testing.T, series market.SeriesMap, horizon int) *dataset.Dataset {
	t.Helper()
	b := dataset.NewBuilder(features.NewDefault(0.02), nil, nil)
	ds, err := b.Build(context.Background(), series, horizon, 60)
	require.NoError(t, err)
	require.NotZero(t, ds.Len())
	return ds
}

func TestSplit(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{1000, 800},
		{100, 50},
		{60, 40},
		{40, 40},
		{10, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Split(tt.n), "n=%d", tt.n)
	}
}

func TestTrainRejectsEmptyAndUnknown(t *testing.T) {
	tr := New(Config{Params: small}, nil, nil, nil)
	_, err := tr.Train(context.Background(), &dataset.Dataset{}, ml.RandomForest)
	assert.True(t, errors.Is(err, ErrTraining))

	ds := buildDS(t, universe(150), 1)
	_, err = tr.Train(context.Background(), ds, ml.Algorithm("svm"))
	assert.True(t, errors.Is(err, ErrTraining))
}

func TestTrainRandomForest(t *testing.T) {
	rec := &progress.Recorder{}
	tr := New(Config{Params: small}, nil, rec, nil)
	ds := buildDS(t, universe(300), 5)

	res, err := tr.Train(context.Background(), ds, ml.RandomForest)
	require.NoError(t, err)

	assert.Equal(t, ds.Len(), res.Samples)
	assert.Equal(t, ds.Len(), res.ClassBalance.Total)
	assert.Equal(t, Split(ds.Len()), res.Validation.TrainSize)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, res.Symbols)

	steps := rec.Phase(progress.PhaseRFProgress)
	require.Len(t, steps, 4)
	assert.Equal(t, 40, steps[3].Fields["done"])
	assert.Equal(t, 40, steps[3].Fields["total"])

	require.True(t, res.HasValidation())
	assert.Equal(t, ds.Len()-res.Validation.TrainSize, res.Validation.ValSize)
	assert.Len(t, res.ValProbs, res.Validation.ValSize)
	assert.Len(t, res.ValLabels, res.Validation.ValSize)
	assert.True(t, res.Validation.Calibrated)
	assert.NotNil(t, res.Model.Calibration)
	assert.InDelta(t, 0.5, *res.Validation.AUC, 0.5)

	assert.Len(t, res.FeatureStats, len(features.Columns))
	assert.Len(t, res.TopFeatures, 10)
	require.Len(t, res.Importance, len(features.Columns))
	for i := 1; i < len(res.Importance); i++ {
		assert.GreaterOrEqual(t, res.Importance[i-1].Importance, res.Importance[i].Importance)
	}

	// More than 300 rows with both classes, so walk-forward CV runs.
	require.NotEmpty(t, res.Validation.CV)
	assert.Len(t, rec.Phase(progress.PhaseCVProgress), len(res.Validation.CV))
	require.NotNil(t, res.Validation.CVMeanAUC)
	for _, f := range res.Validation.CV {
		assert.GreaterOrEqual(t, f.ValSize, 25)
		assert.GreaterOrEqual(t, f.TrainSize, 50)
	}
}

func TestTrainSmallDatasetHasNoCV(t *testing.T) {
	tr := New(Config{Params: small}, nil, nil, nil)
	ds := buildDS(t, synth.Universe([]string{"AAPL"}, start, 150, 9), 1)
	require.LessOrEqual(t, ds.Len(), 300)

	res, err := tr.Train(context.Background(), ds, ml.GradBoostA)
	require.NoError(t, err)
	assert.Empty(t, res.Validation.CV)
	assert.Nil(t, res.Validation.CVMeanAUC)
}

func TestFeatureStatsArePopulation(t *testing.T) {
	stats := featureStats([]string{"a"}, [][]float64{{1}, {3}})
	assert.Equal(t, 2.0, stats["a"].Mean)
	assert.Equal(t, 1.0, stats["a"].Std)
}

func TestMeanFoldAUCCountsMissingAsZero(t *testing.T) {
	a := 0.8
	m := meanFoldAUC([]Fold{{AUC: &a}, {}})
	require.NotNil(t, m)
	assert.InDelta(t, 0.4, *m, 1e-12)
	assert.Nil(t, meanFoldAUC(nil))
}

func newOrchestrator(rec progress.Sink) *Orchestrator {
	b := dataset.NewBuilder(features.NewDefault(0.02), nil, rec)
	return NewOrchestrator(b, New(Config{Params: small}, nil, rec, nil), nil, nil, rec)
}

func TestTrainMulti(t *testing.T) {
	rec := &progress.Recorder{}
	o := newOrchestrator(rec)

	c, err := o.TrainMulti(context.Background(), universe(220), []int{5, 1, 5}, ml.GradBoostB)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, c.Horizons)
	assert.Len(t, c.Models, 2)
	assert.Equal(t, features.Columns, c.Features)
	assert.Len(t, c.FeatureStats, len(features.Columns))
	assert.Equal(t, 1, c.HorizonMeta[0].Horizon)

	built := rec.Phase(progress.PhaseMultiDatasetsBuilt)
	require.Len(t, built, 1)
	assert.Equal(t, []int{1, 5}, built[0].Fields["horizons"])

	done := rec.Phase(progress.PhaseMultiHorizonComplete)
	require.Len(t, done, 2)
	assert.Equal(t, 1, done[0].Fields["index"])
	assert.Equal(t, 2, done[1].Fields["index"])
	assert.Equal(t, 2, done[1].Fields["total"])
	assert.Equal(t, 5, done[1].Fields["horizon"])

	var sum float64
	var n int
	for _, m := range c.HorizonMeta {
		if a := m.AUC(); a != nil {
			sum += *a
			n++
		}
	}
	if n > 0 {
		require.NotNil(t, c.AggregateAUC)
		assert.InDelta(t, sum/float64(n), *c.AggregateAUC, 1e-12)
	}
	assert.Equal(t, c.HorizonMeta[0].Samples+c.HorizonMeta[1].Samples, c.Samples())
}

func TestTrainMultiNoData(t *testing.T) {
	o := newOrchestrator(nil)
	_, err := o.TrainMulti(context.Background(), universe(80), []int{1, 5}, ml.RandomForest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataset.ErrDataset))
}

func TestTrainMultiCancelled(t *testing.T) {
	o := newOrchestrator(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.TrainMulti(ctx, universe(220), []int{1}, ml.RandomForest)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContainerPredictAndPersist(t *testing.T) {
	o := newOrchestrator(nil)
	series := universe(220)
	c, err := o.TrainMulti(context.Background(), series, []int{1, 5}, ml.RandomForest)
	require.NoError(t, err)

	_, row, err := features.NewDefault(0.02).Latest(series["AAPL"])
	require.NoError(t, err)

	p1, err := c.PredictLatest(row, 1)
	require.NoError(t, err)
	p5, err := c.PredictLatest(row, 5)
	require.NoError(t, err)
	avg, err := c.PredictLatest(row, 0)
	require.NoError(t, err)
	assert.InDelta(t, (p1+p5)/2, avg, 1e-12)
	assert.Equal(t, map[int]float64{1: p1, 5: p5}, c.PredictHorizons(row))

	_, err = c.PredictLatest(row, 10)
	assert.ErrorIs(t, err, ErrNoModel)

	path := filepath.Join(t.TempDir(), "model_rf_multi.json")
	require.NoError(t, c.Save(path))
	got, err := LoadContainer(path)
	require.NoError(t, err)
	assert.Equal(t, c.Horizons, got.Horizons)
	q1, err := got.PredictLatest(row, 1)
	require.NoError(t, err)
	assert.InDelta(t, p1, q1, 1e-9)
}
