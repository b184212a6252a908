package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/forecaster/dataset"
	"github.com/rustyeddy/forecaster/ensemble"
	"github.com/rustyeddy/forecaster/features"
	"github.com/rustyeddy/forecaster/internal/synth"
	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/threshold"
	"github.com/rustyeddy/forecaster/trainer"
)

var published = time.Date(2024, 6, 3, 14, 30, 5, 0, time.UTC)

func container(t *testing.T, a ml.Algorithm) *trainer.Container {
	t.Helper()
	series := synth.Universe([]string{"AAPL", "MSFT", "NVDA"}, time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), 300, 11)
	params := map[ml.Algorithm]ml.Params{
		ml.RandomForest: {Trees: 20, Step: 10, MaxDepth: 4},
		ml.GradBoostA:   {Rounds: 20},
	}
	o := trainer.NewOrchestrator(
		dataset.NewBuilder(features.NewDefault(0.02), nil, nil),
		trainer.New(trainer.Config{Params: params}, nil, nil, nil),
		[]int{60}, nil, nil)
	c, err := o.TrainMulti(context.Background(), series, []int{1, 5}, a)
	require.NoError(t, err)
	return c
}

func open(t *testing.T) *Registry {
	r := Open(filepath.Join(t.TempDir(), "models"), nil)
	r.now = func() time.Time { return published }
	return r
}

func TestPublishWritesSnapshot(t *testing.T) {
	r := open(t)
	c := container(t, ml.RandomForest)

	snap, err := r.Publish(c, threshold.F1, true)
	require.NoError(t, err)
	assert.Equal(t, "20240603_143005", snap.Name)
	assert.True(t, snap.Promoted)

	for _, f := range []string{ModelFile(ml.RandomForest), MetadataFile, threshold.FileName} {
		assert.FileExists(t, filepath.Join(snap.Dir, f))
	}

	active, err := r.Active()
	require.NoError(t, err)
	assert.Equal(t, snap.Name, active)

	meta, err := r.Show("")
	require.NoError(t, err)
	assert.Equal(t, ml.RandomForest, meta.Algorithm)
	assert.Equal(t, []int{1, 5}, meta.Horizons)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, meta.Symbols)
	assert.Equal(t, c.Samples(), meta.Samples)
	assert.Len(t, meta.Validation, 2)
	assert.Len(t, meta.ClassBalance, 2)
	assert.NotEmpty(t, meta.TopFeatures)
	assert.Equal(t, filepath.Join(snap.Dir, threshold.FileName), meta.ThresholdsFile)

	set, err := threshold.Load(meta.ThresholdsFile)
	require.NoError(t, err)
	assert.Equal(t, snap.Thresholds.Global, set.Global)
	require.NotEmpty(t, set.History)
	assert.Equal(t, threshold.InitialGlobal, set.History[0].Type)

	loaded, _, err := r.Load(snap.Name)
	require.NoError(t, err)
	assert.Equal(t, c.Horizons, loaded.Horizons)
	row := make([]float64, len(loaded.Features))
	want, err := c.PredictLatest(row, 5)
	require.NoError(t, err)
	got, err := loaded.PredictLatest(row, 5)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-12)
}

func TestIndexIsNewestFirst(t *testing.T) {
	r := open(t)
	c := container(t, ml.RandomForest)

	first, err := r.Publish(c, threshold.F1, false)
	require.NoError(t, err)
	second, err := r.Publish(c, threshold.F1, false)
	require.NoError(t, err)
	assert.Equal(t, "20240603_143006", second.Name, "a taken name steps forward")

	idx, err := r.List()
	require.NoError(t, err)
	require.Len(t, idx, 2)
	assert.Equal(t, second.Name, idx[0].SnapshotDir)
	assert.Equal(t, first.Name, idx[1].SnapshotDir)
	assert.Equal(t, ml.RandomForest, idx[0].ModelType)

	_, err = r.Active()
	assert.ErrorIs(t, err, ErrNoActive)

	require.NoError(t, r.Activate(first.Name))
	active, err := r.Active()
	require.NoError(t, err)
	assert.Equal(t, first.Name, active)
}

func TestActivateUnknown(t *testing.T) {
	r := open(t)
	assert.ErrorIs(t, r.Activate("19990101_000000"), ErrNoSnapshot)
	_, err := r.Show("19990101_000000")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestFailedWriteSkipsPromotion(t *testing.T) {
	r := open(t)
	require.NoError(t, os.MkdirAll(filepath.Join(r.Root(), IndexFile), 0o755))

	snap, err := r.Publish(container(t, ml.RandomForest), threshold.F1, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	require.NotNil(t, snap)
	assert.False(t, snap.Promoted)
	_, err = r.Active()
	assert.ErrorIs(t, err, ErrNoActive)
}

func TestPublishEmpty(t *testing.T) {
	_, err := open(t).Publish(&trainer.Container{}, threshold.F1, true)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestBaseMetaAlignsAcrossAlgorithms(t *testing.T) {
	rf := BaseMeta(container(t, ml.RandomForest), published)
	xgb := BaseMeta(container(t, ml.GradBoostA), published)

	assert.Equal(t, []int{1, 5}, rf.Horizons)
	assert.Equal(t, rf.ValLabels, xgb.ValLabels)
	assert.Len(t, rf.ValProbs, len(rf.ValLabels))

	dir := t.TempDir()
	require.NoError(t, ensemble.SaveBaseMeta(dir, ml.RandomForest, rf))
	require.NoError(t, ensemble.SaveBaseMeta(dir, ml.GradBoostA, xgb))
	metas, err := ensemble.LoadBaseMetas(dir)
	require.NoError(t, err)
	require.Len(t, metas, 2)

	spec, _, _, err := ensemble.Compose(metas, 0.25)
	require.NoError(t, err)
	assert.Len(t, spec.Weights, 2)
}
