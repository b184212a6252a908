package ensemble

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/forecaster/ml"
)

// noisy returns probabilities that track labels with the given noise.
func noisy(labels []int, noise float64, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, len(labels))
	for i, l := range labels {
		p := 0.3 + 0.4*float64(l) + r.NormFloat64()*noise
		out[i] = math.Min(1, math.Max(0, p))
	}
	return out
}

func threeMetas() []BaseMeta {
	r := rand.New(rand.NewSource(1))
	labels := make([]int, 200)
	for i := range labels {
		labels[i] = r.Intn(2)
	}
	return []BaseMeta{
		{Name: "rf", ValProbs: noisy(labels, 0.15, 2), ValLabels: labels},
		{Name: "xgb", ValProbs: noisy(labels, 0.4, 3), ValLabels: labels},
		{Name: "lgbm", ValProbs: noisy(labels, 0.6, 4), ValLabels: labels},
	}
}

func TestGrid(t *testing.T) {
	g := grid(0.1)
	require.Len(t, g, 11)
	assert.Equal(t, 0.3, g[3])
	assert.Equal(t, 1.0, g[10])
}

func TestOptimizeLinearWeightsSumToOne(t *testing.T) {
	metas := threeMetas()
	res, err := OptimizeLinear(metas, 0.1)
	require.NoError(t, err)
	require.Len(t, res.Weights, 3)

	sum := 0.0
	for _, w := range res.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Equal(t, res.Weights[0], res.Named["rf"])

	// The least noisy model alone is on the grid, so the best blend is
	// at least as good.
	solo, ok := ml.AUC(metas[0].ValProbs, metas[0].ValLabels)
	require.True(t, ok)
	assert.GreaterOrEqual(t, res.AUC, solo)
}

func TestOptimizeLinearTwoModels(t *testing.T) {
	metas := threeMetas()[:2]
	res, err := OptimizeLinear(metas, 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Weights[0]+res.Weights[1], 1e-6)
}

func TestOptimizeLinearRejectsBadInput(t *testing.T) {
	metas := threeMetas()
	_, err := OptimizeLinear(metas[:1], 0.1)
	assert.True(t, errors.Is(err, ErrTooFewModels))

	short := metas[1]
	short.ValProbs = short.ValProbs[:10]
	short.ValLabels = short.ValLabels[:10]
	_, err = OptimizeLinear([]BaseMeta{metas[0], short}, 0.1)
	assert.True(t, errors.Is(err, ErrMisaligned))

	flat := []BaseMeta{
		{Name: "rf", ValProbs: []float64{0.2, 0.4}, ValLabels: []int{1, 1}},
		{Name: "xgb", ValProbs: []float64{0.3, 0.5}, ValLabels: []int{1, 1}},
	}
	_, err = OptimizeLinear(flat, 0.1)
	assert.ErrorIs(t, err, ErrNoScore)
}

func TestTrainMeta(t *testing.T) {
	res, err := TrainMeta(threeMetas())
	require.NoError(t, err)
	require.Len(t, res.Model.Coef, 3)
	assert.Greater(t, res.AUC, 0.8)
	// The cleanest input should carry the largest weight.
	assert.Greater(t, res.Model.Coef[0], res.Model.Coef[2])
}

func TestEqualWeighted(t *testing.T) {
	a, b := 0.6, 0.8
	got := EqualWeighted([]BaseMeta{{AUC: &a}, {CVMeanAUC: &b}, {}})
	require.NotNil(t, got)
	assert.InDelta(t, 0.7, *got, 1e-12)
	assert.Nil(t, EqualWeighted([]BaseMeta{{}}))
}

func TestComposeAndPersist(t *testing.T) {
	dir := t.TempDir()
	for _, m := range threeMetas() {
		require.NoError(t, SaveBaseMeta(dir, ml.Algorithm(m.Name), m))
	}
	metas, err := LoadBaseMetas(dir)
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, "rf", metas[0].Name)
	assert.Equal(t, "xgb", metas[1].Name)

	spec, lin, meta, err := Compose(metas, DefaultStep)
	require.NoError(t, err)
	require.NotNil(t, lin)
	require.NotNil(t, meta)
	require.NotNil(t, spec.MetaAUC)
	assert.Equal(t, lin.Named, spec.Weights)

	require.NoError(t, spec.Save(dir))
	got, err := LoadSpec(dir)
	require.NoError(t, err)
	assert.Equal(t, spec, got)

	p, err := got.Blend(map[string]float64{"rf": 0.8, "xgb": 0.8, "lgbm": 0.8})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, p, 1e-9)
	_, err = got.Blend(map[string]float64{"rf": 0.8})
	if len(got.Weights) > 1 {
		assert.Error(t, err)
	}
}

func TestLoadBaseMetasSkipsMissing(t *testing.T) {
	metas, err := LoadBaseMetas(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, metas)
}
