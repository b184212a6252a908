package ml

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// separable builds rows whose label depends on the first column only.
func separable(n int, seed int64) ([][]float64, []int) {
	r := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		x[i] = []float64{r.NormFloat64(), r.NormFloat64(), r.NormFloat64()}
		if x[i][0]+0.3*r.NormFloat64() > 0.2 {
			y[i] = 1
		}
	}
	return x, y
}

func smallParams(a Algorithm) Params {
	switch a {
	case RandomForest:
		return Params{Trees: 20, Step: 5, MaxDepth: 4}
	case GradBoostA:
		return Params{Rounds: 40, MaxDepth: 3, LearningRate: 0.2}
	default:
		return Params{Rounds: 40, MaxLeaves: 8, LearningRate: 0.2, MinChildSamples: 5}
	}
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm(" RF ")
	require.NoError(t, err)
	assert.Equal(t, RandomForest, a)

	_, err = ParseAlgorithm("svm")
	assert.True(t, errors.Is(err, ErrUnknownAlgorithm))

	_, err = New(Algorithm("svm"), Params{})
	assert.True(t, errors.Is(err, ErrUnknownAlgorithm))
}

func TestDefaultsMerge(t *testing.T) {
	p := Defaults(GradBoostA).Merge(Params{Rounds: 10})
	assert.Equal(t, 10, p.Rounds)
	assert.Equal(t, 5, p.MaxDepth)
	assert.Equal(t, 0.05, p.LearningRate)

	assert.Equal(t, 300, Defaults(RandomForest).Trees)
	assert.Equal(t, 48, Defaults(GradBoostB).MaxLeaves)
}

func TestClassifiersLearnSignal(t *testing.T) {
	x, y := separable(400, 1)
	xt, yt := separable(200, 2)

	for _, a := range Algorithms {
		t.Run(string(a), func(t *testing.T) {
			c, err := New(a, smallParams(a))
			require.NoError(t, err)
			require.NoError(t, c.Fit(x, y))

			probs := c.PredictProba(xt)
			for _, p := range probs {
				assert.True(t, p >= 0 && p <= 1)
			}
			auc, ok := AUC(probs, yt)
			require.True(t, ok)
			assert.Greater(t, auc, 0.85)

			imp := c.FeatureImportance()
			require.Len(t, imp, 3)
			sum := 0.0
			for _, v := range imp {
				sum += v
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
			assert.Greater(t, imp[0], imp[1])
			assert.Greater(t, imp[0], imp[2])
		})
	}
}

func TestForestReportsProgress(t *testing.T) {
	x, y := separable(100, 3)
	f := NewForest(Defaults(RandomForest).Merge(Params{Trees: 12, Step: 5, MaxDepth: 3}))
	var seen [][2]int
	f.Progress = func(done, total int) { seen = append(seen, [2]int{done, total}) }
	require.NoError(t, f.Fit(x, y))
	assert.Equal(t, [][2]int{{5, 12}, {10, 12}, {12, 12}}, seen)
	assert.Len(t, f.Trees, 12)
}

func TestFitRejectsBadShape(t *testing.T) {
	for _, a := range Algorithms {
		c, err := New(a, smallParams(a))
		require.NoError(t, err)
		assert.ErrorIs(t, c.Fit([][]float64{{1}, {2}}, []int{1}), ErrShape)
		assert.ErrorIs(t, c.Fit(nil, nil), ErrShape)
	}
	assert.ErrorIs(t, NewLogistic().Fit([][]float64{{1, 2}, {1}}, []int{0, 1}), ErrShape)
}

func TestLogisticAndPlatt(t *testing.T) {
	x, y := separable(300, 4)
	lr := NewLogistic()
	require.NoError(t, lr.Fit(x, y))
	assert.Greater(t, lr.Coef[0], 1.0)
	assert.Less(t, abs(lr.Coef[1]), 0.5)

	probs := make([]float64, len(x))
	for i := range x {
		probs[i] = 0.3 + 0.4*sigmoid(x[i][0])
	}
	pl, err := FitPlatt(probs, y)
	require.NoError(t, err)
	assert.Equal(t, "platt", pl.Type)
	assert.Greater(t, pl.Coef, 0.0)
	assert.Less(t, pl.Apply(0.3), pl.Apply(0.7))

	var none *Platt
	assert.Equal(t, 0.42, none.Apply(0.42))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestAUC(t *testing.T) {
	probs := []float64{0.1, 0.1, 0.35, 0.4, 0.8}
	labels := []int{0, 0, 1, 0, 1}

	auc, ok := AUC(probs, labels)
	require.True(t, ok)
	assert.InDelta(t, 5.0/6.0, auc, 1e-12)

	pw, ok := PairwiseAUC(probs, labels)
	require.True(t, ok)
	assert.InDelta(t, auc, pw, 1e-12)

	// Ties between classes count one half.
	pw, ok = PairwiseAUC([]float64{0.5, 0.5}, []int{1, 0})
	require.True(t, ok)
	assert.Equal(t, 0.5, pw)
	auc, ok = AUC([]float64{0.5, 0.5}, []int{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 0.5, auc, 1e-12)

	_, ok = AUC([]float64{0.2, 0.9}, []int{1, 1})
	assert.False(t, ok)
	_, ok = PairwiseAUC([]float64{0.2}, []int{0})
	assert.False(t, ok)

	// The input slice is not reordered.
	assert.Equal(t, []float64{0.1, 0.1, 0.35, 0.4, 0.8}, probs)
}

func TestAUCMatchesPairwiseOnRandomScores(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	probs := make([]float64, 300)
	labels := make([]int, 300)
	for i := range probs {
		probs[i] = float64(r.Intn(20)) / 20
		labels[i] = r.Intn(2)
	}
	a, ok := AUC(probs, labels)
	require.True(t, ok)
	b, ok := PairwiseAUC(probs, labels)
	require.True(t, ok)
	assert.InDelta(t, b, a, 1e-9)
}

func TestScores(t *testing.T) {
	probs := []float64{0.9, 0.2, 0.6, 0.4}
	labels := []int{1, 0, 0, 1}

	assert.InDelta(t, (0.01+0.04+0.36+0.36)/4, Brier(probs, labels), 1e-12)
	assert.Greater(t, LogLoss(probs, labels), 0.0)
	assert.Equal(t, 0.0, Brier(nil, nil))

	c := ConfusionAtLeast(probs, labels, 0.6)
	assert.Equal(t, Confusion{TP: 1, FP: 1, FN: 1, TN: 1}, c)
	c = ConfusionAbove(probs, labels, 0.6)
	assert.Equal(t, Confusion{TP: 1, FP: 0, FN: 1, TN: 2}, c)
	assert.Equal(t, 1.0, c.Precision())
	assert.Equal(t, 0.5, c.Recall())
	assert.InDelta(t, 2.0/3.0, c.F1(), 1e-12)

	rep := NewReport(probs, labels, 0.5)
	assert.Equal(t, 2, rep.Positive.Support)
	assert.Equal(t, 2, rep.Negative.Support)
	assert.Equal(t, 0.5, rep.Accuracy)

	m, s := MeanStd([]float64{1, 2, 3, 4})
	assert.Equal(t, 2.5, m)
	assert.InDelta(t, 1.118033988, s, 1e-9)
	assert.Equal(t, 0.1235, Round(0.12346, 4))
}

func TestModelRoundTrip(t *testing.T) {
	x, y := separable(150, 5)
	dir := t.TempDir()

	for _, a := range Algorithms {
		c, err := New(a, smallParams(a))
		require.NoError(t, err)
		require.NoError(t, c.Fit(x, y))
		m := &Model{
			Algorithm:   a,
			Horizon:     5,
			Features:    []string{"a", "b", "c"},
			Classifier:  c,
			Calibration: &Platt{Type: "platt", Coef: 2, Intercept: -1},
		}
		path := filepath.Join(dir, "model_"+string(a)+".json")
		require.NoError(t, m.Save(path))

		got, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, a, got.Algorithm)
		assert.Equal(t, 5, got.Horizon)
		assert.Equal(t, m.Features, got.Features)
		assert.InDeltaSlice(t, m.PredictProba(x[:10]), got.PredictProba(x[:10]), 1e-12)
		assert.NotEqual(t, m.PredictRaw(x[:1])[0], m.PredictOne(x[0]))
	}
}
