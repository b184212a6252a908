package ml

import (
	"math"
	"math/rand"
)

// Forest is a bagged ensemble of depth-limited Gini trees with sqrt(p)
// candidate features per split.
type Forest struct {
	Params     Params       `json:"params"`
	Trees      []tree       `json:"trees"`
	Importance []float64    `json:"importance"`
	Progress   ProgressFunc `json:"-"`
}

func NewForest(p Params) *Forest {
	return &Forest{Params: p}
}

// Fit grows Params.Trees trees in batches of Params.Step, reporting each
// batch through Progress.
func (f *Forest) Fit(x [][]float64, y []int) error {
	if err := checkShape(x, y); err != nil {
		return err
	}
	total := f.Params.Trees
	if total <= 0 {
		total = Defaults(RandomForest).Trees
	}
	step := f.Params.Step
	if step <= 0 || step > total {
		step = total
	}

	n, cols := len(x), len(x[0])
	b := newBinner(x)
	rng := rand.New(rand.NewSource(f.Params.Seed))
	all := make([]int, cols)
	for j := range all {
		all[j] = j
	}
	gr := &grower{
		cfg: growConfig{
			maxDepth:        f.Params.MaxDepth,
			minChildSamples: f.Params.MinChildSamples,
			features:        all,
			nodeFeatures:    int(math.Max(1, math.Sqrt(float64(cols)))),
			rng:             rng,
		},
		bins:  b.transform(x),
		edges: b.edges,
		g:     make([]float64, n),
		h:     make([]float64, n),
	}

	f.Trees = f.Trees[:0]
	imp := make([]float64, cols)
	counts := make([]float64, n)
	for len(f.Trees) < total {
		batch := step
		if rest := total - len(f.Trees); rest < batch {
			batch = rest
		}
		for k := 0; k < batch; k++ {
			for i := range counts {
				counts[i] = 0
			}
			for d := 0; d < n; d++ {
				counts[rng.Intn(n)]++
			}
			idx := make([]int, 0, n)
			for i, c := range counts {
				gr.g[i] = -float64(y[i]) * c
				gr.h[i] = c
				if c > 0 {
					idx = append(idx, i)
				}
			}
			gr.importance = make([]float64, cols)
			f.Trees = append(f.Trees, gr.grow(idx))
			for j, v := range normalize(gr.importance) {
				imp[j] += v
			}
		}
		if f.Progress != nil {
			f.Progress(len(f.Trees), total)
		}
	}
	f.Importance = normalize(imp)
	return nil
}

func (f *Forest) PredictProba(x [][]float64) []float64 {
	out := make([]float64, len(x))
	if len(f.Trees) == 0 {
		return out
	}
	for i, r := range x {
		s := 0.0
		for k := range f.Trees {
			s += f.Trees[k].predict(r)
		}
		out[i] = clamp01(s / float64(len(f.Trees)))
	}
	return out
}

func (f *Forest) FeatureImportance() []float64 {
	return append([]float64(nil), f.Importance...)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
