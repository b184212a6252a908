package ml

import (
	"math"
	"math/rand"
)

// Booster is gradient-boosted trees on the logistic loss. MaxDepth bounds
// level-wise growth; MaxLeaves switches to best-first growth.
type Booster struct {
	Params     Params    `json:"params"`
	Base       float64   `json:"base"`
	Trees      []tree    `json:"trees"`
	Importance []float64 `json:"importance"`
}

func NewBooster(p Params) *Booster {
	return &Booster{Params: p}
}

func (m *Booster) Fit(x [][]float64, y []int) error {
	if err := checkShape(x, y); err != nil {
		return err
	}
	p := m.Params
	rounds := p.Rounds
	if rounds <= 0 {
		rounds = Defaults(GradBoostA).Rounds
	}
	eta := p.LearningRate
	if eta <= 0 {
		eta = 0.1
	}
	n, cols := len(x), len(x[0])

	pos := 0.0
	for _, v := range y {
		pos += float64(v)
	}
	rate := math.Min(1-1e-6, math.Max(1e-6, pos/float64(n)))
	m.Base = math.Log(rate / (1 - rate))

	b := newBinner(x)
	rng := rand.New(rand.NewSource(p.Seed))
	gr := &grower{
		cfg: growConfig{
			maxDepth:        p.MaxDepth,
			maxLeaves:       p.MaxLeaves,
			minChildWeight:  p.MinChildWeight,
			minChildSamples: p.MinChildSamples,
			lambda:          p.Lambda,
			rng:             rng,
		},
		bins:       b.transform(x),
		edges:      b.edges,
		g:          make([]float64, n),
		h:          make([]float64, n),
		importance: make([]float64, cols),
	}

	margin := make([]float64, n)
	for i := range margin {
		margin[i] = m.Base
	}
	rowsPerTree := fraction(n, p.Subsample)
	colsPerTree := fraction(cols, p.ColSample)
	perm := make([]int, n)
	colPerm := make([]int, cols)
	for i := range perm {
		perm[i] = i
	}
	for j := range colPerm {
		colPerm[j] = j
	}

	m.Trees = m.Trees[:0]
	for r := 0; r < rounds; r++ {
		for i := range margin {
			pr := sigmoid(margin[i])
			gr.g[i] = pr - float64(y[i])
			gr.h[i] = math.Max(pr*(1-pr), 1e-16)
		}
		rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		rng.Shuffle(cols, func(i, j int) { colPerm[i], colPerm[j] = colPerm[j], colPerm[i] })
		gr.cfg.features = append([]int(nil), colPerm[:colsPerTree]...)

		t := gr.grow(append([]int(nil), perm[:rowsPerTree]...))
		t.scale(eta)
		m.Trees = append(m.Trees, t)
		for i, row := range x {
			margin[i] += t.predict(row)
		}
	}
	m.Importance = normalize(gr.importance)
	return nil
}

func fraction(n int, f float64) int {
	if f <= 0 || f >= 1 {
		return n
	}
	k := int(math.Round(float64(n) * f))
	if k < 1 {
		k = 1
	}
	return k
}

func (m *Booster) PredictProba(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, r := range x {
		s := m.Base
		for k := range m.Trees {
			s += m.Trees[k].predict(r)
		}
		out[i] = sigmoid(s)
	}
	return out
}

func (m *Booster) FeatureImportance() []float64 {
	return append([]float64(nil), m.Importance...)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
