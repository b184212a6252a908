package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNotConverged is returned when Newton steps fail to settle.
var ErrNotConverged = errors.New("logistic regression did not converge")

// Logistic is L2-regularized logistic regression fitted by Newton's method.
// The intercept is not penalized.
type Logistic struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	C         float64   `json:"c"`
	MaxIter   int       `json:"max_iter"`
}

func NewLogistic() *Logistic {
	return &Logistic{C: 1, MaxIter: 500}
}

func (m *Logistic) Fit(x [][]float64, y []int) error {
	if err := checkShape(x, y); err != nil {
		return err
	}
	n, p := len(x), len(x[0])
	d := p + 1
	c := m.C
	if c <= 0 {
		c = 1
	}
	maxIter := m.MaxIter
	if maxIter <= 0 {
		maxIter = 500
	}

	w := make([]float64, d) // last slot is the intercept
	grad := mat.NewVecDense(d, nil)
	hess := mat.NewSymDense(d, nil)
	step := mat.NewVecDense(d, nil)

	for it := 0; it < maxIter; it++ {
		hess.Zero()
		for j := 0; j < d; j++ {
			grad.SetVec(j, 0)
		}
		for j := 0; j < p; j++ {
			grad.SetVec(j, w[j]/c)
			hess.SetSym(j, j, 1/c)
		}
		for i := 0; i < n; i++ {
			z := w[p]
			for j := 0; j < p; j++ {
				z += w[j] * x[i][j]
			}
			pr := sigmoid(z)
			r := pr - float64(y[i])
			s := math.Max(pr*(1-pr), 1e-12)
			for j := 0; j < d; j++ {
				xj := 1.0
				if j < p {
					xj = x[i][j]
				}
				grad.SetVec(j, grad.AtVec(j)+r*xj)
				for k := j; k < d; k++ {
					xk := 1.0
					if k < p {
						xk = x[i][k]
					}
					hess.SetSym(j, k, hess.At(j, k)+s*xj*xk)
				}
			}
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(hess); !ok {
			return ErrNotConverged
		}
		if err := chol.SolveVecTo(step, grad); err != nil {
			return ErrNotConverged
		}
		maxStep := 0.0
		for j := 0; j < d; j++ {
			w[j] -= step.AtVec(j)
			maxStep = math.Max(maxStep, math.Abs(step.AtVec(j)))
		}
		if math.IsNaN(maxStep) {
			return ErrNotConverged
		}
		if maxStep < 1e-8 {
			m.Coef = w[:p]
			m.Intercept = w[p]
			return nil
		}
	}
	return ErrNotConverged
}

func (m *Logistic) PredictProba(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, r := range x {
		z := m.Intercept
		for j, v := range r {
			if j < len(m.Coef) {
				z += m.Coef[j] * v
			}
		}
		out[i] = sigmoid(z)
	}
	return out
}

// FeatureImportance is |coef| normalized.
func (m *Logistic) FeatureImportance() []float64 {
	abs := make([]float64, len(m.Coef))
	for i, c := range m.Coef {
		abs[i] = math.Abs(c)
	}
	return normalize(abs)
}

// Platt maps a raw score p to sigmoid(Coef*p + Intercept).
type Platt struct {
	Type      string  `json:"type"`
	Coef      float64 `json:"coef"`
	Intercept float64 `json:"intercept"`
}

// FitPlatt fits a one-feature logistic regression of labels on raw
// probabilities.
func FitPlatt(probs []float64, labels []int) (*Platt, error) {
	x := make([][]float64, len(probs))
	for i, p := range probs {
		x[i] = []float64{p}
	}
	lr := NewLogistic()
	if err := lr.Fit(x, labels); err != nil {
		return nil, err
	}
	return &Platt{Type: "platt", Coef: lr.Coef[0], Intercept: lr.Intercept}, nil
}

func (c *Platt) Apply(p float64) float64 {
	if c == nil {
		return p
	}
	return sigmoid(c.Coef*p + c.Intercept)
}
