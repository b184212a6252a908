// Package ensemble combines base models' validation probabilities into a
// weighted average or a stacked logistic meta-model.
package ensemble

import (
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/forecaster/ml"
)

var (
	// ErrTooFewModels means fewer than two base models were given.
	ErrTooFewModels = errors.New("ensemble needs at least two base models")
	// ErrMisaligned means the base models' validation sets differ.
	ErrMisaligned = errors.New("base model validation sets are not aligned")
	// ErrNoScore means no candidate could be scored, e.g. single-class labels.
	ErrNoScore = errors.New("no ensemble candidate could be scored")
)

// DefaultStep is the weight grid resolution.
const DefaultStep = 0.1

const sumTolerance = 1e-6

// BaseMeta is one base model's validation output. Every BaseMeta passed
// to a composer must cover the same validation rows in the same order.
type BaseMeta struct {
	Name      string    `json:"model_type"`
	ValProbs  []float64 `json:"val_probs"`
	ValLabels []int     `json:"val_labels"`
	AUC       *float64  `json:"auc,omitempty"`
	CVMeanAUC *float64  `json:"cv_mean_auc,omitempty"`
	Horizons  []int     `json:"horizons,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// Score returns the model's own AUC, falling back to its CV mean.
func (m BaseMeta) Score() *float64 {
	if m.AUC != nil {
		return m.AUC
	}
	return m.CVMeanAUC
}

func check(metas []BaseMeta) error {
	if len(metas) < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewModels, len(metas))
	}
	n := len(metas[0].ValProbs)
	for _, m := range metas {
		if len(m.ValProbs) == 0 || len(m.ValProbs) != len(m.ValLabels) {
			return fmt.Errorf("%w: %s has %d probabilities and %d labels", ErrMisaligned, m.Name, len(m.ValProbs), len(m.ValLabels))
		}
		if len(m.ValProbs) != n {
			return fmt.Errorf("%w: %s has %d rows, want %d", ErrMisaligned, m.Name, len(m.ValProbs), n)
		}
	}
	return nil
}

// EqualWeighted is the mean of the base models' own scores, or nil when
// none has one.
func EqualWeighted(metas []BaseMeta) *float64 {
	s, n := 0.0, 0
	for _, m := range metas {
		if a := m.Score(); a != nil {
			s += *a
			n++
		}
	}
	if n == 0 {
		return nil
	}
	v := s / float64(n)
	return &v
}

// LinearResult is the best weight vector found, in the order of the
// metas passed in.
type LinearResult struct {
	Weights []float64
	Named   map[string]float64
	AUC     float64
}

// grid returns 0, step, 2*step ... up to 1, rounded to two decimals.
func grid(step float64) []float64 {
	var out []float64
	for i := 0; ; i++ {
		v := float64(i) * step
		if v > 1+1e-9 {
			break
		}
		out = append(out, ml.Round(v, 2))
	}
	return out
}

// OptimizeLinear searches every weight vector on the step grid whose
// components sum to 1 and keeps the one whose weighted mean probability
// has the highest validation AUC. Vectors are visited with the first
// model's weight varying slowest; a later vector must beat the best
// strictly to replace it.
func OptimizeLinear(metas []BaseMeta, step float64) (*LinearResult, error) {
	if err := check(metas); err != nil {
		return nil, err
	}
	if step <= 0 || step > 1 {
		step = DefaultStep
	}
	labels := metas[0].ValLabels
	values := grid(step)
	n := len(labels)
	combined := make([]float64, n)
	w := make([]float64, len(metas))

	bestAUC := -1.0
	var best []float64
	var walk func(k int, sum float64)
	walk = func(k int, sum float64) {
		if k == len(metas) {
			if math.Abs(sum-1) > sumTolerance {
				return
			}
			for i := range combined {
				combined[i] = 0
				for j, m := range metas {
					combined[i] += w[j] * m.ValProbs[i]
				}
			}
			if auc, ok := ml.AUC(combined, labels); ok && auc > bestAUC {
				bestAUC = auc
				best = append([]float64(nil), w...)
			}
			return
		}
		for _, v := range values {
			if sum+v > 1+sumTolerance {
				break
			}
			w[k] = v
			walk(k+1, sum+v)
		}
	}
	walk(0, 0)

	if best == nil {
		return nil, ErrNoScore
	}
	res := &LinearResult{Weights: best, Named: map[string]float64{}, AUC: bestAUC}
	for i, m := range metas {
		res.Named[m.Name] = best[i]
	}
	return res, nil
}

// MetaResult is a stacked logistic regression over base probabilities.
// AUC is measured on the rows the meta-model was fitted on, so it is
// optimistic.
type MetaResult struct {
	Model *ml.Logistic
	AUC   float64
}

// TrainMeta fits a logistic regression with one input per base model.
func TrainMeta(metas []BaseMeta) (*MetaResult, error) {
	if err := check(metas); err != nil {
		return nil, err
	}
	labels := metas[0].ValLabels
	x := make([][]float64, len(labels))
	for i := range x {
		row := make([]float64, len(metas))
		for j, m := range metas {
			row[j] = m.ValProbs[i]
		}
		x[i] = row
	}
	lr := ml.NewLogistic()
	if err := lr.Fit(x, labels); err != nil {
		return nil, fmt.Errorf("meta model: %w", err)
	}
	auc, ok := ml.AUC(lr.PredictProba(x), labels)
	if !ok {
		return nil, ErrNoScore
	}
	return &MetaResult{Model: lr, AUC: auc}, nil
}
