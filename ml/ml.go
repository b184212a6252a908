// Package ml holds the binary classifiers, probability calibration and
// scoring metrics used to train horizon models.
package ml

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownAlgorithm is returned for an algorithm name with no backend.
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// ErrShape is returned when a feature matrix and labels disagree in size.
var ErrShape = errors.New("feature matrix and labels differ in shape")

// Algorithm names a classifier backend.
type Algorithm string

const (
	RandomForest Algorithm = "rf"
	GradBoostA   Algorithm = "xgb"
	GradBoostB   Algorithm = "lgbm"
)

// Algorithms lists the supported backends.
var Algorithms = []Algorithm{RandomForest, GradBoostA, GradBoostB}

func ParseAlgorithm(s string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case RandomForest, GradBoostA, GradBoostB:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// Classifier is a binary probabilistic classifier.
type Classifier interface {
	Fit(x [][]float64, y []int) error
	// PredictProba returns P(label=1) per row.
	PredictProba(x [][]float64) []float64
	// FeatureImportance returns one non-negative weight per column,
	// normalized to sum to 1 (all zero if the model never split).
	FeatureImportance() []float64
}

// ProgressFunc reports incremental fitting, e.g. trees grown so far.
type ProgressFunc func(done, total int)

// Params tunes a backend. Zero fields fall back to the backend default.
type Params struct {
	Trees           int     `json:"trees,omitempty" yaml:"trees,omitempty"`
	Step            int     `json:"step,omitempty" yaml:"step,omitempty"`
	MaxDepth        int     `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	Rounds          int     `json:"rounds,omitempty" yaml:"rounds,omitempty"`
	LearningRate    float64 `json:"learning_rate,omitempty" yaml:"learning_rate,omitempty"`
	MaxLeaves       int     `json:"max_leaves,omitempty" yaml:"max_leaves,omitempty"`
	Subsample       float64 `json:"subsample,omitempty" yaml:"subsample,omitempty"`
	ColSample       float64 `json:"colsample,omitempty" yaml:"colsample,omitempty"`
	MinChildWeight  float64 `json:"min_child_weight,omitempty" yaml:"min_child_weight,omitempty"`
	MinChildSamples int     `json:"min_child_samples,omitempty" yaml:"min_child_samples,omitempty"`
	Lambda          float64 `json:"lambda,omitempty" yaml:"lambda,omitempty"`
	Seed            int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Defaults returns the stock hyperparameters of an algorithm.
func Defaults(a Algorithm) Params {
	switch a {
	case GradBoostA:
		return Params{Rounds: 400, MaxDepth: 5, LearningRate: 0.05, Subsample: 0.9,
			ColSample: 0.9, MinChildWeight: 2, MinChildSamples: 1, Lambda: 1, Seed: 42}
	case GradBoostB:
		return Params{Rounds: 600, LearningRate: 0.02, MaxLeaves: 48, Subsample: 0.9,
			ColSample: 0.9, MinChildWeight: 1e-3, MinChildSamples: 20, Lambda: 1, Seed: 42}
	default:
		return Params{Trees: 300, Step: 50, MaxDepth: 7, MinChildSamples: 1, Seed: 42}
	}
}

// Merge overlays the non-zero fields of o onto p.
func (p Params) Merge(o Params) Params {
	if o.Trees > 0 {
		p.Trees = o.Trees
	}
	if o.Step > 0 {
		p.Step = o.Step
	}
	if o.MaxDepth > 0 {
		p.MaxDepth = o.MaxDepth
	}
	if o.Rounds > 0 {
		p.Rounds = o.Rounds
	}
	if o.LearningRate > 0 {
		p.LearningRate = o.LearningRate
	}
	if o.MaxLeaves > 0 {
		p.MaxLeaves = o.MaxLeaves
	}
	if o.Subsample > 0 {
		p.Subsample = o.Subsample
	}
	if o.ColSample > 0 {
		p.ColSample = o.ColSample
	}
	if o.MinChildWeight > 0 {
		p.MinChildWeight = o.MinChildWeight
	}
	if o.MinChildSamples > 0 {
		p.MinChildSamples = o.MinChildSamples
	}
	if o.Lambda > 0 {
		p.Lambda = o.Lambda
	}
	if o.Seed != 0 {
		p.Seed = o.Seed
	}
	return p
}

// New builds an unfitted classifier for a with its defaults overlaid by
// overrides.
func New(a Algorithm, overrides Params) (Classifier, error) {
	p := Defaults(a).Merge(overrides)
	switch a {
	case RandomForest:
		return NewForest(p), nil
	case GradBoostA, GradBoostB:
		return NewBooster(p), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(a))
}

func checkShape(x [][]float64, y []int) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("%w: %d rows, %d labels", ErrShape, len(x), len(y))
	}
	w := len(x[0])
	for i, r := range x {
		if len(r) != w {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(r), w)
		}
	}
	return nil
}

func normalize(v []float64) []float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	out := make([]float64, len(v))
	if s <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / s
	}
	return out
}
